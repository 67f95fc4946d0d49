package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playperu/treasurehunt/internal/hunt"
)

func (s *Store) CreateEvent(ctx context.Context, ev hunt.Event) error {
	ok, err := insertOnce(ctx, s.db, `
		INSERT INTO events (id, name, status, generation, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, ev.ID, ev.Name, ev.Status, ev.Generation, unixNanos(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	if !ok {
		return hunt.Errorf(hunt.CodeConflict, "event %q already exists", ev.ID)
	}
	return nil
}

func (s *Store) Event(ctx context.Context, id string) (hunt.Event, error) {
	return getEvent(ctx, s.db, id)
}

func (tx *Tx) Event(ctx context.Context, id string) (hunt.Event, error) {
	return getEvent(ctx, tx.tx, id)
}

func getEvent(ctx context.Context, q querier, id string) (hunt.Event, error) {
	var ev hunt.Event
	var createdAt int64
	err := q.QueryRowContext(ctx, `
		SELECT id, name, status, generation, created_at FROM events WHERE id = ?
	`, id).Scan(&ev.ID, &ev.Name, &ev.Status, &ev.Generation, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, hunt.Errorf(hunt.CodeNotFound, "event %q not found", id)
	}
	if err != nil {
		return ev, fmt.Errorf("loading event: %w", err)
	}
	ev.CreatedAt = fromUnixNanos(createdAt)
	return ev, nil
}

// Events lists all events, newest first.
func (s *Store) Events(ctx context.Context) ([]hunt.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, generation, created_at FROM events ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []hunt.Event
	for rows.Next() {
		var ev hunt.Event
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Status, &ev.Generation, &createdAt); err != nil {
			return nil, err
		}
		ev.CreatedAt = fromUnixNanos(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Generation returns the event's current node-graph generation.
func (s *Store) Generation(ctx context.Context, eventID string) (int64, error) {
	var gen int64
	err := s.db.QueryRowContext(ctx, `SELECT generation FROM events WHERE id = ?`, eventID).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, hunt.Errorf(hunt.CodeNotFound, "event %q not found", eventID)
	}
	return gen, err
}

// SetEventStatus moves the event from one status to another. It fails with
// InvalidState when the event is not currently in from.
func (tx *Tx) SetEventStatus(ctx context.Context, eventID string, from, to hunt.EventStatus) error {
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE events SET status = ? WHERE id = ? AND status = ?
	`, to, eventID, from)
	if err != nil {
		return fmt.Errorf("updating event status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		ev, err := getEvent(ctx, tx.tx, eventID)
		if err != nil {
			return err
		}
		return hunt.Errorf(hunt.CodeInvalidState, "event is %s, not %s", ev.Status, from)
	}
	return nil
}

// Graph loads the node graph of an event at its current generation.
func (s *Store) Graph(ctx context.Context, eventID string) (*hunt.Graph, error) {
	return loadGraph(ctx, s.db, eventID)
}

func (tx *Tx) Graph(ctx context.Context, eventID string) (*hunt.Graph, error) {
	return loadGraph(ctx, tx.tx, eventID)
}

func loadGraph(ctx context.Context, q querier, eventID string) (*hunt.Graph, error) {
	var gen int64
	err := q.QueryRowContext(ctx, `SELECT generation FROM events WHERE id = ?`, eventID).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hunt.Errorf(hunt.CodeNotFound, "event %q not found", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading generation: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT json(data) FROM nodes WHERE event_id = ? ORDER BY position
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}
	defer rows.Close()

	var nodes []hunt.Node
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var n hunt.Node
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return nil, fmt.Errorf("decoding node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	g, err := hunt.NewGraph(eventID, gen, nodes)
	if err != nil {
		return nil, fmt.Errorf("stored graph of %s is invalid: %w", eventID, err)
	}
	return g, nil
}

// ReplaceGraph swaps the event's whole node set and bumps its generation.
// Only events still in draft can be regenerated. It returns the new graph.
func (s *Store) ReplaceGraph(ctx context.Context, eventID string, nodes []hunt.Node) (*hunt.Graph, error) {
	var g *hunt.Graph
	err := s.InTx(ctx, func(tx *Tx) error {
		var err error
		g, err = tx.ReplaceGraph(ctx, eventID, nodes)
		return err
	})
	return g, err
}

func (tx *Tx) ReplaceGraph(ctx context.Context, eventID string, nodes []hunt.Node) (*hunt.Graph, error) {
	if _, err := hunt.NewGraph(eventID, 0, nodes); err != nil {
		return nil, err
	}
	ev, err := tx.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != hunt.EventStatusDraft {
		return nil, hunt.Errorf(hunt.CodeInvalidState, "map can only be regenerated while the event is in draft")
	}

	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM nodes WHERE event_id = ?`, eventID); err != nil {
		return nil, fmt.Errorf("clearing nodes: %w", err)
	}
	for i, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		var group any
		if n.GroupID != "" {
			group = n.GroupID
		}
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT INTO nodes (event_id, id, position, group_id, data) VALUES (?, ?, ?, ?, jsonb(?))
		`, eventID, n.ID, i, group, string(data)); err != nil {
			return nil, fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}
	if _, err := tx.tx.ExecContext(ctx, `
		UPDATE events SET generation = generation + 1 WHERE id = ?
	`, eventID); err != nil {
		return nil, fmt.Errorf("bumping generation: %w", err)
	}
	return loadGraph(ctx, tx.tx, eventID)
}
