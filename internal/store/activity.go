package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/playperu/treasurehunt/internal/hunt"
)

// AppendActivity persists activity in its own transaction.
func (s *Store) AppendActivity(ctx context.Context, acts ...hunt.Activity) error {
	if len(acts) == 0 {
		return nil
	}
	return s.InTx(ctx, func(tx *Tx) error {
		return appendActivity(ctx, tx.tx, acts)
	})
}

// AppendActivity persists activity as part of tx, so it commits or rolls
// back with the change that produced it.
func (tx *Tx) AppendActivity(ctx context.Context, acts ...hunt.Activity) error {
	return appendActivity(ctx, tx.tx, acts)
}

func appendActivity(ctx context.Context, q querier, acts []hunt.Activity) error {
	for _, a := range acts {
		var payload any
		if len(a.Payload) > 0 {
			payload = string(a.Payload)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO activity (id, event_id, team_id, type, payload, at) VALUES (?, ?, ?, ?, ?, ?)
		`, a.ID, a.EventID, a.TeamID, a.Type, payload, unixNanos(a.At)); err != nil {
			return fmt.Errorf("inserting activity %s: %w", a.ID, err)
		}
	}
	return nil
}

// RecentActivity returns at most limit of the event's latest activities in
// stream order.
func (s *Store) RecentActivity(ctx context.Context, eventID string, limit int) ([]hunt.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, team_id, type, payload, at FROM activity
		WHERE event_id = ?
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	acts, err := scanActivity(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(acts)
	return acts, nil
}

// EachActivity calls fn for every activity of the event in stream order,
// stopping at the first error. Rows are drained before fn runs so a slow
// consumer does not hold the connection.
func (s *Store) EachActivity(ctx context.Context, eventID string, fn func(hunt.Activity) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, team_id, type, payload, at FROM activity
		WHERE event_id = ?
		ORDER BY at, id
	`, eventID)
	if err != nil {
		return err
	}
	acts, err := scanActivity(rows)
	rows.Close()
	if err != nil {
		return err
	}
	for _, a := range acts {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// LastActivityAt returns the timestamp of the event's latest activity, or
// the zero time when there is none.
func (s *Store) LastActivityAt(ctx context.Context, eventID string) (time.Time, error) {
	return lastActivityAt(ctx, s.db, eventID)
}

func (tx *Tx) LastActivityAt(ctx context.Context, eventID string) (time.Time, error) {
	return lastActivityAt(ctx, tx.tx, eventID)
}

func lastActivityAt(ctx context.Context, q querier, eventID string) (time.Time, error) {
	var at sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT MAX(at) FROM activity WHERE event_id = ?`, eventID).Scan(&at)
	if err != nil || !at.Valid {
		return time.Time{}, err
	}
	return fromUnixNanos(at.Int64), nil
}

func scanActivity(rows *sql.Rows) ([]hunt.Activity, error) {
	var acts []hunt.Activity
	for rows.Next() {
		var a hunt.Activity
		var payload sql.NullString
		var at int64
		if err := rows.Scan(&a.ID, &a.EventID, &a.TeamID, &a.Type, &payload, &at); err != nil {
			return nil, err
		}
		if payload.Valid {
			a.Payload = json.RawMessage(payload.String)
		}
		a.At = fromUnixNanos(at)
		acts = append(acts, a)
	}
	return acts, rows.Err()
}
