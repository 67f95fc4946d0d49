package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playperu/treasurehunt/internal/hunt"
)

func (s *Store) CreateTeam(ctx context.Context, t hunt.Team) error {
	if _, err := getEvent(ctx, s.db, t.EventID); err != nil {
		return err
	}
	return insertTeam(ctx, s.db, t)
}

// InsertTeam stores a new team ledger as part of tx. A duplicate ID fails
// with Conflict.
func (tx *Tx) InsertTeam(ctx context.Context, t hunt.Team) error {
	return insertTeam(ctx, tx.tx, t)
}

func insertTeam(ctx context.Context, q querier, t hunt.Team) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	ok, err := insertOnce(ctx, q, `
		INSERT INTO teams (event_id, id, name, version, data) VALUES (?, ?, ?, 1, jsonb(?))
		ON CONFLICT DO NOTHING
	`, t.EventID, t.ID, t.Name, string(data))
	if err != nil {
		return fmt.Errorf("inserting team: %w", err)
	}
	if !ok {
		return hunt.Errorf(hunt.CodeConflict, "team %q already exists", t.ID)
	}
	return nil
}

func (s *Store) Team(ctx context.Context, eventID, teamID string) (hunt.Team, error) {
	return getTeam(ctx, s.db, eventID, teamID)
}

func (tx *Tx) Team(ctx context.Context, eventID, teamID string) (hunt.Team, error) {
	return getTeam(ctx, tx.tx, eventID, teamID)
}

func getTeam(ctx context.Context, q querier, eventID, teamID string) (hunt.Team, error) {
	var t hunt.Team
	var data string
	err := q.QueryRowContext(ctx, `
		SELECT json(data), version FROM teams WHERE event_id = ? AND id = ?
	`, eventID, teamID).Scan(&data, &t.Version)
	if err != nil {
		return t, notFoundOr(err, "team %q not found", teamID)
	}
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return t, fmt.Errorf("decoding team: %w", err)
	}
	return t, nil
}

// Teams lists all teams of an event in name order.
func (s *Store) Teams(ctx context.Context, eventID string) ([]hunt.Team, error) {
	return listTeams(ctx, s.db, eventID)
}

func (tx *Tx) Teams(ctx context.Context, eventID string) ([]hunt.Team, error) {
	return listTeams(ctx, tx.tx, eventID)
}

func listTeams(ctx context.Context, q querier, eventID string) ([]hunt.Team, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT json(data), version FROM teams WHERE event_id = ? ORDER BY name, id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []hunt.Team
	for rows.Next() {
		var t hunt.Team
		var data string
		if err := rows.Scan(&data, &t.Version); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("decoding team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// PutTeam writes the ledger back if nobody else wrote it since it was read,
// and advances t.Version.
func (tx *Tx) PutTeam(ctx context.Context, t *hunt.Team) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE teams SET name = ?, data = jsonb(?), version = version + 1
		WHERE event_id = ? AND id = ? AND version = ?
	`, t.Name, string(data), t.EventID, t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("updating team: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errStale
	}
	t.Version++
	return nil
}

// ClaimGroup records that the team completed a location group. A second
// claim on the same group fails with Conflict.
func (tx *Tx) ClaimGroup(ctx context.Context, eventID, teamID, groupID, nodeID string) error {
	ok, err := insertOnce(ctx, tx.tx, `
		INSERT INTO group_claims (event_id, team_id, group_id, node_id) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, eventID, teamID, groupID, nodeID)
	if err != nil {
		return fmt.Errorf("claiming group: %w", err)
	}
	if !ok {
		return hunt.Errorf(hunt.CodeConflict, "location %q already claimed", groupID)
	}
	return nil
}

// InsertTrade records the team's single transaction at a checkpoint. A
// second trade at the same checkpoint fails with Conflict.
func (tx *Tx) InsertTrade(ctx context.Context, eventID, teamID string, tr hunt.Trade) error {
	ok, err := insertOnce(ctx, tx.tx, `
		INSERT INTO checkpoint_trades (event_id, team_id, node_id, offer_id, at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, eventID, teamID, tr.NodeID, tr.OfferID, unixNanos(tr.At))
	if err != nil {
		return fmt.Errorf("recording trade: %w", err)
	}
	if !ok {
		return hunt.Errorf(hunt.CodeConflict, "checkpoint %q already traded", tr.NodeID)
	}
	return nil
}
