package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playperu/treasurehunt/internal/hunt"
)

// InsertSubmission stores a new pending submission. Only one submission per
// team and node may be pending at a time; a second one fails with Conflict.
func (tx *Tx) InsertSubmission(ctx context.Context, s *hunt.Submission) error {
	if s.ID == "" {
		s.ID = newID()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := insertOnce(ctx, tx.tx, `
		INSERT INTO submissions (id, event_id, team_id, node_id, status, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, jsonb(?))
		ON CONFLICT DO NOTHING
	`, s.ID, s.EventID, s.TeamID, s.NodeID, s.Status, unixNanos(s.CreatedAt), string(data))
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	if !ok {
		return hunt.Errorf(hunt.CodeConflict, "a submission for node %q is already pending review", s.NodeID)
	}
	return nil
}

func (s *Store) Submission(ctx context.Context, id string) (hunt.Submission, error) {
	var sub hunt.Submission
	err := getDoc(ctx, s.db, &sub, fmt.Sprintf("submission %q not found", id),
		`SELECT json(data) FROM submissions WHERE id = ?`, id)
	return sub, err
}

func (tx *Tx) Submission(ctx context.Context, id string) (hunt.Submission, error) {
	var sub hunt.Submission
	err := getDoc(ctx, tx.tx, &sub, fmt.Sprintf("submission %q not found", id),
		`SELECT json(data) FROM submissions WHERE id = ?`, id)
	return sub, err
}

// FinishSubmission persists a reviewed submission. The write only happens
// while the stored row is still pending, so of two racing reviews exactly
// one succeeds; the other gets Conflict.
func (tx *Tx) FinishSubmission(ctx context.Context, s hunt.Submission) error {
	if s.Status == hunt.SubmissionPending {
		return fmt.Errorf("finishing submission %s: status is still pending", s.ID)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE submissions SET status = ?, data = jsonb(?)
		WHERE id = ? AND status = 'PENDING'
	`, s.Status, string(data), s.ID)
	if err != nil {
		return fmt.Errorf("updating submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return hunt.Errorf(hunt.CodeConflict, "submission %q already reviewed", s.ID)
	}
	return nil
}

// TeamSubmissions lists a team's submissions, oldest first.
func (s *Store) TeamSubmissions(ctx context.Context, eventID, teamID string) ([]hunt.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT json(data) FROM submissions
		WHERE event_id = ? AND team_id = ?
		ORDER BY created_at, id
	`, eventID, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []hunt.Submission{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var sub hunt.Submission
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, fmt.Errorf("decoding submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
