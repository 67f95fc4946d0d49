package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playperu/treasurehunt/internal/hunt"
)

// Staff is an organizer account that logs in with a password: admins and
// reviewers.
type Staff struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// Caller returns the identity staff act as.
func (s Staff) Caller() hunt.Caller {
	return hunt.Caller{ID: s.ID, Name: s.Email, Roles: s.Roles, Source: "staff"}
}

const (
	defaultAdminEmail = "admin@playperu.com"
	// bcrypt of "changeme".
	defaultAdminHash = "$2a$10$trCdqP4npsbw0R1vQxVwXeT1HebzRmP01SXaNGPz1eSAZ7mpcL0Uu"
)

// SeedStaff creates the default admin account when no staff exist yet.
func (s *Store) SeedStaff(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staff`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := s.CreateStaff(ctx, defaultAdminEmail, defaultAdminHash, []string{hunt.RoleAdmin})
	return err
}

func (s *Store) CreateStaff(ctx context.Context, email, passwordHash string, roles []string) (Staff, error) {
	st := Staff{ID: newID(), Email: strings.ToLower(strings.TrimSpace(email)), Roles: roles}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return Staff{}, err
	}
	ok, err := insertOnce(ctx, s.db, `
		INSERT INTO staff (id, email, password_hash, roles) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, st.ID, st.Email, passwordHash, string(rolesJSON))
	if err != nil {
		return Staff{}, fmt.Errorf("inserting staff: %w", err)
	}
	if !ok {
		return Staff{}, hunt.Errorf(hunt.CodeConflict, "staff %q already exists", st.Email)
	}
	return st, nil
}

// StaffByEmail returns the account and its password hash.
func (s *Store) StaffByEmail(ctx context.Context, email string) (Staff, string, error) {
	var st Staff
	var hash, roles string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, roles FROM staff WHERE email = ?
	`, email).Scan(&st.ID, &st.Email, &hash, &roles)
	if err != nil {
		return Staff{}, "", notFoundOr(err, "staff %q not found", email)
	}
	if err := json.Unmarshal([]byte(roles), &st.Roles); err != nil {
		return Staff{}, "", err
	}
	return st, hash, nil
}

func (s *Store) CreateStaffSession(ctx context.Context, staffID string) (string, error) {
	sessionID := newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_sessions (id, staff_id, created_at) VALUES (?, ?, ?)
	`, sessionID, staffID, unixNanos(time.Now()))
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return sessionID, nil
}

func (s *Store) StaffFromSession(ctx context.Context, sessionID string) (Staff, error) {
	var st Staff
	var roles string
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.email, s.roles
		FROM staff_sessions ss
		JOIN staff s ON s.id = ss.staff_id
		WHERE ss.id = ?
	`, sessionID).Scan(&st.ID, &st.Email, &roles)
	if err != nil {
		return Staff{}, notFoundOr(err, "session not found")
	}
	if err := json.Unmarshal([]byte(roles), &st.Roles); err != nil {
		return Staff{}, err
	}
	return st, nil
}

func (s *Store) DeleteStaffSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM staff_sessions WHERE id = ?`, sessionID)
	return err
}
