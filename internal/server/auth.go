package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/identity"
	"github.com/playperu/treasurehunt/internal/store"
)

const staffCookieName = "staff_session"

var errNoCredentials = errors.New("no credentials")

// StaffStore is the staff account storage the server authenticates against.
type StaffStore interface {
	StaffByEmail(ctx context.Context, email string) (store.Staff, string, error)
	CreateStaffSession(ctx context.Context, staffID string) (string, error)
	StaffFromSession(ctx context.Context, sessionID string) (store.Staff, error)
	DeleteStaffSession(ctx context.Context, sessionID string) error
}

// callerFromRequest resolves the caller from a bearer identity token or,
// failing that, a staff session cookie. Tokens may also arrive in the token
// query parameter, since EventSource and WebSocket clients cannot set
// headers.
func callerFromRequest(r *http.Request, verifier *identity.Verifier, staff StaffStore) (hunt.Caller, error) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		token = r.URL.Query().Get("token")
	}
	if token != "" {
		return verifier.Verify(token)
	}

	cookie, err := r.Cookie(staffCookieName)
	if err != nil || cookie.Value == "" {
		return hunt.Caller{}, errNoCredentials
	}
	s, err := staff.StaffFromSession(r.Context(), cookie.Value)
	if err != nil {
		return hunt.Caller{}, err
	}
	return s.Caller(), nil
}
