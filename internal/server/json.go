package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/playperu/treasurehunt/internal/hunt"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps a domain error code to its HTTP status.
func statusFor(code hunt.Code) int {
	switch code {
	case hunt.CodeNotFound:
		return http.StatusNotFound
	case hunt.CodeConflict, hunt.CodeInvalidState, hunt.CodeNodeNotAvailable:
		return http.StatusConflict
	case hunt.CodeInvalidInput:
		return http.StatusBadRequest
	case hunt.CodeUnauthorized:
		return http.StatusForbidden
	case hunt.CodeExhausted, hunt.CodeInvalidBuffTarget:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError reports err to the client. Domain errors carry their
// reason and code; anything else is logged and hidden.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := hunt.CodeOf(err)
	if code == "" {
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, statusFor(code), ErrorResponse{Error: err.Error(), Code: string(code)})
}
