package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/treasurehunt/internal/engine"
	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/mapdef"
)

const maxMapBytes = 1 << 20

// CreateEventRequest is the request body for POST /api/admin/events.
type CreateEventRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// CreateTeamRequest is the request body for POST /api/admin/events/{eventID}/teams.
type CreateTeamRequest struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
	Role    string   `json:"role,omitempty"`
}

// AdjustPotRequest is the request body for POST …/teams/{teamID}/adjustments.
type AdjustPotRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// MapResponse summarizes an uploaded map.
type MapResponse struct {
	Name   string               `json:"name"`
	Nodes  int                  `json:"nodes"`
	Groups []hunt.LocationGroup `json:"groups"`
}

func handleCreateEvent(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEventRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ev, err := e.CreateEvent(r.Context(), callerFrom(r), req.ID, req.Name)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, ev)
	}
}

// handlePutMap replaces a draft event's map with a YAML or JSON definition.
func handlePutMap(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		data, err := io.ReadAll(io.LimitReader(r.Body, maxMapBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(data) > maxMapBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "map definition too large")
			return
		}

		def, err := mapdef.Parse(data)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		g, err := e.RegenerateMap(r.Context(), callerFrom(r), chi.URLParam(r, "eventID"), def.Nodes)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, MapResponse{Name: def.Name, Nodes: g.Len(), Groups: g.Groups()})
	}
}

func handleLaunch(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := e.Launch(r.Context(), callerFrom(r), chi.URLParam(r, "eventID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

func handleComplete(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := e.Complete(r.Context(), callerFrom(r), chi.URLParam(r, "eventID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

func handleCreateTeam(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTeamRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		t, err := e.CreateTeam(r.Context(), callerFrom(r), chi.URLParam(r, "eventID"),
			req.ID, req.Name, req.Members, req.Role)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func handleAdjustPot(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdjustPotRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := e.AdjustPot(r.Context(), callerFrom(r),
			chi.URLParam(r, "eventID"), chi.URLParam(r, "teamID"),
			req.Amount, req.Reason, r.Header.Get(idempotencyHeader))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleArchive exports the event's activity as zstd-compressed JSON lines.
func handleArchive(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")
		var buf bytes.Buffer
		if err := e.WriteArchive(r.Context(), callerFrom(r), &buf, eventID); err != nil {
			writeDomainError(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", "application/zstd")
		w.Header().Set("Content-Disposition", `attachment; filename="`+eventID+`-activity.jsonl.zst"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}
