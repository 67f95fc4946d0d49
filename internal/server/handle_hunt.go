package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/treasurehunt/internal/engine"
	"github.com/playperu/treasurehunt/internal/hunt"
)

// idempotencyHeader carries a client-chosen key that makes a buff or
// checkpoint request safe to retry.
const idempotencyHeader = "Idempotency-Key"

// SubmitRequest is the request body for POST …/teams/{teamID}/submissions.
type SubmitRequest struct {
	NodeID string `json:"nodeId"`
	Proof  string `json:"proof"`
}

// ReviewRequest is the request body for POST …/submissions/{id}/review.
type ReviewRequest struct {
	Decision hunt.Decision `json:"decision" enum:"approve,deny"`
	Reason   string        `json:"reason,omitempty"`
}

// ApplyBuffRequest is the request body for POST …/buffs/{buffID}/apply.
type ApplyBuffRequest struct {
	NodeID string `json:"nodeId"`
}

// PurchaseRequest is the request body for POST …/checkpoints/{nodeID}/purchase.
type PurchaseRequest struct {
	OfferID string `json:"offerId"`
}

func handleListEvents(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := e.Events(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func handleGetEvent(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := e.Event(r.Context(), chi.URLParam(r, "eventID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleLeaderboard(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		standings, err := e.Leaderboard(r.Context(), chi.URLParam(r, "eventID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, standings)
	}
}

func handleGetTeam(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := e.Team(r.Context(), chi.URLParam(r, "eventID"), chi.URLParam(r, "teamID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleSubmit(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sub, err := e.Submit(r.Context(), callerFrom(r),
			chi.URLParam(r, "eventID"), chi.URLParam(r, "teamID"), req.NodeID, req.Proof)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	}
}

func handleTeamSubmissions(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := e.TeamSubmissions(r.Context(), callerFrom(r),
			chi.URLParam(r, "eventID"), chi.URLParam(r, "teamID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, subs)
	}
}

func handleReview(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReviewRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := e.Review(r.Context(), callerFrom(r),
			chi.URLParam(r, "eventID"), chi.URLParam(r, "submissionID"), req.Decision, req.Reason)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleApplyBuff(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ApplyBuffRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := e.ApplyBuff(r.Context(), callerFrom(r),
			chi.URLParam(r, "eventID"), chi.URLParam(r, "teamID"),
			chi.URLParam(r, "buffID"), req.NodeID, r.Header.Get(idempotencyHeader))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handlePurchase(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PurchaseRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := e.PurchaseCheckpoint(r.Context(), callerFrom(r),
			chi.URLParam(r, "eventID"), chi.URLParam(r, "teamID"),
			chi.URLParam(r, "nodeID"), req.OfferID, r.Header.Get(idempotencyHeader))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
