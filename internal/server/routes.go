package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	e := deps.Engine
	authed := callerMiddleware(deps.Verifier, deps.Staff)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Treasure Hunt API", "/openapi.json", "/docs"))

	r.Route("/api", func(r chi.Router) {
		r.Use(batchMiddleware(deps.Graphs))

		// Staff auth.
		r.Post("/staff/login", handleStaffLogin(deps.Staff, logger))
		r.Post("/staff/logout", handleStaffLogout(deps.Staff))
		r.Get("/staff/me", handleStaffMe(deps.Staff))

		// Spectator reads are public; everything that changes a ledger
		// needs a caller.
		r.Get("/events", handleListEvents(e, logger))
		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/", handleGetEvent(e, logger))
			r.Get("/leaderboard", handleLeaderboard(e, logger))
			r.Get("/teams/{teamID}", handleGetTeam(e, logger))
			r.Get("/activity", handleActivityStream(e, logger))
			r.Get("/activity/ws", handleActivitySocket(e, logger))
			r.Get("/activity/recent", handleRecentActivity(e, logger))

			r.Group(func(r chi.Router) {
				r.Use(authed)
				r.Post("/teams/{teamID}/submissions", handleSubmit(e, logger))
				r.Get("/teams/{teamID}/submissions", handleTeamSubmissions(e, logger))
				r.Post("/submissions/{submissionID}/review", handleReview(e, logger))
				r.Post("/teams/{teamID}/buffs/{buffID}/apply", handleApplyBuff(e, logger))
				r.Post("/teams/{teamID}/checkpoints/{nodeID}/purchase", handlePurchase(e, logger))
			})
		})

		r.With(authed).Post("/chat/actions", handleChatAction(deps.Relay, logger))

		// Admin. The engine checks the admin role on every call.
		r.Route("/admin/events", func(r chi.Router) {
			r.Use(authed)
			r.Post("/", handleCreateEvent(e, logger))
			r.Put("/{eventID}/map", handlePutMap(e, logger))
			r.Post("/{eventID}/launch", handleLaunch(e, logger))
			r.Post("/{eventID}/complete", handleComplete(e, logger))
			r.Post("/{eventID}/teams", handleCreateTeam(e, logger))
			r.Post("/{eventID}/teams/{teamID}/adjustments", handleAdjustPot(e, logger))
			r.Get("/{eventID}/activity/archive", handleArchive(e, logger))
		})
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
