package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/treasurehunt/internal/chat"
	"github.com/playperu/treasurehunt/internal/engine"
	"github.com/playperu/treasurehunt/internal/handler/health"
	"github.com/playperu/treasurehunt/internal/hunt"
)

// ErrorResponse is returned for all error responses. Code is set for
// domain errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type operation struct {
	method, path, summary, description string
	req                                any
	resp                               any
	status                             int
	contentType                        string
	errors                             []int
}

var operations = []operation{
	{
		method: http.MethodGet, path: "/healthz",
		summary:     "Health check",
		description: "Reports the status of SQLite and, when configured, the shared graph cache.",
		resp:        health.Report{}, status: http.StatusOK,
		errors: []int{http.StatusServiceUnavailable},
	},
	{
		method: http.MethodPost, path: "/api/staff/login",
		summary:     "Staff login",
		description: "Authenticate with email and password. Sets the staff_session cookie.",
		req:         StaffLoginRequest{}, resp: StaffMeResponse{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized},
	},
	{
		method: http.MethodPost, path: "/api/staff/logout",
		summary: "Staff logout", description: "Deletes the session and clears the cookie.",
		status: http.StatusOK,
	},
	{
		method: http.MethodGet, path: "/api/staff/me",
		summary: "Current staff member", description: "Returns the staff member behind the session cookie.",
		resp: StaffMeResponse{}, status: http.StatusOK,
		errors: []int{http.StatusUnauthorized},
	},
	{
		method: http.MethodGet, path: "/api/events",
		summary: "List events", description: "Returns every event, newest first.",
		resp: []hunt.Event{}, status: http.StatusOK,
	},
	{
		method: http.MethodGet, path: "/api/events/{eventID}",
		summary: "Fetch event", description: "Returns the event with its map and location groups.",
		resp: engine.EventView{}, status: http.StatusOK,
		errors: []int{http.StatusNotFound},
	},
	{
		method: http.MethodGet, path: "/api/events/{eventID}/leaderboard",
		summary: "Leaderboard", description: "Teams ranked by pot, then completed nodes.",
		resp: []hunt.Standing{}, status: http.StatusOK,
		errors: []int{http.StatusNotFound},
	},
	{
		method: http.MethodGet, path: "/api/events/{eventID}/teams/{teamID}",
		summary:     "Fetch team",
		description: "Returns the team ledger with the nodes it can work on and the checkpoints it can trade at.",
		resp:        engine.TeamView{}, status: http.StatusOK,
		errors: []int{http.StatusNotFound},
	},
	{
		method: http.MethodPost, path: "/api/events/{eventID}/teams/{teamID}/submissions",
		summary:     "Submit proof",
		description: "Creates a pending submission for a workable node. Requires a team member.",
		req:         SubmitRequest{}, resp: hunt.Submission{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	},
	{
		method: http.MethodGet, path: "/api/events/{eventID}/teams/{teamID}/submissions",
		summary: "List team submissions", description: "Visible to team members and reviewers.",
		resp: []hunt.Submission{}, status: http.StatusOK,
		errors: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	},
	{
		method: http.MethodPost, path: "/api/events/{eventID}/submissions/{submissionID}/review",
		summary:     "Review submission",
		description: "Approves or denies a pending submission. Approval credits rewards and unlocks nodes exactly once.",
		req:         ReviewRequest{}, resp: engine.ReviewResult{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	},
	{
		method: http.MethodPost, path: "/api/events/{eventID}/teams/{teamID}/buffs/{buffID}/apply",
		summary:     "Apply buff",
		description: "Consumes one use of a buff to reduce a workable node's required quantity. Honors the Idempotency-Key header.",
		req:         ApplyBuffRequest{}, resp: engine.Result{}, status: http.StatusOK,
		errors: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	},
	{
		method: http.MethodPost, path: "/api/events/{eventID}/teams/{teamID}/checkpoints/{nodeID}/purchase",
		summary:     "Trade at checkpoint",
		description: "Spends keys on one of the checkpoint's offers. Each team trades once per checkpoint. Honors the Idempotency-Key header.",
		req:         PurchaseRequest{}, resp: engine.Result{}, status: http.StatusOK,
		errors: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	},
	{
		method: http.MethodGet, path: "/api/events/{eventID}/activity",
		summary:     "Activity stream",
		description: "Server-Sent Events stream of the event's activity. Replays recent history first.",
		status:      http.StatusOK, contentType: "text/event-stream",
		errors: []int{http.StatusNotFound},
	},
	{
		method: http.MethodGet, path: "/api/events/{eventID}/activity/ws",
		summary: "Activity socket", description: "The activity stream over a WebSocket, one JSON message per activity.",
		status: http.StatusSwitchingProtocols, contentType: "application/json",
		errors: []int{http.StatusNotFound},
	},
	{
		method: http.MethodGet, path: "/api/events/{eventID}/activity/recent",
		summary: "Recent activity", description: "The latest activity, oldest first. Takes a limit query parameter.",
		resp: []hunt.Activity{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusNotFound},
	},
	{
		method: http.MethodPost, path: "/api/chat/actions",
		summary:     "Chat relay action",
		description: "Runs a command relayed by the chat bot for the team the caller belongs to in the channel's event.",
		req:         chat.Action{}, resp: chat.Reply{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	},
	{
		method: http.MethodPost, path: "/api/admin/events",
		summary: "Create event", description: "Creates a draft event. Admin only.",
		req: CreateEventRequest{}, resp: hunt.Event{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	},
	{
		method: http.MethodPut, path: "/api/admin/events/{eventID}/map",
		summary:     "Replace map",
		description: "Replaces a draft event's map with a YAML or JSON definition. Admin only.",
		resp:        MapResponse{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusRequestEntityTooLarge},
	},
	{
		method: http.MethodPost, path: "/api/admin/events/{eventID}/launch",
		summary: "Launch event", description: "Activates a draft event and bootstraps every team. Admin only.",
		resp: hunt.Event{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	},
	{
		method: http.MethodPost, path: "/api/admin/events/{eventID}/complete",
		summary: "Complete event", description: "Freezes every team ledger. Admin only.",
		resp: hunt.Event{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	},
	{
		method: http.MethodPost, path: "/api/admin/events/{eventID}/teams",
		summary: "Create team", description: "Registers a team by member IDs or chat role. Admin only.",
		req: CreateTeamRequest{}, resp: hunt.Team{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	},
	{
		method: http.MethodPost, path: "/api/admin/events/{eventID}/teams/{teamID}/adjustments",
		summary: "Adjust pot", description: "Credits or debits a team's pot with a reason. Admin only.",
		req: AdjustPotRequest{}, resp: engine.Result{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	},
	{
		method: http.MethodGet, path: "/api/admin/events/{eventID}/activity/archive",
		summary: "Activity archive", description: "The event's full activity as zstd-compressed JSON lines. Admin only.",
		status: http.StatusOK, contentType: "application/zstd",
		errors: []int{http.StatusForbidden, http.StatusNotFound},
	},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Treasure Hunt API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Progression engine for team treasure hunts: submissions, rewards, buffs, checkpoints and live activity.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.description)
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		if op.contentType != "" {
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(op.status), openapi.WithContentType(op.contentType))
		} else {
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(op.status))
		}
		for _, status := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
