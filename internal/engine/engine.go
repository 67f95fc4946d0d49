// Package engine runs the treasure hunt: it validates callers, reads node
// graphs through the read-path cache and mutates team ledgers inside store
// transactions. Activity is written in the same transaction and delivered
// to subscribers once it has committed.
package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/playperu/treasurehunt/internal/activity"
	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/ledger"
	"github.com/playperu/treasurehunt/internal/readcache"
	"github.com/playperu/treasurehunt/internal/store"
)

type Engine struct {
	store    *store.Store
	graphs   *readcache.Cache
	ledger   *ledger.Ledger
	activity *activity.Broadcaster
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func New(st *store.Store, graphs *readcache.Cache, bc *activity.Broadcaster, logger *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		graphs:   graphs,
		ledger:   ledger.New(),
		activity: bc,
		logger:   logger,
		tracer:   otel.Tracer("github.com/playperu/treasurehunt/internal/engine"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Result is what a ledger mutation returns to its caller.
type Result struct {
	Team     hunt.Team `json:"team"`
	Unlocked []string  `json:"unlocked,omitempty"`
	Finished bool      `json:"finished,omitempty"`
	Replayed bool      `json:"replayed,omitempty"`
}

func resultOf(o ledger.Outcome) *Result {
	return &Result{Team: o.Team, Unlocked: o.Unlocked, Finished: o.Finished, Replayed: o.Replayed}
}

func (e *Engine) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "engine."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if c := hunt.CodeOf(err); c != "" {
			span.SetAttributes(attribute.String("hunt.error_code", string(c)))
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// graph returns the event's node graph, through the request batch when one
// is installed.
func (e *Engine) graph(ctx context.Context, eventID string) (*hunt.Graph, error) {
	if b := readcache.FromContext(ctx); b != nil {
		return b.Graph(ctx, eventID)
	}
	return e.graphs.Graph(ctx, eventID)
}

func requireCaller(c hunt.Caller) error {
	if c.ID == "" {
		return hunt.Errorf(hunt.CodeUnauthorized, "caller identity is required")
	}
	return nil
}

func requireAdmin(c hunt.Caller) error {
	if err := requireCaller(c); err != nil {
		return err
	}
	if !c.HasRole(hunt.RoleAdmin) {
		return hunt.Errorf(hunt.CodeUnauthorized, "admin role required")
	}
	return nil
}

func requireMember(t *hunt.Team, c hunt.Caller) error {
	if err := requireCaller(c); err != nil {
		return err
	}
	if !t.IsMember(c) {
		return hunt.Errorf(hunt.CodeUnauthorized, "caller is not a member of team %q", t.ID)
	}
	return nil
}
