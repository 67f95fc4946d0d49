package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/store"
)

// CreateEvent creates an event in draft. An empty id is generated.
func (e *Engine) CreateEvent(ctx context.Context, caller hunt.Caller, id, name string) (ev hunt.Event, err error) {
	ctx, span := e.start(ctx, "CreateEvent")
	defer func() { finish(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return hunt.Event{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return hunt.Event{}, hunt.Errorf(hunt.CodeInvalidInput, "event name is required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	ev = hunt.Event{ID: id, Name: name, Status: hunt.EventStatusDraft, CreatedAt: e.now()}
	if err := e.store.CreateEvent(ctx, ev); err != nil {
		return hunt.Event{}, err
	}
	e.logger.Info("event created", "event", ev.ID, "by", caller.ID)
	return ev, nil
}

// RegenerateMap replaces the event's node graph. Only draft events can be
// regenerated; the cached graph is dropped once the new one is stored.
func (e *Engine) RegenerateMap(ctx context.Context, caller hunt.Caller, eventID string, nodes []hunt.Node) (g *hunt.Graph, err error) {
	ctx, span := e.start(ctx, "RegenerateMap", attribute.String("event.id", eventID))
	defer func() { finish(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := hunt.ValidateMap(nodes); err != nil {
		return nil, err
	}
	err = e.inTx(ctx, func(tx *store.Tx, out *outbox) error {
		var err error
		if g, err = tx.ReplaceGraph(ctx, eventID, nodes); err != nil {
			return err
		}
		return out.record(ctx, eventID, "", hunt.ActivityMapRegenerated, map[string]any{
			"generation": g.Generation,
			"nodes":      g.Len(),
		})
	})
	if err != nil {
		return nil, err
	}
	e.graphs.Invalidate(eventID)
	return g, nil
}

// CreateTeam registers a team. Teams joining an event that is already
// running get their entry nodes opened right away.
func (e *Engine) CreateTeam(ctx context.Context, caller hunt.Caller, eventID, id, name string, members []string, role string) (t hunt.Team, err error) {
	ctx, span := e.start(ctx, "CreateTeam", attribute.String("event.id", eventID))
	defer func() { finish(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return hunt.Team{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return hunt.Team{}, hunt.Errorf(hunt.CodeInvalidInput, "team name is required")
	}
	if len(members) == 0 && role == "" {
		return hunt.Team{}, hunt.Errorf(hunt.CodeInvalidInput, "a team needs members or a chat role")
	}
	if id == "" {
		id = uuid.NewString()
	}
	g, err := e.graphs.Graph(ctx, eventID)
	if err != nil {
		return hunt.Team{}, err
	}

	err = e.inTx(ctx, func(tx *store.Tx, out *outbox) error {
		ev, err := tx.Event(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Status == hunt.EventStatusCompleted {
			return hunt.Errorf(hunt.CodeInvalidState, "event has finished")
		}
		t = hunt.NewTeam(id, eventID, name, members, role)
		if err := tx.InsertTeam(ctx, t); err != nil {
			return err
		}
		if ev.Status != hunt.EventStatusActive {
			t, err = tx.Team(ctx, eventID, id)
			return err
		}
		boot, err := e.ledger.Bootstrap(ctx, tx, g, id)
		if err != nil {
			return err
		}
		t = boot.Team
		return out.changes(ctx, eventID, id, boot.Changes)
	})
	if err != nil {
		return hunt.Team{}, err
	}
	return t, nil
}

// Launch starts the event: it moves to active and every team's ledger is
// bootstrapped, all in one transaction.
func (e *Engine) Launch(ctx context.Context, caller hunt.Caller, eventID string) (ev hunt.Event, err error) {
	ctx, span := e.start(ctx, "Launch", attribute.String("event.id", eventID))
	defer func() { finish(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return hunt.Event{}, err
	}
	g, err := e.graphs.Graph(ctx, eventID)
	if err != nil {
		return hunt.Event{}, err
	}
	if g.Len() == 0 {
		return hunt.Event{}, hunt.Errorf(hunt.CodeInvalidState, "event has no map")
	}

	err = e.inTx(ctx, func(tx *store.Tx, out *outbox) error {
		if err := tx.SetEventStatus(ctx, eventID, hunt.EventStatusDraft, hunt.EventStatusActive); err != nil {
			return err
		}
		if err := out.record(ctx, eventID, "", hunt.ActivityEventLaunched, map[string]any{
			"generation": g.Generation,
		}); err != nil {
			return err
		}
		teams, err := tx.Teams(ctx, eventID)
		if err != nil {
			return err
		}
		for _, t := range teams {
			boot, err := e.ledger.Bootstrap(ctx, tx, g, t.ID)
			if err != nil {
				return err
			}
			if err := out.changes(ctx, eventID, t.ID, boot.Changes); err != nil {
				return err
			}
		}
		ev, err = tx.Event(ctx, eventID)
		return err
	})
	if err != nil {
		return hunt.Event{}, err
	}
	e.logger.Info("event launched", "event", eventID, "by", caller.ID)
	return ev, nil
}

// Complete ends the event. Ledgers are frozen from then on.
func (e *Engine) Complete(ctx context.Context, caller hunt.Caller, eventID string) (ev hunt.Event, err error) {
	ctx, span := e.start(ctx, "Complete", attribute.String("event.id", eventID))
	defer func() { finish(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return hunt.Event{}, err
	}
	err = e.inTx(ctx, func(tx *store.Tx, out *outbox) error {
		if err := tx.SetEventStatus(ctx, eventID, hunt.EventStatusActive, hunt.EventStatusCompleted); err != nil {
			return err
		}
		if ev, err = tx.Event(ctx, eventID); err != nil {
			return err
		}
		return out.record(ctx, eventID, "", hunt.ActivityEventCompleted, nil)
	})
	if err != nil {
		return hunt.Event{}, err
	}
	e.logger.Info("event completed", "event", eventID, "by", caller.ID)
	return ev, nil
}
