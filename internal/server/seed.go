package server

import (
	"context"
	"log/slog"

	"github.com/playperu/treasurehunt/internal/engine"
	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/mapdef"
)

var seedCaller = hunt.Caller{ID: "system", Name: "seed", Roles: []string{hunt.RoleAdmin}, Source: "staff"}

// SeedDemo creates and launches the demo event with two teams if no events
// exist. Idempotent: does nothing if any event exists.
func SeedDemo(ctx context.Context, logger *slog.Logger, e *engine.Engine) error {
	existing, err := e.Events(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	def, err := mapdef.Parse(mapdef.Demo)
	if err != nil {
		return err
	}

	ev, err := e.CreateEvent(ctx, seedCaller, "demo", def.Name)
	if err != nil {
		return err
	}
	if _, err := e.RegenerateMap(ctx, seedCaller, ev.ID, def.Nodes); err != nil {
		return err
	}
	for _, t := range []struct{ id, name, role string }{
		{"red", "Red Team", "team-red"},
		{"blue", "Blue Team", "team-blue"},
	} {
		if _, err := e.CreateTeam(ctx, seedCaller, ev.ID, t.id, t.name, nil, t.role); err != nil {
			return err
		}
	}
	if _, err := e.Launch(ctx, seedCaller, ev.ID); err != nil {
		return err
	}

	logger.Info("demo event created and launched", "event_id", ev.ID, "nodes", len(def.Nodes))
	return nil
}
