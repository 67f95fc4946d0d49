package engine

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"

	"github.com/playperu/treasurehunt/internal/activity"
	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/readcache"
)

type EventView struct {
	Event  hunt.Event           `json:"event"`
	Nodes  []hunt.Node          `json:"nodes"`
	Groups []hunt.LocationGroup `json:"groups"`
}

// WorkableNode is a node the team can currently work on, with the quantity
// it must reach after buffs.
type WorkableNode struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Kind      hunt.NodeKind   `json:"kind"`
	Tier      string          `json:"tier,omitempty"`
	GroupID   string          `json:"groupId,omitempty"`
	Objective *hunt.Objective `json:"objective,omitempty"`
	Required  int             `json:"required"`
	Offers    []hunt.Offer    `json:"offers,omitempty"`
}

type TeamView struct {
	Team     hunt.Team      `json:"team"`
	Workable []WorkableNode `json:"workable"`
	// Checkpoints lists reached checkpoints the team has not traded at.
	Checkpoints []WorkableNode `json:"checkpoints"`
}

func (e *Engine) event(ctx context.Context, id string) (hunt.Event, error) {
	if b := readcache.FromContext(ctx); b != nil {
		return b.Event(ctx, id)
	}
	return e.store.Event(ctx, id)
}

func (e *Engine) team(ctx context.Context, eventID, teamID string) (hunt.Team, error) {
	if b := readcache.FromContext(ctx); b != nil {
		return b.Team(ctx, eventID, teamID)
	}
	return e.store.Team(ctx, eventID, teamID)
}

// Event returns an event with its node graph.
func (e *Engine) Event(ctx context.Context, eventID string) (v EventView, err error) {
	ctx, span := e.start(ctx, "Event", attribute.String("event.id", eventID))
	defer func() { finish(span, err) }()

	ev, err := e.event(ctx, eventID)
	if err != nil {
		return EventView{}, err
	}
	g, err := e.graph(ctx, eventID)
	if err != nil {
		return EventView{}, err
	}
	return EventView{Event: ev, Nodes: g.Nodes(), Groups: g.Groups()}, nil
}

func (e *Engine) Events(ctx context.Context) ([]hunt.Event, error) {
	return e.store.Events(ctx)
}

// Team returns a team's ledger and the nodes it can work on. Siblings of a
// claimed location group are left out.
func (e *Engine) Team(ctx context.Context, eventID, teamID string) (v TeamView, err error) {
	ctx, span := e.start(ctx, "Team", attribute.String("event.id", eventID), attribute.String("team.id", teamID))
	defer func() { finish(span, err) }()

	t, err := e.team(ctx, eventID, teamID)
	if err != nil {
		return TeamView{}, err
	}
	g, err := e.graph(ctx, eventID)
	if err != nil {
		return TeamView{}, err
	}

	v = TeamView{Team: t, Workable: []WorkableNode{}, Checkpoints: []WorkableNode{}}
	for _, id := range g.Workable(&t) {
		n, _ := g.Node(id)
		v.Workable = append(v.Workable, workable(&t, n))
	}
	for _, n := range g.Nodes() {
		if n.Kind != hunt.NodeCheckpoint || !t.IsAvailable(n.ID) {
			continue
		}
		if _, traded := t.Trade(n.ID); traded {
			continue
		}
		v.Checkpoints = append(v.Checkpoints, workable(&t, n))
	}
	return v, nil
}

func workable(t *hunt.Team, n hunt.Node) WorkableNode {
	return WorkableNode{
		ID:        n.ID,
		Name:      n.Name,
		Kind:      n.Kind,
		Tier:      n.Tier,
		GroupID:   n.GroupID,
		Objective: n.Objective,
		Required:  t.Requirement(n),
		Offers:    n.Offers,
	}
}

// Teams lists an event's teams.
func (e *Engine) Teams(ctx context.Context, eventID string) ([]hunt.Team, error) {
	if _, err := e.event(ctx, eventID); err != nil {
		return nil, err
	}
	return e.store.Teams(ctx, eventID)
}

// Leaderboard ranks an event's teams by pot, then completed nodes.
func (e *Engine) Leaderboard(ctx context.Context, eventID string) (standings []hunt.Standing, err error) {
	ctx, span := e.start(ctx, "Leaderboard", attribute.String("event.id", eventID))
	defer func() { finish(span, err) }()

	teams, err := e.Teams(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return hunt.Rank(teams), nil
}

// RecentActivity returns up to limit of the event's latest activities,
// oldest first.
func (e *Engine) RecentActivity(ctx context.Context, eventID string, limit int) ([]hunt.Activity, error) {
	if _, err := e.event(ctx, eventID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, hunt.Errorf(hunt.CodeInvalidInput, "limit must be positive")
	}
	acts, err := e.activity.Recent(ctx, eventID, limit)
	if err != nil {
		return nil, err
	}
	if acts == nil {
		acts = []hunt.Activity{}
	}
	return acts, nil
}

// Subscribe opens a live activity stream for an event.
func (e *Engine) Subscribe(ctx context.Context, eventID string) (*activity.Subscription, error) {
	if _, err := e.store.Event(ctx, eventID); err != nil {
		return nil, err
	}
	return e.activity.Subscribe(ctx, eventID)
}

// WriteArchive exports an event's full activity stream. Admin only.
func (e *Engine) WriteArchive(ctx context.Context, caller hunt.Caller, w io.Writer, eventID string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if _, err := e.store.Event(ctx, eventID); err != nil {
		return err
	}
	return e.activity.WriteArchive(ctx, w, eventID)
}
