// Package chat turns actions relayed by the chat bot into engine calls. The
// bot has already parsed the command and signed the caller's identity; this
// package only decides which event and team the action is for.
package chat

import (
	"context"
	"strings"

	"github.com/playperu/treasurehunt/internal/engine"
	"github.com/playperu/treasurehunt/internal/hunt"
)

// Action types a relay may send.
const (
	ActionSubmit    = "submit"
	ActionApplyBuff = "apply_buff"
	ActionPurchase  = "purchase"
	ActionStatus    = "status"
)

type Action struct {
	Channel string `json:"channel"`
	Type    string `json:"type"`
	NodeID  string `json:"nodeId,omitempty"`
	Proof   string `json:"proof,omitempty"`
	BuffID  string `json:"buffId,omitempty"`
	OfferID string `json:"offerId,omitempty"`
	// MessageID identifies the chat message, so a relay retry is not
	// applied twice.
	MessageID string `json:"messageId,omitempty"`
}

type Reply struct {
	EventID    string           `json:"eventId"`
	TeamID     string           `json:"teamId"`
	Submission *hunt.Submission `json:"submission,omitempty"`
	Result     *engine.Result   `json:"result,omitempty"`
	Team       *engine.TeamView `json:"team,omitempty"`
}

// Engine is the part of the engine the relay drives.
type Engine interface {
	Teams(ctx context.Context, eventID string) ([]hunt.Team, error)
	Team(ctx context.Context, eventID, teamID string) (engine.TeamView, error)
	Submit(ctx context.Context, caller hunt.Caller, eventID, teamID, nodeID, proof string) (hunt.Submission, error)
	ApplyBuff(ctx context.Context, caller hunt.Caller, eventID, teamID, buffID, nodeID, key string) (*engine.Result, error)
	PurchaseCheckpoint(ctx context.Context, caller hunt.Caller, eventID, teamID, checkpointID, offerID, key string) (*engine.Result, error)
}

type Relay struct {
	engine   Engine
	channels map[string]string
}

// NewRelay returns a relay that maps chat channels to events.
func NewRelay(e Engine, channels map[string]string) *Relay {
	return &Relay{engine: e, channels: channels}
}

// EventFor returns the event a chat channel is linked to.
func (r *Relay) EventFor(channel string) (string, error) {
	ev, ok := r.channels[strings.TrimSpace(channel)]
	if !ok || ev == "" {
		return "", hunt.Errorf(hunt.CodeNotFound, "channel %q is not linked to an event", channel)
	}
	return ev, nil
}

// TeamFor picks the team the caller acts for: the one listing the caller as
// a member or whose chat role the caller holds. A caller matching several
// teams is rejected rather than guessed.
func TeamFor(teams []hunt.Team, caller hunt.Caller) (hunt.Team, error) {
	var found []hunt.Team
	for _, t := range teams {
		if t.IsMember(caller) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return hunt.Team{}, hunt.Errorf(hunt.CodeUnauthorized, "you are not on a team in this event")
	case 1:
		return found[0], nil
	default:
		names := make([]string, len(found))
		for i, t := range found {
			names[i] = t.Name
		}
		return hunt.Team{}, hunt.Errorf(hunt.CodeInvalidInput, "you are on several teams (%s)", strings.Join(names, ", "))
	}
}

// Do resolves the action's event and team and runs it.
func (r *Relay) Do(ctx context.Context, caller hunt.Caller, a Action) (Reply, error) {
	if caller.ID == "" {
		return Reply{}, hunt.Errorf(hunt.CodeUnauthorized, "caller identity is required")
	}
	eventID, err := r.EventFor(a.Channel)
	if err != nil {
		return Reply{}, err
	}
	teams, err := r.engine.Teams(ctx, eventID)
	if err != nil {
		return Reply{}, err
	}
	team, err := TeamFor(teams, caller)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{EventID: eventID, TeamID: team.ID}
	key := ""
	if a.MessageID != "" {
		key = "chat:" + a.MessageID
	}

	switch a.Type {
	case ActionSubmit:
		sub, err := r.engine.Submit(ctx, caller, eventID, team.ID, a.NodeID, a.Proof)
		if err != nil {
			return Reply{}, err
		}
		reply.Submission = &sub
	case ActionApplyBuff:
		res, err := r.engine.ApplyBuff(ctx, caller, eventID, team.ID, a.BuffID, a.NodeID, key)
		if err != nil {
			return Reply{}, err
		}
		reply.Result = res
	case ActionPurchase:
		res, err := r.engine.PurchaseCheckpoint(ctx, caller, eventID, team.ID, a.NodeID, a.OfferID, key)
		if err != nil {
			return Reply{}, err
		}
		reply.Result = res
	case ActionStatus:
		v, err := r.engine.Team(ctx, eventID, team.ID)
		if err != nil {
			return Reply{}, err
		}
		reply.Team = &v
	default:
		return Reply{}, hunt.Errorf(hunt.CodeInvalidInput, "unknown action %q", a.Type)
	}
	return reply, nil
}
