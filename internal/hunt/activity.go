package hunt

import (
	"encoding/json"
	"fmt"
	"time"
)

type ActivityType string

const (
	ActivitySubmissionCreated  ActivityType = "submission_created"
	ActivitySubmissionApproved ActivityType = "submission_approved"
	ActivitySubmissionDenied   ActivityType = "submission_denied"
	ActivityNodeCompleted      ActivityType = "node_completed"
	ActivityResourceGained     ActivityType = "resource_gained"
	ActivityBuffGranted        ActivityType = "buff_granted"
	ActivityNodesUnlocked      ActivityType = "nodes_unlocked"
	ActivityBuffApplied        ActivityType = "buff_applied"
	ActivityCheckpointTraded   ActivityType = "checkpoint_traded"
	ActivityPotAdjusted        ActivityType = "pot_adjusted"
	ActivityTeamFinished       ActivityType = "team_finished"
	ActivityEventLaunched      ActivityType = "event_launched"
	ActivityEventCompleted     ActivityType = "event_completed"
	ActivityMapRegenerated     ActivityType = "map_regenerated"
)

// Activity is an immutable record of a state change. Within one event the
// stream is ordered by (At, ID); ID and At are assigned when it is published.
type Activity struct {
	ID      string          `json:"id"`
	EventID string          `json:"eventId"`
	TeamID  string          `json:"teamId,omitempty"`
	Type    ActivityType    `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Before orders activities by (At, ID).
func (a Activity) Before(b Activity) bool {
	if !a.At.Equal(b.At) {
		return a.At.Before(b.At)
	}
	return a.ID < b.ID
}

// NewActivity builds an unpublished activity draft with payload encoded as
// JSON.
func NewActivity(eventID, teamID string, typ ActivityType, payload any) (Activity, error) {
	a := Activity{EventID: eventID, TeamID: teamID, Type: typ}
	if payload == nil {
		return a, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Activity{}, fmt.Errorf("encoding %s payload: %w", typ, err)
	}
	a.Payload = data
	return a, nil
}

type ResourcePayload struct {
	NodeID   string         `json:"nodeId"`
	Currency int64          `json:"currency,omitempty"`
	Keys     map[string]int `json:"keys,omitempty"`
}

type BuffGrantedPayload struct {
	NodeID string      `json:"nodeId"`
	Buffs  []BuffGrant `json:"buffs"`
}

// ActivityFor translates ledger changes into activity drafts.
func ActivityFor(eventID, teamID string, changes []Change) ([]Activity, error) {
	var out []Activity
	var err error
	add := func(typ ActivityType, payload any) {
		if err != nil {
			return
		}
		var a Activity
		if a, err = NewActivity(eventID, teamID, typ, payload); err == nil {
			out = append(out, a)
		}
	}
	for _, c := range changes {
		switch c := c.(type) {
		case NodeCompleted:
			add(ActivityNodeCompleted, c)
			var res ResourcePayload
			var buffs []BuffGrant
			for _, gr := range c.Reward.Grants() {
				switch gr := gr.(type) {
				case CurrencyGrant:
					res.Currency += gr.Amount
				case KeyGrant:
					if res.Keys == nil {
						res.Keys = map[string]int{}
					}
					res.Keys[gr.Color] += gr.Quantity
				case BuffGrant:
					buffs = append(buffs, gr)
				}
			}
			if res.Currency != 0 || len(res.Keys) > 0 {
				res.NodeID = c.NodeID
				add(ActivityResourceGained, res)
			}
			if len(buffs) > 0 {
				add(ActivityBuffGranted, BuffGrantedPayload{NodeID: c.NodeID, Buffs: buffs})
			}
		case NodesUnlocked:
			add(ActivityNodesUnlocked, c)
		case BuffApplied:
			add(ActivityBuffApplied, c)
		case CheckpointTraded:
			add(ActivityCheckpointTraded, c)
		case PotAdjusted:
			add(ActivityPotAdjusted, c)
		case TeamFinished:
			add(ActivityTeamFinished, c)
		case OperationRecorded:
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
