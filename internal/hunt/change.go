package hunt

import (
	"fmt"
	"slices"
	"time"
)

// Change is one state transition of a team ledger. The set of variants is
// closed; Team.Apply is the only reducer over it, so replaying the same list
// of changes over the same starting ledger always yields the same ledger.
type Change interface {
	change()
}

// NodeCompleted marks a node completed and credits its reward. Auto is set
// when the unlock cascade completed a node that has no objective.
type NodeCompleted struct {
	NodeID       string    `json:"nodeId"`
	SubmissionID string    `json:"submissionId,omitempty"`
	Auto         bool      `json:"auto,omitempty"`
	Reward       Reward    `json:"reward"`
	At           time.Time `json:"at"`
}

type NodesUnlocked struct {
	NodeIDs []string `json:"nodeIds"`
}

type BuffApplied struct {
	BuffID   string `json:"buffId"`
	NodeID   string `json:"nodeId"`
	Original int    `json:"original"`
	Reduced  int    `json:"reduced"`
}

type CheckpointTraded struct {
	NodeID  string         `json:"nodeId"`
	OfferID string         `json:"offerId"`
	Spent   map[string]int `json:"spent"`
	Payout  int64          `json:"payout"`
	At      time.Time      `json:"at"`
}

type PotAdjusted struct {
	Amount int64     `json:"amount"`
	Reason string    `json:"reason"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
}

type TeamFinished struct {
	At time.Time `json:"at"`
}

// OperationRecorded remembers an idempotency key so a replayed request is
// recognised instead of re-applied.
type OperationRecorded struct {
	Key string `json:"key"`
}

func (NodeCompleted) change()     {}
func (NodesUnlocked) change()     {}
func (BuffApplied) change()       {}
func (CheckpointTraded) change()  {}
func (PotAdjusted) change()       {}
func (TeamFinished) change()      {}
func (OperationRecorded) change() {}

// Apply reduces one change into the ledger. It fails without modifying the
// ledger when the change would break an invariant.
func (t *Team) Apply(g *Graph, c Change) error {
	switch c := c.(type) {
	case NodeCompleted:
		return t.applyCompletion(g, c)

	case NodesUnlocked:
		for _, id := range c.NodeIDs {
			if _, ok := g.Node(id); !ok {
				return Errorf(CodeNotFound, "node %q not found", id)
			}
		}
		for _, id := range c.NodeIDs {
			if !t.IsAvailable(id) {
				t.Available = append(t.Available, id)
			}
		}
		return nil

	case BuffApplied:
		idx := slices.IndexFunc(t.Buffs, func(b Buff) bool { return b.ID == c.BuffID })
		if idx < 0 {
			return Errorf(CodeNotFound, "buff %q not found", c.BuffID)
		}
		if t.Buffs[idx].UsesRemaining <= 0 {
			return Errorf(CodeExhausted, "buff %q has no uses remaining", c.BuffID)
		}
		if t.Requirements == nil {
			t.Requirements = map[string]int{}
		}
		t.Requirements[c.NodeID] = c.Reduced
		t.Buffs[idx].UsesRemaining--
		if t.Buffs[idx].UsesRemaining == 0 {
			t.SpentBuffs = append(t.SpentBuffs, c.BuffID)
			t.Buffs = slices.Delete(t.Buffs, idx, idx+1)
		}
		return nil

	case CheckpointTraded:
		if _, exists := t.Trade(c.NodeID); exists {
			return Errorf(CodeConflict, "checkpoint %q already traded", c.NodeID)
		}
		for color, q := range c.Spent {
			if t.Keys[color] < q {
				return Errorf(CodeExhausted, "insufficient keys: need %d %s, have %d", q, color, t.Keys[color])
			}
		}
		for color, q := range c.Spent {
			t.Keys[color] -= q
		}
		t.Pot += c.Payout
		t.Trades = append(t.Trades, Trade{
			NodeID:  c.NodeID,
			OfferID: c.OfferID,
			Spent:   cloneMap(c.Spent),
			Payout:  c.Payout,
			At:      c.At,
		})
		return nil

	case PotAdjusted:
		if c.Reason == "" {
			return Errorf(CodeInvalidInput, "adjustment reason is required")
		}
		if t.Pot+c.Amount < 0 {
			return Errorf(CodeInvalidInput, "adjustment would make pot negative")
		}
		t.Pot += c.Amount
		t.Adjustments = append(t.Adjustments, Adjustment{Amount: c.Amount, Reason: c.Reason, By: c.By, At: c.At})
		return nil

	case TeamFinished:
		if t.FinishedAt == nil {
			at := c.At
			t.FinishedAt = &at
		}
		return nil

	case OperationRecorded:
		if !t.HasApplied(c.Key) {
			t.Applied = append(t.Applied, c.Key)
		}
		return nil

	default:
		panic(fmt.Sprintf("hunt: unknown change %T", c))
	}
}

func (t *Team) applyCompletion(g *Graph, c NodeCompleted) error {
	n, ok := g.Node(c.NodeID)
	if !ok {
		return Errorf(CodeNotFound, "node %q not found", c.NodeID)
	}
	if err := g.CheckWorkable(t, c.NodeID); err != nil {
		return err
	}

	for _, gr := range c.Reward.Grants() {
		switch gr := gr.(type) {
		case CurrencyGrant:
			t.Pot += gr.Amount
		case KeyGrant:
			if t.Keys == nil {
				t.Keys = map[string]int{}
			}
			t.Keys[gr.Color] += gr.Quantity
		case BuffGrant:
			t.Buffs = append(t.Buffs, Buff{
				ID:            buffID(n.ID, len(t.Buffs)+len(t.SpentBuffs)),
				Type:          gr.Type,
				Objectives:    slices.Clone(gr.Objectives),
				Universal:     gr.Universal,
				Reduction:     gr.Reduction,
				UsesRemaining: gr.Uses,
				SourceNode:    n.ID,
			})
		}
	}

	t.Completed = append(t.Completed, n.ID)
	if n.GroupID != "" {
		if t.Claims == nil {
			t.Claims = map[string]string{}
		}
		t.Claims[n.GroupID] = n.ID
	}
	return nil
}
