// Package ledger applies mutations to team ledgers inside a store
// transaction. Every operation loads the canonical ledger, plans the change
// with the domain rules, reduces it, verifies the ledger invariants and
// writes it back with an optimistic version check.
package ledger

import (
	"context"
	"time"

	"github.com/playperu/treasurehunt/internal/hunt"
)

// Tx is the transactional storage a ledger mutation runs in.
type Tx interface {
	Event(ctx context.Context, id string) (hunt.Event, error)
	Team(ctx context.Context, eventID, teamID string) (hunt.Team, error)
	PutTeam(ctx context.Context, t *hunt.Team) error
	ClaimGroup(ctx context.Context, eventID, teamID, groupID, nodeID string) error
	InsertTrade(ctx context.Context, eventID, teamID string, tr hunt.Trade) error
}

// Outcome is the result of one ledger operation. When Replayed is set the
// idempotency key had already been applied: Team is the current ledger and
// nothing was changed.
type Outcome struct {
	Team     hunt.Team
	Changes  []hunt.Change
	Unlocked []string
	Finished bool
	Replayed bool
}

type Ledger struct {
	now func() time.Time
}

func New() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

// planFunc computes the changes of one operation against the loaded ledger.
type planFunc func(t *hunt.Team, at time.Time) (hunt.Resolution, error)

func (l *Ledger) commit(ctx context.Context, tx Tx, g *hunt.Graph, teamID, key string, plan planFunc) (Outcome, error) {
	ev, err := tx.Event(ctx, g.EventID)
	if err != nil {
		return Outcome{}, err
	}
	if err := ev.Mutable(); err != nil {
		return Outcome{}, err
	}
	if ev.Generation != g.Generation {
		return Outcome{}, hunt.Errorf(hunt.CodeConflict, "node graph changed, reload and try again")
	}

	t, err := tx.Team(ctx, g.EventID, teamID)
	if err != nil {
		return Outcome{}, err
	}
	if t.HasApplied(key) {
		return Outcome{Team: t, Replayed: true}, nil
	}

	res, err := plan(&t, l.now())
	if err != nil {
		return Outcome{}, err
	}
	changes := res.Changes
	if key != "" {
		changes = append(changes[:len(changes):len(changes)], hunt.OperationRecorded{Key: key})
	}
	if err := t.ApplyAll(g, changes); err != nil {
		return Outcome{}, err
	}
	if err := t.CheckInvariants(g); err != nil {
		return Outcome{}, err
	}

	for _, c := range res.Changes {
		switch c := c.(type) {
		case hunt.NodeCompleted:
			n, _ := g.Node(c.NodeID)
			if n.GroupID == "" {
				continue
			}
			if err := tx.ClaimGroup(ctx, g.EventID, teamID, n.GroupID, n.ID); err != nil {
				return Outcome{}, err
			}
		case hunt.CheckpointTraded:
			tr, _ := t.Trade(c.NodeID)
			if err := tx.InsertTrade(ctx, g.EventID, teamID, tr); err != nil {
				return Outcome{}, err
			}
		}
	}

	if err := tx.PutTeam(ctx, &t); err != nil {
		return Outcome{}, err
	}
	return Outcome{Team: t, Changes: res.Changes, Unlocked: res.Unlocked, Finished: res.Finished}, nil
}

// ApplyNodeCompletion credits an approved completion and runs the unlock
// cascade. The submission ID doubles as the idempotency key.
func (l *Ledger) ApplyNodeCompletion(ctx context.Context, tx Tx, g *hunt.Graph, teamID, nodeID, submissionID string) (Outcome, error) {
	return l.commit(ctx, tx, g, teamID, "complete:"+submissionID, func(t *hunt.Team, at time.Time) (hunt.Resolution, error) {
		return hunt.Resolve(g, *t, nodeID, submissionID, at)
	})
}

// Bootstrap opens the entry nodes of a fresh ledger. Running it again on
// the same ledger is a no-op.
func (l *Ledger) Bootstrap(ctx context.Context, tx Tx, g *hunt.Graph, teamID string) (Outcome, error) {
	return l.commit(ctx, tx, g, teamID, "bootstrap", func(t *hunt.Team, at time.Time) (hunt.Resolution, error) {
		return hunt.Bootstrap(g, *t, at)
	})
}

// ApplyBuff spends one use of a buff to reduce a node's required quantity.
func (l *Ledger) ApplyBuff(ctx context.Context, tx Tx, g *hunt.Graph, teamID, buffID, nodeID, key string) (Outcome, error) {
	return l.commit(ctx, tx, g, teamID, key, func(t *hunt.Team, _ time.Time) (hunt.Resolution, error) {
		if err := g.CheckWorkable(t, nodeID); err != nil {
			return hunt.Resolution{}, err
		}
		n, _ := g.Node(nodeID)
		c, err := hunt.PlanBuff(t, n, buffID)
		if err != nil {
			return hunt.Resolution{}, err
		}
		return hunt.Resolution{Changes: []hunt.Change{c}}, nil
	})
}

// RecordCheckpointTrade executes one offer at a checkpoint: keys are
// deducted, the payout is credited and the trade is recorded.
func (l *Ledger) RecordCheckpointTrade(ctx context.Context, tx Tx, g *hunt.Graph, teamID, checkpointID, offerID, key string) (Outcome, error) {
	return l.commit(ctx, tx, g, teamID, key, func(t *hunt.Team, at time.Time) (hunt.Resolution, error) {
		c, err := hunt.PlanTrade(g, t, checkpointID, offerID, at)
		if err != nil {
			return hunt.Resolution{}, err
		}
		return hunt.Resolution{Changes: []hunt.Change{c}}, nil
	})
}

// AdjustPot records an audited administrative correction of the pot.
func (l *Ledger) AdjustPot(ctx context.Context, tx Tx, g *hunt.Graph, teamID string, amount int64, reason, by, key string) (Outcome, error) {
	return l.commit(ctx, tx, g, teamID, key, func(_ *hunt.Team, at time.Time) (hunt.Resolution, error) {
		if amount == 0 {
			return hunt.Resolution{}, hunt.Errorf(hunt.CodeInvalidInput, "adjustment amount must not be zero")
		}
		c := hunt.PotAdjusted{Amount: amount, Reason: reason, By: by, At: at}
		return hunt.Resolution{Changes: []hunt.Change{c}}, nil
	})
}
