package engine

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/ledger"
	"github.com/playperu/treasurehunt/internal/store"
)

// mutate runs one ledger operation for a team member and stages its
// activity in the same transaction.
func (e *Engine) mutate(ctx context.Context, caller hunt.Caller, eventID, teamID string, op func(tx *store.Tx, g *hunt.Graph) (ledger.Outcome, error)) (*Result, error) {
	g, err := e.graphs.Graph(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var res ledger.Outcome
	err = e.inTx(ctx, func(tx *store.Tx, out *outbox) error {
		t, err := tx.Team(ctx, eventID, teamID)
		if err != nil {
			return err
		}
		if err := requireMember(&t, caller); err != nil {
			return err
		}
		if res, err = op(tx, g); err != nil {
			return err
		}
		return out.changes(ctx, eventID, teamID, res.Changes)
	})
	if err != nil {
		return nil, err
	}
	return resultOf(res), nil
}

// ApplyBuff spends one use of a team buff on a workable node. Replaying the
// same key returns the current ledger without spending another use.
func (e *Engine) ApplyBuff(ctx context.Context, caller hunt.Caller, eventID, teamID, buffID, nodeID, key string) (res *Result, err error) {
	ctx, span := e.start(ctx, "ApplyBuff",
		attribute.String("event.id", eventID),
		attribute.String("team.id", teamID),
		attribute.String("buff.id", buffID),
		attribute.String("node.id", nodeID),
	)
	defer func() { finish(span, err) }()

	return e.mutate(ctx, caller, eventID, teamID, func(tx *store.Tx, g *hunt.Graph) (ledger.Outcome, error) {
		return e.ledger.ApplyBuff(ctx, tx, g, teamID, buffID, nodeID, key)
	})
}

// PurchaseCheckpoint executes one checkpoint offer. A team trades at most
// once per checkpoint.
func (e *Engine) PurchaseCheckpoint(ctx context.Context, caller hunt.Caller, eventID, teamID, checkpointID, offerID, key string) (res *Result, err error) {
	ctx, span := e.start(ctx, "PurchaseCheckpoint",
		attribute.String("event.id", eventID),
		attribute.String("team.id", teamID),
		attribute.String("node.id", checkpointID),
		attribute.String("offer.id", offerID),
	)
	defer func() { finish(span, err) }()

	return e.mutate(ctx, caller, eventID, teamID, func(tx *store.Tx, g *hunt.Graph) (ledger.Outcome, error) {
		return e.ledger.RecordCheckpointTrade(ctx, tx, g, teamID, checkpointID, offerID, key)
	})
}

// AdjustPot applies an audited administrative correction to a team's pot.
func (e *Engine) AdjustPot(ctx context.Context, caller hunt.Caller, eventID, teamID string, amount int64, reason, key string) (res *Result, err error) {
	ctx, span := e.start(ctx, "AdjustPot",
		attribute.String("event.id", eventID),
		attribute.String("team.id", teamID),
		attribute.Int64("amount", amount),
	)
	defer func() { finish(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, hunt.Errorf(hunt.CodeInvalidInput, "adjustment reason is required")
	}
	g, err := e.graphs.Graph(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var outcome ledger.Outcome
	err = e.inTx(ctx, func(tx *store.Tx, out *outbox) error {
		var err error
		if outcome, err = e.ledger.AdjustPot(ctx, tx, g, teamID, amount, reason, caller.ID, key); err != nil {
			return err
		}
		return out.changes(ctx, eventID, teamID, outcome.Changes)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("pot adjusted", "event", eventID, "team", teamID, "amount", amount, "by", caller.ID)
	return resultOf(outcome), nil
}
