package engine

import (
	"context"
	"fmt"

	"github.com/playperu/treasurehunt/internal/activity"
	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/store"
)

// outbox stages activity in the transaction it is bound to.
type outbox struct {
	bc     *activity.Broadcaster
	tx     *store.Tx
	staged []*activity.Staged
}

func (o *outbox) add(ctx context.Context, drafts ...hunt.Activity) error {
	if len(drafts) == 0 {
		return nil
	}
	s, err := o.bc.Stage(ctx, o.tx, drafts...)
	if err != nil {
		return fmt.Errorf("staging activity: %w", err)
	}
	o.staged = append(o.staged, s)
	return nil
}

// record stages one activity of the given type.
func (o *outbox) record(ctx context.Context, eventID, teamID string, typ hunt.ActivityType, payload any) error {
	a, err := hunt.NewActivity(eventID, teamID, typ, payload)
	if err != nil {
		return err
	}
	return o.add(ctx, a)
}

// changes stages the activity of a ledger mutation.
func (o *outbox) changes(ctx context.Context, eventID, teamID string, changes []hunt.Change) error {
	drafts, err := hunt.ActivityFor(eventID, teamID, changes)
	if err != nil {
		return err
	}
	return o.add(ctx, drafts...)
}

func (o *outbox) settle(commit bool) {
	for _, s := range o.staged {
		if commit {
			s.Commit()
		} else {
			s.Discard()
		}
	}
	o.staged = nil
}

// inTx runs fn in a store transaction with an outbox bound to it. Activity
// staged by an attempt that does not commit is discarded.
func (e *Engine) inTx(ctx context.Context, fn func(tx *store.Tx, out *outbox) error) error {
	var out *outbox
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		if out != nil {
			out.settle(false)
		}
		out = &outbox{bc: e.activity, tx: tx}
		return fn(tx, out)
	})
	if out != nil {
		out.settle(err == nil)
	}
	return err
}
