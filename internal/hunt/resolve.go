package hunt

import (
	"slices"
	"time"
)

// Resolution is the ordered list of changes produced by one ledger action,
// along with the nodes it made available.
type Resolution struct {
	Changes  []Change
	Unlocked []string
	Finished bool
}

type resolver struct {
	g    *Graph
	work Team
	at   time.Time
	res  Resolution
}

func (r *resolver) emit(c Change) error {
	if err := r.work.Apply(r.g, c); err != nil {
		return err
	}
	r.res.Changes = append(r.res.Changes, c)
	return nil
}

// cascade unlocks every node whose prerequisites are completed and completes
// the ones without an objective, until nothing changes.
func (r *resolver) cascade() error {
	for {
		unlocked := r.g.Unlockable(&r.work)
		if len(unlocked) == 0 {
			break
		}
		if err := r.emit(NodesUnlocked{NodeIDs: unlocked}); err != nil {
			return err
		}
		r.res.Unlocked = append(r.res.Unlocked, unlocked...)
		for _, id := range unlocked {
			n, _ := r.g.Node(id)
			if !n.SelfCompleting() {
				continue
			}
			if _, claimed := r.g.ClaimedBy(&r.work, id); claimed {
				continue
			}
			if err := r.emit(NodeCompleted{NodeID: id, Auto: true, Reward: n.Rewards, At: r.at}); err != nil {
				return err
			}
		}
	}
	if r.work.FinishedAt == nil && r.g.Exhausted(&r.work) {
		if err := r.emit(TeamFinished{At: r.at}); err != nil {
			return err
		}
		r.res.Finished = true
	}
	return nil
}

// Resolve computes the effects of an approved completion of nodeID: the
// completion and its grants, the unlock cascade and, if nothing is left to
// complete, the team finishing. t is not modified.
func Resolve(g *Graph, t Team, nodeID, submissionID string, at time.Time) (Resolution, error) {
	n, ok := g.Node(nodeID)
	if !ok {
		return Resolution{}, Errorf(CodeNotFound, "node %q not found", nodeID)
	}
	r := &resolver{g: g, work: t.Clone(), at: at}
	if err := r.emit(NodeCompleted{NodeID: n.ID, SubmissionID: submissionID, Reward: n.Rewards, At: at}); err != nil {
		return Resolution{}, err
	}
	if err := r.cascade(); err != nil {
		return Resolution{}, err
	}
	return r.res, nil
}

// Bootstrap runs the unlock cascade from the team's current state. On a new
// ledger it opens the entry nodes and everything reachable through nodes
// without objectives.
func Bootstrap(g *Graph, t Team, at time.Time) (Resolution, error) {
	r := &resolver{g: g, work: t.Clone(), at: at}
	if err := r.cascade(); err != nil {
		return Resolution{}, err
	}
	return r.res, nil
}

// PlanTrade validates a checkpoint purchase and returns the change to apply.
func PlanTrade(g *Graph, t *Team, checkpointID, offerID string, at time.Time) (CheckpointTraded, error) {
	n, ok := g.Node(checkpointID)
	if !ok {
		return CheckpointTraded{}, Errorf(CodeNotFound, "node %q not found", checkpointID)
	}
	if n.Kind != NodeCheckpoint {
		return CheckpointTraded{}, Errorf(CodeInvalidInput, "node %q is not a checkpoint", checkpointID)
	}
	if !t.IsAvailable(checkpointID) {
		return CheckpointTraded{}, Errorf(CodeNodeNotAvailable, "checkpoint %q not yet reached", checkpointID)
	}
	if _, exists := t.Trade(checkpointID); exists {
		return CheckpointTraded{}, Errorf(CodeConflict, "checkpoint %q already traded", checkpointID)
	}
	offer, ok := n.Offer(offerID)
	if !ok {
		return CheckpointTraded{}, Errorf(CodeNotFound, "offer %q not found at checkpoint %q", offerID, checkpointID)
	}
	spent, err := offer.Spend(t.Keys)
	if err != nil {
		return CheckpointTraded{}, err
	}
	return CheckpointTraded{
		NodeID:  checkpointID,
		OfferID: offerID,
		Spent:   spent,
		Payout:  offer.Payout,
		At:      at,
	}, nil
}

// ApplyAll reduces changes in order, stopping at the first failure.
func (t *Team) ApplyAll(g *Graph, changes []Change) error {
	for _, c := range changes {
		if err := t.Apply(g, c); err != nil {
			return err
		}
	}
	return nil
}

// CheckInvariants verifies the ledger before it is committed.
func (t *Team) CheckInvariants(g *Graph) error {
	for color, q := range t.Keys {
		if q < 0 {
			return Errorf(CodeConflict, "ledger invariant: %s keys negative", color)
		}
	}

	perGroup := make(map[string]int)
	var earned int64
	for _, id := range t.Completed {
		if !t.IsAvailable(id) {
			return Errorf(CodeConflict, "ledger invariant: node %q completed but never available", id)
		}
		n, ok := g.Node(id)
		if !ok {
			return Errorf(CodeConflict, "ledger invariant: completed node %q not in graph", id)
		}
		earned += n.Rewards.Currency
		if n.GroupID != "" {
			perGroup[n.GroupID]++
			if perGroup[n.GroupID] > 1 {
				return Errorf(CodeConflict, "ledger invariant: location %q completed twice", n.GroupID)
			}
		}
	}

	seen := make(map[string]bool, len(t.Trades))
	for _, tr := range t.Trades {
		if seen[tr.NodeID] {
			return Errorf(CodeConflict, "ledger invariant: checkpoint %q traded twice", tr.NodeID)
		}
		seen[tr.NodeID] = true
		earned += tr.Payout
	}
	for _, a := range t.Adjustments {
		earned += a.Amount
	}
	if earned != t.Pot {
		return Errorf(CodeConflict, "ledger invariant: pot %d does not match credited %d", t.Pot, earned)
	}
	if slices.ContainsFunc(t.Buffs, func(b Buff) bool { return b.UsesRemaining <= 0 }) {
		return Errorf(CodeConflict, "ledger invariant: exhausted buff still active")
	}
	return nil
}
