package hunt

import (
	"fmt"
	"math"
	"slices"
)

// Applies reports whether the buff can target an objective of the given type.
func (b Buff) Applies(objectiveType string) bool {
	return b.Universal || slices.Contains(b.Objectives, objectiveType)
}

// ReducedQuantity returns ceil(q * (1 - r)). The epsilon keeps products such
// as 10 * 0.7 = 7.000000000000001 from rounding up a whole unit.
func ReducedQuantity(q int, r float64) int {
	v := float64(q) * (1 - r)
	return int(math.Ceil(v - 1e-9))
}

// ValidReduction reports whether r lies in [0, 1).
func ValidReduction(r float64) bool {
	return r >= 0 && r < 1
}

// buffID derives a buff instance ID from the granting node and the team's
// running buff count, so replaying the same changes yields the same IDs.
func buffID(nodeID string, i int) string {
	return fmt.Sprintf("%s#%d", nodeID, i)
}

// PlanBuff validates applying buff id to node for the team and returns the
// change to apply.
func PlanBuff(t *Team, n Node, id string) (BuffApplied, error) {
	b, ok := t.Buff(id)
	if !ok {
		if slices.Contains(t.SpentBuffs, id) {
			return BuffApplied{}, Errorf(CodeExhausted, "buff %q has no uses remaining", id)
		}
		return BuffApplied{}, Errorf(CodeNotFound, "buff %q not found", id)
	}
	if b.UsesRemaining <= 0 {
		return BuffApplied{}, Errorf(CodeExhausted, "buff %q has no uses remaining", id)
	}
	if n.Objective == nil {
		return BuffApplied{}, Errorf(CodeInvalidBuffTarget, "node %q has no objective to reduce", n.ID)
	}
	if !b.Applies(n.Objective.Type) {
		return BuffApplied{}, Errorf(CodeInvalidBuffTarget, "buff %q does not apply to %s objectives", id, n.Objective.Type)
	}
	if _, reduced := t.Requirements[n.ID]; reduced {
		return BuffApplied{}, Errorf(CodeConflict, "node %q already has a buff applied", n.ID)
	}
	return BuffApplied{
		BuffID:   id,
		NodeID:   n.ID,
		Original: n.Objective.Quantity,
		Reduced:  ReducedQuantity(n.Objective.Quantity, b.Reduction),
	}, nil
}
