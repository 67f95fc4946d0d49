package hunt

import "strings"

// ValidateMap checks nodes against every rule a playable map must satisfy:
// graph shape, node kinds, objectives, rewards and checkpoint offers.
func ValidateMap(nodes []Node) error {
	if len(nodes) == 0 {
		return Errorf(CodeInvalidInput, "map has no nodes")
	}
	if _, err := NewGraph("", 0, nodes); err != nil {
		return err
	}

	entry := false
	for _, n := range nodes {
		if len(n.Requires) == 0 {
			entry = true
		}
		if err := validateNode(n); err != nil {
			return err
		}
	}
	if !entry {
		return Errorf(CodeInvalidInput, "map has no entry node without prerequisites")
	}
	return nil
}

func validateNode(n Node) error {
	switch n.Kind {
	case NodeChallenge:
		if n.Objective == nil {
			return Errorf(CodeInvalidInput, "challenge %q has no objective", n.ID)
		}
		if n.Objective.Type == "" || n.Objective.Quantity < 1 {
			return Errorf(CodeInvalidInput, "challenge %q needs an objective type and a quantity of at least 1", n.ID)
		}
	case NodeStart, NodeCheckpoint:
		if n.Objective != nil {
			return Errorf(CodeInvalidInput, "%s node %q cannot have an objective", strings.ToLower(string(n.Kind)), n.ID)
		}
	default:
		return Errorf(CodeInvalidInput, "node %q has unknown kind %q", n.ID, n.Kind)
	}

	if n.Rewards.Currency < 0 {
		return Errorf(CodeInvalidInput, "node %q rewards negative currency", n.ID)
	}
	for _, k := range n.Rewards.Keys {
		if k.Color == "" || k.Quantity < 1 {
			return Errorf(CodeInvalidInput, "node %q: key grants need a color and a quantity of at least 1", n.ID)
		}
	}
	for _, b := range n.Rewards.Buffs {
		switch {
		case b.Type == "":
			return Errorf(CodeInvalidInput, "node %q: buff type is required", n.ID)
		case b.Uses < 1:
			return Errorf(CodeInvalidInput, "node %q: buff %q needs at least 1 use", n.ID, b.Type)
		case !ValidReduction(b.Reduction):
			return Errorf(CodeInvalidInput, "node %q: buff %q reduction must be in [0, 1)", n.ID, b.Type)
		case !b.Universal && len(b.Objectives) == 0:
			return Errorf(CodeInvalidInput, "node %q: buff %q targets no objective type", n.ID, b.Type)
		}
	}

	if n.Kind != NodeCheckpoint && len(n.Offers) > 0 {
		return Errorf(CodeInvalidInput, "node %q has offers but is not a checkpoint", n.ID)
	}
	if n.Kind == NodeCheckpoint && len(n.Offers) == 0 {
		return Errorf(CodeInvalidInput, "checkpoint %q has no offers", n.ID)
	}
	offers := make(map[string]bool, len(n.Offers))
	for _, o := range n.Offers {
		if o.ID == "" {
			return Errorf(CodeInvalidInput, "checkpoint %q has an offer without id", n.ID)
		}
		if offers[o.ID] {
			return Errorf(CodeInvalidInput, "checkpoint %q has duplicate offer %q", n.ID, o.ID)
		}
		offers[o.ID] = true
		if o.Payout < 0 {
			return Errorf(CodeInvalidInput, "offer %q at %q pays out a negative amount", o.ID, n.ID)
		}
		for _, c := range o.Cost {
			if c.Color == "" || c.Quantity < 1 {
				return Errorf(CodeInvalidInput, "offer %q at %q: key costs need a color and a quantity of at least 1", o.ID, n.ID)
			}
		}
	}
	return nil
}
