package hunt

import (
	"encoding/json"
	"sort"
)

type NodeKind string

const (
	NodeStart      NodeKind = "START"
	NodeChallenge  NodeKind = "CHALLENGE"
	NodeCheckpoint NodeKind = "CHECKPOINT"
)

func (k NodeKind) Valid() bool {
	switch k {
	case NodeStart, NodeChallenge, NodeCheckpoint:
		return true
	}
	return false
}

type Objective struct {
	Type     string `json:"type" yaml:"type"`
	Quantity int    `json:"quantity" yaml:"quantity"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`
}

// Node is one objective or location of the hunt. Requires lists the nodes
// that must all be completed before this one becomes available.
type Node struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Kind      NodeKind   `json:"kind"`
	Objective *Objective `json:"objective,omitempty"`
	Tier      string     `json:"tier,omitempty"`
	GroupID   string     `json:"groupId,omitempty"`
	Requires  []string   `json:"requires,omitempty"`
	Rewards   Reward     `json:"rewards"`
	Offers    []Offer    `json:"offers,omitempty"`
}

// SelfCompleting reports whether the unlock cascade completes the node
// without a submission.
func (n Node) SelfCompleting() bool {
	return n.Objective == nil
}

func (n Node) Offer(id string) (Offer, bool) {
	for _, o := range n.Offers {
		if o.ID == id {
			return o, true
		}
	}
	return Offer{}, false
}

// LocationGroup is one place offered at several difficulty tiers.
type LocationGroup struct {
	ID      string   `json:"id"`
	NodeIDs []string `json:"nodeIds"`
}

// Graph is the immutable node topology of one event at one generation.
type Graph struct {
	EventID    string
	Generation int64

	order   []string
	nodes   map[string]Node
	groups  map[string]LocationGroup
	groupOf map[string]string
}

// NewGraph indexes nodes and rejects duplicate IDs, dangling or cyclic
// dependencies.
func NewGraph(eventID string, generation int64, nodes []Node) (*Graph, error) {
	g := &Graph{
		EventID:    eventID,
		Generation: generation,
		order:      make([]string, 0, len(nodes)),
		nodes:      make(map[string]Node, len(nodes)),
		groups:     make(map[string]LocationGroup),
		groupOf:    make(map[string]string),
	}
	for _, n := range nodes {
		if n.ID == "" {
			return nil, Errorf(CodeInvalidInput, "node id is required")
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, Errorf(CodeInvalidInput, "duplicate node %q", n.ID)
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
		if n.GroupID != "" {
			grp := g.groups[n.GroupID]
			grp.ID = n.GroupID
			grp.NodeIDs = append(grp.NodeIDs, n.ID)
			g.groups[n.GroupID] = grp
			g.groupOf[n.ID] = n.GroupID
		}
	}
	for _, id := range g.order {
		for _, dep := range g.nodes[id].Requires {
			if _, ok := g.nodes[dep]; !ok {
				return nil, Errorf(CodeInvalidInput, "node %q requires unknown node %q", id, dep)
			}
		}
	}
	if cyc := g.findCycle(); cyc != "" {
		return nil, Errorf(CodeInvalidInput, "dependency cycle through node %q", cyc)
	}
	return g, nil
}

func (g *Graph) findCycle() string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.order))
	var visit func(id string) string
	visit = func(id string) string {
		color[id] = grey
		for _, dep := range g.nodes[id].Requires {
			switch color[dep] {
			case grey:
				return dep
			case white:
				if c := visit(dep); c != "" {
					return c
				}
			}
		}
		color[id] = black
		return ""
	}
	for _, id := range g.order {
		if color[id] == white {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}

func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns nodes in definition order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

func (g *Graph) Len() int { return len(g.order) }

// Groups returns location groups sorted by ID.
func (g *Graph) Groups() []LocationGroup {
	out := make([]LocationGroup, 0, len(g.groups))
	for _, grp := range g.groups {
		out = append(out, grp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GroupOf returns the location group containing nodeID, if any.
func (g *Graph) GroupOf(nodeID string) (LocationGroup, bool) {
	gid, ok := g.groupOf[nodeID]
	if !ok {
		return LocationGroup{}, false
	}
	return g.groups[gid], true
}

// ClaimedBy returns the node through which the team completed nodeID's
// location group. This is the only place the "one completion per location"
// rule is evaluated; submission checks and the workable view both use it.
func (g *Graph) ClaimedBy(t *Team, nodeID string) (string, bool) {
	gid, ok := g.groupOf[nodeID]
	if !ok {
		return "", false
	}
	claim, ok := t.Claims[gid]
	return claim, ok
}

// CheckWorkable returns nil when the team can currently work on nodeID, or
// an error naming exactly why it cannot.
func (g *Graph) CheckWorkable(t *Team, nodeID string) error {
	if _, ok := g.nodes[nodeID]; !ok {
		return Errorf(CodeNotFound, "node %q not found", nodeID)
	}
	if t.HasCompleted(nodeID) {
		return Errorf(CodeConflict, "node %q already completed", nodeID)
	}
	if claim, ok := g.ClaimedBy(t, nodeID); ok {
		return Errorf(CodeConflict, "location of node %q already claimed through %q", nodeID, claim)
	}
	if !t.IsAvailable(nodeID) {
		return Errorf(CodeNodeNotAvailable, "node %q not yet unlocked", nodeID)
	}
	return nil
}

// Workable lists the nodes the team can currently work on, in definition
// order.
func (g *Graph) Workable(t *Team) []string {
	var out []string
	for _, id := range g.order {
		if g.CheckWorkable(t, id) == nil {
			out = append(out, id)
		}
	}
	return out
}

// Unlockable lists nodes not yet available whose prerequisites are all
// completed.
func (g *Graph) Unlockable(t *Team) []string {
	var out []string
	for _, id := range g.order {
		if t.IsAvailable(id) {
			continue
		}
		ready := true
		for _, dep := range g.nodes[id].Requires {
			if !t.HasCompleted(dep) {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, id)
		}
	}
	return out
}

// Exhausted reports that no node remains completable: every node is
// completed, excluded by a claimed location group, or depends on such a node.
func (g *Graph) Exhausted(t *Team) bool {
	open := make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for _, id := range g.order {
			if open[id] || t.HasCompleted(id) {
				continue
			}
			if _, claimed := g.ClaimedBy(t, id); claimed {
				continue
			}
			reachable := true
			for _, dep := range g.nodes[id].Requires {
				if !t.HasCompleted(dep) && !open[dep] {
					reachable = false
					break
				}
			}
			if reachable {
				open[id] = true
				changed = true
			}
		}
	}
	return len(open) == 0
}

type graphDoc struct {
	EventID    string `json:"eventId"`
	Generation int64  `json:"generation"`
	Nodes      []Node `json:"nodes"`
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphDoc{EventID: g.EventID, Generation: g.Generation, Nodes: g.Nodes()})
}

func (g *Graph) UnmarshalJSON(data []byte) error {
	var doc graphDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	built, err := NewGraph(doc.EventID, doc.Generation, doc.Nodes)
	if err != nil {
		return err
	}
	*g = *built
	return nil
}
