package hunt

import (
	"slices"
	"time"
)

// Team is the canonical ledger of one team's progress and resources.
// It is only ever changed through Apply.
type Team struct {
	ID      string   `json:"id"`
	EventID string   `json:"eventId"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Role    string   `json:"role,omitempty"`

	Pot          int64             `json:"pot"`
	Completed    []string          `json:"completed"`
	Available    []string          `json:"available"`
	Keys         map[string]int    `json:"keys"`
	Buffs        []Buff            `json:"buffs"`
	SpentBuffs   []string          `json:"spentBuffs,omitempty"`
	Requirements map[string]int    `json:"requirements,omitempty"`
	Claims       map[string]string `json:"claims,omitempty"`
	Trades       []Trade           `json:"trades"`
	Adjustments  []Adjustment      `json:"adjustments,omitempty"`
	Applied      []string          `json:"applied,omitempty"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`

	Version int64 `json:"-"`
}

// Buff is an active modifier held by a team.
type Buff struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Objectives    []string `json:"objectives,omitempty"`
	Universal     bool     `json:"universal,omitempty"`
	Reduction     float64  `json:"reduction"`
	UsesRemaining int      `json:"usesRemaining"`
	SourceNode    string   `json:"sourceNode"`
}

// Trade is the single checkpoint transaction a team may record per
// checkpoint node.
type Trade struct {
	NodeID  string         `json:"nodeId"`
	OfferID string         `json:"offerId"`
	Spent   map[string]int `json:"spent"`
	Payout  int64          `json:"payout"`
	At      time.Time      `json:"at"`
}

// Adjustment is an audited administrative pot correction.
type Adjustment struct {
	Amount int64     `json:"amount"`
	Reason string    `json:"reason"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
}

func NewTeam(id, eventID, name string, members []string, role string) Team {
	return Team{
		ID:      id,
		EventID: eventID,
		Name:    name,
		Members: members,
		Role:    role,
		Keys:    map[string]int{},
	}
}

func (t *Team) HasCompleted(nodeID string) bool {
	return slices.Contains(t.Completed, nodeID)
}

func (t *Team) IsAvailable(nodeID string) bool {
	return slices.Contains(t.Available, nodeID)
}

func (t *Team) HasApplied(key string) bool {
	return key != "" && slices.Contains(t.Applied, key)
}

func (t *Team) Buff(id string) (Buff, bool) {
	for _, b := range t.Buffs {
		if b.ID == id {
			return b, true
		}
	}
	return Buff{}, false
}

func (t *Team) Trade(nodeID string) (Trade, bool) {
	for _, tr := range t.Trades {
		if tr.NodeID == nodeID {
			return tr, true
		}
	}
	return Trade{}, false
}

// IsMember reports whether caller acts for the team, either by identity or
// by holding the team's chat role.
func (t *Team) IsMember(c Caller) bool {
	if c.ID != "" && slices.Contains(t.Members, c.ID) {
		return true
	}
	return t.Role != "" && c.HasRole(t.Role)
}

// Requirement returns the quantity the team must reach on nodeID, taking
// applied buffs into account.
func (t *Team) Requirement(n Node) int {
	if n.Objective == nil {
		return 0
	}
	if q, ok := t.Requirements[n.ID]; ok {
		return q
	}
	return n.Objective.Quantity
}

// Clone returns a deep copy so speculative application never touches the
// original.
func (t Team) Clone() Team {
	c := t
	c.Members = slices.Clone(t.Members)
	c.Completed = slices.Clone(t.Completed)
	c.Available = slices.Clone(t.Available)
	c.SpentBuffs = slices.Clone(t.SpentBuffs)
	c.Applied = slices.Clone(t.Applied)
	c.Adjustments = slices.Clone(t.Adjustments)
	c.Keys = cloneMap(t.Keys)
	c.Requirements = cloneMap(t.Requirements)
	c.Claims = cloneMap(t.Claims)
	c.Buffs = make([]Buff, len(t.Buffs))
	for i, b := range t.Buffs {
		b.Objectives = slices.Clone(b.Objectives)
		c.Buffs[i] = b
	}
	c.Trades = make([]Trade, len(t.Trades))
	for i, tr := range t.Trades {
		tr.Spent = cloneMap(tr.Spent)
		c.Trades[i] = tr
	}
	if t.FinishedAt != nil {
		at := *t.FinishedAt
		c.FinishedAt = &at
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
