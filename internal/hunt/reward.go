package hunt

import "sort"

// Reward is what completing a node credits to the team. Every field is
// optional; Grants flattens it into the closed set of grant kinds.
type Reward struct {
	Currency int64       `json:"currency,omitempty"`
	Keys     []KeyGrant  `json:"keys,omitempty"`
	Buffs    []BuffGrant `json:"buffs,omitempty"`
}

// Grant is one credited element of a reward. Implementations are
// CurrencyGrant, KeyGrant and BuffGrant; switches over Grant are exhaustive
// over those three.
type Grant interface {
	grant()
}

type CurrencyGrant struct {
	Amount int64 `json:"amount"`
}

type KeyGrant struct {
	Color    string `json:"color"`
	Quantity int    `json:"quantity"`
}

type BuffGrant struct {
	Type       string   `json:"type"`
	Objectives []string `json:"objectives,omitempty"`
	Universal  bool     `json:"universal,omitempty"`
	Reduction  float64  `json:"reduction"`
	Uses       int      `json:"uses"`
}

func (CurrencyGrant) grant() {}
func (KeyGrant) grant()      {}
func (BuffGrant) grant()     {}

func (r Reward) Grants() []Grant {
	var out []Grant
	if r.Currency != 0 {
		out = append(out, CurrencyGrant{Amount: r.Currency})
	}
	for _, k := range r.Keys {
		out = append(out, k)
	}
	for _, b := range r.Buffs {
		out = append(out, b)
	}
	return out
}

func (r Reward) Empty() bool {
	return r.Currency == 0 && len(r.Keys) == 0 && len(r.Buffs) == 0
}

// AnyColor in a key cost is satisfied by keys of any color.
const AnyColor = "any"

type KeyCost struct {
	Color    string `json:"color"`
	Quantity int    `json:"quantity"`
}

// Offer is one trade available at a checkpoint.
type Offer struct {
	ID     string    `json:"id"`
	Name   string    `json:"name,omitempty"`
	Cost   []KeyCost `json:"cost"`
	Payout int64     `json:"payout"`
}

// Spend computes the keys an offer consumes from held. Specific colors are
// taken first; "any" entries then draw from the largest remaining balances,
// ties broken by color name. It returns Exhausted naming the first shortfall.
func (o Offer) Spend(held map[string]int) (map[string]int, error) {
	remaining := make(map[string]int, len(held))
	for c, q := range held {
		remaining[c] = q
	}
	spent := make(map[string]int)

	anyNeeded := 0
	for _, c := range o.Cost {
		if c.Color == AnyColor {
			anyNeeded += c.Quantity
			continue
		}
		if remaining[c.Color] < c.Quantity {
			return nil, Errorf(CodeExhausted, "insufficient keys: need %d %s, have %d", c.Quantity, c.Color, remaining[c.Color])
		}
		remaining[c.Color] -= c.Quantity
		spent[c.Color] += c.Quantity
	}

	if anyNeeded > 0 {
		total := 0
		for _, q := range remaining {
			total += q
		}
		if total < anyNeeded {
			return nil, Errorf(CodeExhausted, "insufficient keys: need %d of any color, have %d", anyNeeded, total)
		}
		colors := make([]string, 0, len(remaining))
		for c := range remaining {
			colors = append(colors, c)
		}
		for anyNeeded > 0 {
			sort.Slice(colors, func(i, j int) bool {
				if remaining[colors[i]] != remaining[colors[j]] {
					return remaining[colors[i]] > remaining[colors[j]]
				}
				return colors[i] < colors[j]
			})
			c := colors[0]
			remaining[c]--
			spent[c]++
			anyNeeded--
		}
	}
	return spent, nil
}
