// Package mapdef parses hunt map definitions. A map is a YAML (or JSON)
// document listing the nodes of an event; it is checked against an
// embedded JSON Schema and then against the graph rules before any node is
// stored.
package mapdef

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/playperu/treasurehunt/internal/hunt"
)

//go:embed map.schema.json
var schemaJSON string

// Demo is a small complete map used to seed development databases.
//
//go:embed demo.yaml
var Demo []byte

var schema = jsonschema.MustCompileString("map.schema.json", schemaJSON)

type Definition struct {
	Name  string
	Nodes []hunt.Node
}

type mapDoc struct {
	Name  string    `json:"name"`
	Nodes []nodeDoc `json:"nodes"`
}

type nodeDoc struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      hunt.NodeKind   `json:"kind"`
	Tier      string          `json:"tier"`
	Group     string          `json:"group"`
	Requires  []string        `json:"requires"`
	Objective *hunt.Objective `json:"objective"`
	Rewards   rewardDoc       `json:"rewards"`
	Offers    []hunt.Offer    `json:"offers"`
}

type rewardDoc struct {
	Currency int64           `json:"currency"`
	Keys     []hunt.KeyGrant `json:"keys"`
	Buffs    []buffDoc       `json:"buffs"`
}

type buffDoc struct {
	Type       string   `json:"type"`
	Objectives []string `json:"objectives"`
	Universal  bool     `json:"universal"`
	Reduction  float64  `json:"reduction"`
	Uses       *int     `json:"uses"`
}

// Parse decodes and validates a map definition. All failures are
// InvalidInput errors naming the offending node.
func Parse(data []byte) (Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Definition{}, hunt.Errorf(hunt.CodeInvalidInput, "map is not valid YAML: %v", err)
	}
	// Round-trip through JSON so the schema sees JSON types.
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return Definition{}, hunt.Errorf(hunt.CodeInvalidInput, "map cannot be represented as JSON: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Definition{}, fmt.Errorf("re-decoding map: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Definition{}, hunt.Errorf(hunt.CodeInvalidInput, "map does not match schema: %v", err)
	}

	var m mapDoc
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return Definition{}, hunt.Errorf(hunt.CodeInvalidInput, "decoding map: %v", err)
	}

	def := Definition{Name: strings.TrimSpace(m.Name)}
	for _, nd := range m.Nodes {
		def.Nodes = append(def.Nodes, nd.node())
	}
	if err := hunt.ValidateMap(def.Nodes); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func (nd nodeDoc) node() hunt.Node {
	n := hunt.Node{
		ID:        nd.ID,
		Name:      nd.Name,
		Kind:      nd.Kind,
		Objective: nd.Objective,
		Tier:      nd.Tier,
		GroupID:   nd.Group,
		Requires:  nd.Requires,
		Offers:    nd.Offers,
		Rewards: hunt.Reward{
			Currency: nd.Rewards.Currency,
			Keys:     nd.Rewards.Keys,
		},
	}
	for _, b := range nd.Rewards.Buffs {
		uses := 1
		if b.Uses != nil {
			uses = *b.Uses
		}
		n.Rewards.Buffs = append(n.Rewards.Buffs, hunt.BuffGrant{
			Type:       b.Type,
			Objectives: b.Objectives,
			Universal:  b.Universal,
			Reduction:  b.Reduction,
			Uses:       uses,
		})
	}
	return n
}
