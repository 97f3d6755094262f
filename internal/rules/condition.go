package rules

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// GateKind is the boolean combinator of a condition gate.
type GateKind string

const (
	GateAll  GateKind = "all"
	GateAny  GateKind = "any"
	GateNone GateKind = "none"
)

// ConditionNode is one node of the recursive condition tree: either a Leaf
// referencing an extension id, or a Gate combining child nodes.
type ConditionNode interface {
	eval(results map[string]bool) bool
	collectLeaves(ids *[]string)
}

// Leaf references an extension by id; it evaluates to that extension's
// result. Leaf ids are validated against the rule block's extension set at
// construction time.
type Leaf struct {
	ExtensionID string
}

func (l Leaf) eval(results map[string]bool) bool {
	return results[l.ExtensionID]
}

func (l Leaf) collectLeaves(ids *[]string) {
	*ids = append(*ids, l.ExtensionID)
}

// Gate combines child nodes with ALL/ANY/NONE semantics. A gate with no
// children is vacuously true for every kind: an absent gate is skipped, not
// failed. Rule blocks that only populate a subset of gate kinds rely on this.
type Gate struct {
	Kind     GateKind
	Children []ConditionNode
}

func (g Gate) eval(results map[string]bool) bool {
	if len(g.Children) == 0 {
		return true
	}
	switch g.Kind {
	case GateAll:
		for _, c := range g.Children {
			if !c.eval(results) {
				return false
			}
		}
		return true
	case GateAny:
		for _, c := range g.Children {
			if c.eval(results) {
				return true
			}
		}
		return false
	case GateNone:
		for _, c := range g.Children {
			if c.eval(results) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (g Gate) collectLeaves(ids *[]string) {
	for _, c := range g.Children {
		c.collectLeaves(ids)
	}
}

// ConditionsDef is the wire shape of a condition tree: an object with
// optional all/any/none lists whose entries are extension ids or nested
// condition objects.
type ConditionsDef struct {
	All  []ConditionTerm `json:"all,omitempty" yaml:"all,omitempty"`
	Any  []ConditionTerm `json:"any,omitempty" yaml:"any,omitempty"`
	None []ConditionTerm `json:"none,omitempty" yaml:"none,omitempty"`
}

// ConditionTerm is one entry in a gate list: a bare extension id string or a
// nested conditions object.
type ConditionTerm struct {
	Ref    string
	Nested *ConditionsDef
}

func (t *ConditionTerm) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Ref = s
		return nil
	}
	var nested ConditionsDef
	if err := json.Unmarshal(data, &nested); err != nil {
		return fmt.Errorf("condition entry must be an extension id or a nested condition object: %w", err)
	}
	t.Nested = &nested
	return nil
}

func (t ConditionTerm) MarshalJSON() ([]byte, error) {
	if t.Nested != nil {
		return json.Marshal(t.Nested)
	}
	return json.Marshal(t.Ref)
}

func (t *ConditionTerm) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Ref = node.Value
		return nil
	}
	var nested ConditionsDef
	if err := node.Decode(&nested); err != nil {
		return fmt.Errorf("condition entry must be an extension id or a nested condition object: %w", err)
	}
	t.Nested = &nested
	return nil
}

// buildConditionTree converts the wire shape into a typed tree. A nil or
// empty definition yields an empty ALL gate (always true). When more than one
// of all/any/none is present the gates are combined with an implicit ALL, so
// every populated gate must hold.
func buildConditionTree(def *ConditionsDef) (ConditionNode, error) {
	if def == nil {
		return Gate{Kind: GateAll}, nil
	}

	var gates []ConditionNode
	for _, part := range []struct {
		kind  GateKind
		terms []ConditionTerm
	}{
		{GateAll, def.All},
		{GateAny, def.Any},
		{GateNone, def.None},
	} {
		if len(part.terms) == 0 {
			continue
		}
		children := make([]ConditionNode, 0, len(part.terms))
		for _, term := range part.terms {
			child, err := buildConditionTerm(term)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		gates = append(gates, Gate{Kind: part.kind, Children: children})
	}

	switch len(gates) {
	case 0:
		return Gate{Kind: GateAll}, nil
	case 1:
		return gates[0], nil
	default:
		return Gate{Kind: GateAll, Children: gates}, nil
	}
}

func buildConditionTerm(term ConditionTerm) (ConditionNode, error) {
	if term.Nested != nil {
		return buildConditionTree(term.Nested)
	}
	if term.Ref == "" {
		return nil, configErrorf("condition entry is empty")
	}
	return Leaf{ExtensionID: term.Ref}, nil
}
