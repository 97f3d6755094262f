package rules

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExtensionDef is the wire shape of one extension inside a rule definition.
type ExtensionDef struct {
	ID        string         `json:"id" yaml:"id"`
	Primitive string         `json:"primitive" yaml:"primitive"`
	Params    map[string]any `json:"params" yaml:"params"`
}

// RuleDef is the wire shape of one rule block, as produced by the external
// rule parser.
type RuleDef struct {
	Name       string         `json:"name" yaml:"name"`
	Category   string         `json:"category" yaml:"category"`
	Extensions []ExtensionDef `json:"extensions" yaml:"extensions"`
	Conditions *ConditionsDef `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// PlaybookDef bundles a full strategy: rule definitions plus the context
// request describing the data they need.
type PlaybookDef struct {
	Name    string          `json:"name" yaml:"name"`
	Rules   []RuleDef       `json:"rules" yaml:"rules"`
	Context *ContextRequest `json:"context,omitempty" yaml:"context,omitempty"`
}

// BuildRuleBlock constructs a rule block from its definition, resolving
// primitives through the registry.
func BuildRuleBlock(def RuleDef, reg *Registry) (*RuleBlock, error) {
	if def.Name == "" {
		return nil, configErrorf("rule definition has no name")
	}
	category, err := ParseCategory(def.Category)
	if err != nil {
		return nil, &ConfigError{Rule: def.Name, Detail: err.Error()}
	}

	exts := make([]*Extension, 0, len(def.Extensions))
	for _, extDef := range def.Extensions {
		ext, err := NewExtension(extDef.ID, extDef.Primitive, extDef.Params, reg)
		if err != nil {
			return nil, &ConfigError{Rule: def.Name, Detail: err.Error()}
		}
		exts = append(exts, ext)
	}

	return NewRuleBlock(def.Name, category, exts, def.Conditions)
}

// BuildPlaybook constructs a playbook from a full definition. Any invalid
// rule rejects the whole playbook; there are no partial loads.
func BuildPlaybook(def PlaybookDef, reg *Registry) (*Playbook, error) {
	pb := &Playbook{Name: def.Name}
	for _, ruleDef := range def.Rules {
		rb, err := BuildRuleBlock(ruleDef, reg)
		if err != nil {
			return nil, err
		}
		pb.Add(rb)
	}
	return pb, nil
}

// ParsePlaybookJSON decodes and builds a playbook from a JSON document.
func ParsePlaybookJSON(data []byte, reg *Registry) (*Playbook, *ContextRequest, error) {
	var def PlaybookDef
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, nil, fmt.Errorf("decode playbook definition: %w", err)
	}
	pb, err := BuildPlaybook(def, reg)
	if err != nil {
		return nil, nil, err
	}
	return pb, def.Context, nil
}

// PlaybookFile is the on-disk YAML shape holding locally defined playbooks.
type PlaybookFile struct {
	Playbooks []PlaybookDef `yaml:"playbooks"`
}

// LoadPlaybookFile reads playbook definitions from a YAML file.
func LoadPlaybookFile(path string) ([]PlaybookDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file PlaybookFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse playbook file %s: %w", path, err)
	}
	return file.Playbooks, nil
}
