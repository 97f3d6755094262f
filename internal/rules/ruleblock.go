package rules

import "fmt"

// Category classifies a rule block within a playbook.
type Category string

const (
	CategoryEntry      Category = "ENTRY"
	CategoryProcess    Category = "PROCESS"
	CategoryRisk       Category = "RISK"
	CategoryDiscipline Category = "DISCIPLINE"
	CategoryExit       Category = "EXIT"
	CategoryOverrides  Category = "OVERRIDES"
)

// ParseCategory validates a category string from a rule definition.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryEntry, CategoryProcess, CategoryRisk, CategoryDiscipline, CategoryExit, CategoryOverrides:
		return c, nil
	default:
		return "", configErrorf("unknown rule category %q", s)
	}
}

// RuleBlock is one named, evaluatable rule: a category, a set of extensions,
// and a condition tree over their results. It is immutable once constructed;
// a rule update replaces the whole block.
type RuleBlock struct {
	Name       string
	Category   Category
	Extensions map[string]*Extension
	Root       ConditionNode

	// order preserves definition order for deterministic evaluation.
	order []string
}

// Verdict is the outcome of evaluating one rule block. Conflicts carries the
// pre-flight account guard violations when they blocked the rule.
type Verdict struct {
	Fired     bool
	Conflicts []string
}

// NewRuleBlock constructs a rule block from parsed definitions. Unknown
// primitives, duplicate extension ids, invalid parameters, and condition
// leaves referencing undeclared extensions all fail here; a rule is rejected
// wholesale rather than partially loaded.
func NewRuleBlock(name string, category Category, extensions []*Extension, conditions *ConditionsDef) (*RuleBlock, error) {
	rb := &RuleBlock{
		Name:       name,
		Category:   category,
		Extensions: make(map[string]*Extension, len(extensions)),
	}
	for _, ext := range extensions {
		if _, dup := rb.Extensions[ext.ID]; dup {
			return nil, &ConfigError{Rule: name, Detail: fmt.Sprintf("duplicate extension id %q", ext.ID)}
		}
		rb.Extensions[ext.ID] = ext
		rb.order = append(rb.order, ext.ID)
	}

	root, err := buildConditionTree(conditions)
	if err != nil {
		return nil, &ConfigError{Rule: name, Detail: err.Error()}
	}

	// Every leaf must reference a declared extension; an unknown id is an
	// authoring bug and fails the load.
	var leaves []string
	root.collectLeaves(&leaves)
	for _, id := range leaves {
		if _, ok := rb.Extensions[id]; !ok {
			return nil, &ConfigError{Rule: name, Detail: fmt.Sprintf("condition references undeclared extension %q", id)}
		}
	}

	rb.Root = root
	return rb, nil
}

// Evaluate runs the rule block against a context:
//  1. If account data is present, the fixed pre-flight safety checks run
//     first; any violation short-circuits the block to false with the
//     conflicts reported in the verdict.
//  2. Every extension is evaluated to a result map.
//  3. The condition tree combines the results.
//
// The function is a pure read of the context and the block's immutable
// definition: identical inputs give identical verdicts.
func (rb *RuleBlock) Evaluate(ctx *EvalContext) (Verdict, error) {
	if ctx.Account != nil {
		if conflicts := ValidateAccount(ctx.Account); len(conflicts) > 0 {
			return Verdict{Fired: false, Conflicts: conflicts}, nil
		}
	}

	results := make(map[string]bool, len(rb.order))
	for _, id := range rb.order {
		ok, err := rb.Extensions[id].Evaluate(ctx)
		if err != nil {
			return Verdict{}, fmt.Errorf("rule %q extension %q: %w", rb.Name, id, err)
		}
		results[id] = ok
	}

	return Verdict{Fired: rb.Root.eval(results)}, nil
}

// ExtensionList returns the block's extensions in definition order.
func (rb *RuleBlock) ExtensionList() []*Extension {
	exts := make([]*Extension, 0, len(rb.order))
	for _, id := range rb.order {
		exts = append(exts, rb.Extensions[id])
	}
	return exts
}
