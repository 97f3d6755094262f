package rules

// Playbook is an ordered collection of rule blocks representing one full
// strategy. Blocks evaluate in definition order.
type Playbook struct {
	Name  string
	Rules []*RuleBlock
}

// Report is the detailed outcome of one playbook evaluation.
type Report struct {
	// Triggered maps each evaluated category to the names of the rule blocks
	// that fired, in definition order. A category whose blocks were evaluated
	// but did not fire is present with an empty list.
	Triggered map[Category][]string
	// Conflicts holds per-rule account guard violations.
	Conflicts map[string][]string
	// Errors holds per-rule evaluation failures. A failing block counts as
	// not triggered; its siblings still evaluate.
	Errors map[string]error
}

// Add appends a rule block.
func (p *Playbook) Add(rb *RuleBlock) {
	p.Rules = append(p.Rules, rb)
}

// RulesByCategory returns the blocks of one category in definition order.
func (p *Playbook) RulesByCategory(cat Category) []*RuleBlock {
	var out []*RuleBlock
	for _, rb := range p.Rules {
		if rb.Category == cat {
			out = append(out, rb)
		}
	}
	return out
}

// Evaluate runs every rule block and returns the per-category trigger map.
func (p *Playbook) Evaluate(ctx *EvalContext) map[Category][]string {
	return p.EvaluateReport(ctx).Triggered
}

// EvaluateReport runs every rule block against the context, isolating
// failures: one block's evaluator error never prevents its siblings from
// running.
func (p *Playbook) EvaluateReport(ctx *EvalContext) Report {
	report := Report{
		Triggered: make(map[Category][]string),
		Conflicts: make(map[string][]string),
		Errors:    make(map[string]error),
	}

	for _, rb := range p.Rules {
		if _, seen := report.Triggered[rb.Category]; !seen {
			report.Triggered[rb.Category] = []string{}
		}

		verdict, err := rb.Evaluate(ctx)
		if err != nil {
			report.Errors[rb.Name] = err
			continue
		}
		if len(verdict.Conflicts) > 0 {
			report.Conflicts[rb.Name] = verdict.Conflicts
		}
		if verdict.Fired {
			report.Triggered[rb.Category] = append(report.Triggered[rb.Category], rb.Name)
		}
	}

	return report
}

// AllExtensions returns every extension across the playbook's rule blocks in
// definition order, for account-field scanning during hydration.
func (p *Playbook) AllExtensions() []*Extension {
	var exts []*Extension
	for _, rb := range p.Rules {
		exts = append(exts, rb.ExtensionList()...)
	}
	return exts
}
