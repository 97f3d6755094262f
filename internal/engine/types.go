package engine

import (
	"time"

	"rule-core/internal/rules"
)

// Deployment is one immutable live rule set: a built playbook plus the context
// request describing the data it needs. Swapping deployments is atomic; an
// in-flight evaluation against an old deployment is discarded, never mixed
// with the new one.
type Deployment struct {
	Playbook   *rules.Playbook
	Request    *rules.ContextRequest
	Generation uint64
}

// Result is the outcome of evaluating the live playbook against one tick. It
// is what websocket clients and the backend receive.
type Result struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Playbook   string    `json:"playbook"`
	Generation uint64    `json:"generation"`
	// Triggered maps category to the rule names that fired.
	Triggered map[string][]string `json:"triggered"`
	// Conflicts maps rule name to account guard violations.
	Conflicts map[string][]string `json:"conflicts,omitempty"`
	// Errors maps rule name to its evaluation failure, when any.
	Errors map[string]string `json:"errors,omitempty"`
	// RuleTriggered reports whether at least one rule fired this tick.
	RuleTriggered bool `json:"rule_triggered"`
	// Action reports whether the user acted since the previous evaluation.
	Action bool `json:"action"`
	// Deviation flags a mismatch between plan and behavior: a rule fired
	// without the user acting, or the user acted with no rule firing.
	Deviation bool `json:"deviation"`
}

// AnyTriggered reports whether at least one rule fired.
func (r *Result) AnyTriggered() bool {
	for _, names := range r.Triggered {
		if len(names) > 0 {
			return true
		}
	}
	return false
}
