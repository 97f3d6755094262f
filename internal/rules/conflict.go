package rules

import "fmt"

// ConflictChecker statically compares a rule's configured account thresholds
// against a snapshot before any live evaluation, surfacing rules that the
// current account state can never satisfy. The check is deliberately scoped
// to the account_comparison primitive: other primitive kinds depend on live
// market data and have no meaningful pre-flight reading.
type ConflictChecker struct {
	Account map[string]any
}

// NewConflictChecker wraps an account snapshot for static rule analysis.
func NewConflictChecker(snapshot map[string]any) *ConflictChecker {
	return &ConflictChecker{Account: snapshot}
}

// CheckExtension reports conflicts between one extension's threshold and the
// snapshot. Non-account_comparison extensions never conflict.
func (c *ConflictChecker) CheckExtension(ext *Extension) []string {
	if ext.PrimitiveName != PrimAccountComparison {
		return nil
	}

	field, _ := ext.Params["field"].(string)
	op, _ := ext.Params["op"].(string)
	value, valueOK := toFloat(ext.Params["value"])

	raw, present := c.Account[field]
	if !present {
		return []string{fmt.Sprintf("Account field %s missing", field)}
	}
	accountValue, accountOK := toFloat(raw)
	if !valueOK || !accountOK {
		return nil
	}

	var conflicts []string
	switch op {
	case ">", ">=":
		if value > accountValue {
			conflicts = append(conflicts, fmt.Sprintf("Rule requires %s >= %v, but account has %v", field, value, accountValue))
		}
	case "<", "<=":
		if value < accountValue {
			conflicts = append(conflicts, fmt.Sprintf("Rule requires %s <= %v, but account has %v", field, value, accountValue))
		}
	case "==":
		if value != accountValue {
			conflicts = append(conflicts, fmt.Sprintf("Rule requires %s == %v, but account has %v", field, value, accountValue))
		}
	}
	return conflicts
}

// CheckRuleBlock aggregates conflicts across a rule block's extensions.
func (c *ConflictChecker) CheckRuleBlock(rb *RuleBlock) []string {
	var all []string
	for _, ext := range rb.ExtensionList() {
		all = append(all, c.CheckExtension(ext)...)
	}
	return all
}
