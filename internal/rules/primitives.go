package rules

import (
	"fmt"
	"log"
	"strconv"
)

// Builtin primitive names.
const (
	PrimComparison        = "comparison"
	PrimSetMembership     = "set_membership"
	PrimRateLimit         = "rate_limit"
	PrimAccumulation      = "accumulation"
	PrimSequence          = "sequence"
	PrimTemporalGate      = "temporal_gate"
	PrimAccountComparison = "account_comparison"
)

// NewBuiltinRegistry returns a registry populated with the seven core
// primitives. Call once during startup.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, p := range []*Primitive{
		{
			Name: PrimComparison,
			Eval: evalComparison,
			// indicator/timeperiod are hints for the market data plane,
			// carried through by the parser alongside the comparison itself.
			ValidateParams: paramSpec{
				required: []string{"left", "op", "right"},
				optional: []string{"indicator", "timeperiod"},
				strings:  []string{"left", "indicator"},
				numeric:  []string{"timeperiod"},
				ops:      map[string][]string{"op": comparisonOps},
			}.check,
		},
		{
			Name: PrimSetMembership,
			Eval: evalSetMembership,
			ValidateParams: paramSpec{
				required: []string{"field"},
				optional: []string{"allowed", "forbidden"},
				strings:  []string{"field"},
				lists:    []string{"allowed", "forbidden"},
			}.check,
		},
		{
			Name:            PrimRateLimit,
			Eval:            evalRateLimit,
			RequiredContext: []string{"current_time"},
			ValidateParams: paramSpec{
				required: []string{"metric", "max", "window_minutes"},
				numeric:  []string{"max", "window_minutes"},
				strings:  []string{"metric"},
			}.check,
		},
		{
			Name: PrimAccumulation,
			Eval: evalAccumulation,
			ValidateParams: paramSpec{
				required: []string{"field", "threshold"},
				optional: []string{"op"},
				numeric:  []string{"threshold"},
				strings:  []string{"field"},
				ops:      map[string][]string{"op": comparisonOps},
			}.check,
		},
		{
			Name:            PrimSequence,
			Eval:            evalSequence,
			RequiredContext: []string{"event_history"},
			ValidateParams: paramSpec{
				required:    []string{"pattern"},
				optional:    []string{"window_minutes"},
				numeric:     []string{"window_minutes"},
				stringLists: []string{"pattern"},
			}.check,
		},
		{
			Name:            PrimTemporalGate,
			Eval:            evalTemporalGate,
			RequiredContext: []string{"current_time"},
			ValidateParams: paramSpec{
				optional: []string{"start_time", "end_time", "cooldown_end"},
			}.check,
		},
		{
			Name: PrimAccountComparison,
			Eval: evalAccountComparison,
			ValidateParams: paramSpec{
				required: []string{"field", "op", "value"},
				strings:  []string{"field"},
				ops:      map[string][]string{"op": comparisonOps},
			}.check,
		},
	} {
		if err := r.Register(p); err != nil {
			// Only reachable through a programming error in this file.
			panic(err)
		}
	}
	return r
}

var comparisonOps = []string{">", ">=", "<", "<=", "=="}

// paramSpec validates a primitive's parameter map at extension construction:
// unknown keys, missing required keys, wrong-typed values and unknown
// operators are all rejected before the rule is ever evaluated, so the
// evaluators can assert param types without runtime failures.
type paramSpec struct {
	required []string
	optional []string
	numeric  []string
	// strings lists keys whose values must be strings.
	strings []string
	// lists lists keys whose values must be lists.
	lists []string
	// stringLists lists keys whose values must be lists of strings.
	stringLists []string
	ops         map[string][]string
}

func (s paramSpec) check(params map[string]any) error {
	allowed := make(map[string]bool, len(s.required)+len(s.optional))
	for _, k := range s.required {
		allowed[k] = true
		if _, ok := params[k]; !ok {
			return fmt.Errorf("missing required param %q", k)
		}
	}
	for _, k := range s.optional {
		allowed[k] = true
	}
	for k := range params {
		if !allowed[k] {
			return fmt.Errorf("unknown param %q", k)
		}
	}
	for _, k := range s.numeric {
		if v, ok := params[k]; ok {
			if _, numOK := toFloat(v); !numOK {
				return fmt.Errorf("param %q must be numeric, got %T", k, v)
			}
		}
	}
	for _, k := range s.strings {
		if v, ok := params[k]; ok {
			if _, isStr := v.(string); !isStr {
				return fmt.Errorf("param %q must be a string, got %T", k, v)
			}
		}
	}
	for _, k := range s.lists {
		if v, ok := params[k]; ok {
			if _, isList := v.([]any); !isList {
				return fmt.Errorf("param %q must be a list, got %T", k, v)
			}
		}
	}
	for _, k := range s.stringLists {
		v, ok := params[k]
		if !ok {
			continue
		}
		list, isList := v.([]any)
		if !isList {
			return fmt.Errorf("param %q must be a list, got %T", k, v)
		}
		for _, item := range list {
			if _, isStr := item.(string); !isStr {
				return fmt.Errorf("param %q entries must be strings, got %T", k, item)
			}
		}
	}
	for key, valid := range s.ops {
		v, ok := params[key]
		if !ok {
			continue
		}
		op, isStr := v.(string)
		if !isStr || !contains(valid, op) {
			return fmt.Errorf("unknown operator %v for param %q", v, key)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// evalComparison compares a context field (left) against a constant,
// another context field, or a restricted arithmetic expression (right).
// Operand types that cannot be reconciled fail closed rather than aborting
// the tick.
func evalComparison(params map[string]any, ctx *EvalContext) (bool, error) {
	leftField := params["left"].(string)
	op := params["op"].(string)

	left, ok := ctx.Field(leftField)
	if !ok {
		left = 0.0
	}

	right, err := resolveComparisonOperand(params["right"], ctx)
	if err != nil {
		log.Printf("rules: comparison right operand %v: %v (failing closed)", params["right"], err)
		return false, nil
	}

	result, comparable := compareValues(op, left, right)
	if !comparable {
		log.Printf("rules: comparison %v %s %v has irreconcilable types (failing closed)", left, op, right)
		return false, nil
	}
	return result, nil
}

// resolveComparisonOperand resolves the right side of a comparison: numbers
// pass through; strings resolve first as a context field, then as an
// arithmetic expression over context values, then as a numeric literal, and
// finally stand as a plain string.
func resolveComparisonOperand(raw any, ctx *EvalContext) (any, error) {
	s, isStr := raw.(string)
	if !isStr {
		return raw, nil
	}
	if v, ok := ctx.Field(s); ok {
		return v, nil
	}
	if containsArithmetic(s) {
		val, err := evalArithmetic(s, func(ident string) (float64, bool) {
			v, ok := ctx.Field(ident)
			if !ok {
				return 0, false
			}
			return toFloat(v)
		})
		if err != nil {
			return nil, err
		}
		return val, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}

func compareValues(op string, left, right any) (result, comparable bool) {
	if lf, ok := toFloat(left); ok {
		if rf, ok := toFloat(right); ok {
			return compareFloats(op, lf, rf), true
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case ">":
			return ls > rs, true
		case ">=":
			return ls >= rs, true
		case "<":
			return ls < rs, true
		case "<=":
			return ls <= rs, true
		case "==":
			return ls == rs, true
		}
	}
	return false, false
}

func compareFloats(op string, a, b float64) bool {
	switch op {
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case "==":
		return a == b
	default:
		return false
	}
}

// evalSetMembership checks a context value against allowed/forbidden lists.
// With neither list configured the check passes.
func evalSetMembership(params map[string]any, ctx *EvalContext) (bool, error) {
	value, _ := ctx.Field(params["field"].(string))

	if allowed, ok := params["allowed"].([]any); ok && len(allowed) > 0 {
		if !memberOf(value, allowed) {
			return false, nil
		}
	}
	if forbidden, ok := params["forbidden"].([]any); ok && len(forbidden) > 0 {
		if memberOf(value, forbidden) {
			return false, nil
		}
	}
	return true, nil
}

func memberOf(value any, list []any) bool {
	for _, item := range list {
		if valuesEqual(value, item) {
			return true
		}
	}
	return false
}

// evalRateLimit passes while the number of history timestamps inside the
// rolling window stays at or below max.
func evalRateLimit(params map[string]any, ctx *EvalContext) (bool, error) {
	metric := params["metric"].(string)
	max, _ := toFloat(params["max"])
	windowMinutes, _ := toFloat(params["window_minutes"])

	current, err := ctx.CurrentTime()
	if err != nil {
		return false, err
	}

	count := 0
	for _, raw := range ctx.History[metric] {
		ts, err := ParseTimeValue(raw)
		if err != nil {
			log.Printf("rules: rate_limit %s: skipping unparsable timestamp %v", metric, raw)
			continue
		}
		if current-ts <= windowMinutes*60 {
			count++
		}
	}
	return float64(count) <= max, nil
}

// evalAccumulation compares an accumulated context metric against a
// threshold; the operator defaults to >=.
func evalAccumulation(params map[string]any, ctx *EvalContext) (bool, error) {
	field := params["field"].(string)
	threshold, _ := toFloat(params["threshold"])

	op := ">="
	if v, ok := params["op"].(string); ok {
		op = v
	}

	total := 0.0
	if v, ok := ctx.Field(field); ok {
		if f, numOK := toFloat(v); numOK {
			total = f
		}
	}
	return compareFloats(op, total, threshold), nil
}

// evalSequence detects an ordered, not necessarily contiguous occurrence of
// the pattern in the event history, optionally restricted to a trailing
// window.
func evalSequence(params map[string]any, ctx *EvalContext) (bool, error) {
	// Entry types are enforced at extension construction.
	rawPattern := params["pattern"].([]any)
	pattern := make([]string, len(rawPattern))
	for i, p := range rawPattern {
		pattern[i] = p.(string)
	}
	if len(pattern) == 0 {
		return false, nil
	}

	events := ctx.Events
	if windowMinutes, ok := toFloat(params["window_minutes"]); ok && windowMinutes > 0 {
		current, err := ctx.CurrentTime()
		if err != nil {
			return false, err
		}
		filtered := make([]EventRecord, 0, len(events))
		for _, e := range events {
			ts, err := ParseTimeValue(e.Time)
			if err != nil {
				continue
			}
			if current-ts <= windowMinutes*60 {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	idx := 0
	for _, e := range events {
		if e.Name == pattern[idx] {
			idx++
			if idx == len(pattern) {
				return true, nil
			}
		}
	}
	return false, nil
}

// evalTemporalGate restricts evaluation to a time-of-day window, or to after
// a cooldown deadline. With neither configured it always passes.
func evalTemporalGate(params map[string]any, ctx *EvalContext) (bool, error) {
	startRaw, hasStart := params["start_time"]
	endRaw, hasEnd := params["end_time"]

	if hasStart && hasEnd {
		current, err := ctx.CurrentTime()
		if err != nil {
			return false, err
		}
		start, err := ParseTimeValue(startRaw)
		if err != nil {
			return false, fmt.Errorf("start_time: %w", err)
		}
		end, err := ParseTimeValue(endRaw)
		if err != nil {
			return false, fmt.Errorf("end_time: %w", err)
		}
		return start <= current && current <= end, nil
	}

	if cooldownRaw, ok := params["cooldown_end"]; ok {
		current, err := ctx.CurrentTime()
		if err != nil {
			return false, err
		}
		cooldown, err := ParseTimeValue(cooldownRaw)
		if err != nil {
			return false, fmt.Errorf("cooldown_end: %w", err)
		}
		return current >= cooldown, nil
	}

	return true, nil
}

// evalAccountComparison compares a broker account field against a numeric
// threshold. A missing account field is a hard error: proceeding without the
// financial data the rule asked for is not acceptable.
func evalAccountComparison(params map[string]any, ctx *EvalContext) (bool, error) {
	field := params["field"].(string)
	op := params["op"].(string)
	value := params["value"]

	raw, ok := ctx.Account[field]
	if !ok {
		return false, &MissingFieldError{Field: field, Scope: "account"}
	}

	if value == nil {
		log.Printf("rules: account_comparison on %q received nil threshold (failing closed)", field)
		return false, nil
	}

	threshold, ok := toFloat(value)
	if !ok {
		log.Printf("rules: account_comparison threshold %v is not numeric (failing closed)", value)
		return false, nil
	}
	accountValue, ok := toFloat(raw)
	if !ok {
		log.Printf("rules: account field %q value %v is not numeric (failing closed)", field, raw)
		return false, nil
	}

	return compareFloats(op, accountValue, threshold), nil
}
