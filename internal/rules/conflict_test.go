package rules

import (
	"strings"
	"testing"
)

func TestConflictCheckerFlagsImpossibleThresholds(t *testing.T) {
	checker := NewConflictChecker(map[string]any{
		"buying_power": 10000.0,
		"equity":       "25000", // brokers report numbers as strings
	})

	tests := []struct {
		name     string
		params   map[string]any
		wantHit  bool
		fragment string
	}{
		{
			name:    "satisfiable gte",
			params:  map[string]any{"field": "buying_power", "op": ">=", "value": 5000.0},
			wantHit: false,
		},
		{
			name:     "unsatisfiable gte",
			params:   map[string]any{"field": "buying_power", "op": ">=", "value": 50000.0},
			wantHit:  true,
			fragment: "buying_power >= 50000",
		},
		{
			name:     "unsatisfiable lte",
			params:   map[string]any{"field": "equity", "op": "<=", "value": 1000.0},
			wantHit:  true,
			fragment: "equity <= 1000",
		},
		{
			name:     "unsatisfiable equality",
			params:   map[string]any{"field": "equity", "op": "==", "value": 30000.0},
			wantHit:  true,
			fragment: "equity == 30000",
		},
		{
			name:     "missing field reported",
			params:   map[string]any{"field": "regt_buying_power", "op": ">", "value": 1.0},
			wantHit:  true,
			fragment: "regt_buying_power missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := mustExtension(t, "chk", PrimAccountComparison, tt.params)
			conflicts := checker.CheckExtension(ext)
			if tt.wantHit && len(conflicts) == 0 {
				t.Fatal("expected a conflict")
			}
			if !tt.wantHit && len(conflicts) != 0 {
				t.Fatalf("unexpected conflicts: %v", conflicts)
			}
			if tt.fragment != "" && !strings.Contains(strings.Join(conflicts, " "), tt.fragment) {
				t.Fatalf("conflicts %v missing %q", conflicts, tt.fragment)
			}
		})
	}
}

func TestConflictCheckerIgnoresNonAccountPrimitives(t *testing.T) {
	checker := NewConflictChecker(map[string]any{})
	ext := mustExtension(t, "cmp", PrimComparison, map[string]any{"left": "rsi", "op": ">", "right": 30.0})
	if conflicts := checker.CheckExtension(ext); conflicts != nil {
		t.Fatalf("market-data primitive should never conflict, got %v", conflicts)
	}
}

func TestConflictCheckerRuleBlockAggregation(t *testing.T) {
	checker := NewConflictChecker(map[string]any{"buying_power": 100.0, "cash": 50.0})

	rb := mustRuleBlock(t, "sized_entry", CategoryEntry, []*Extension{
		mustExtension(t, "bp", PrimAccountComparison, map[string]any{"field": "buying_power", "op": ">=", "value": 1000.0}),
		mustExtension(t, "cash", PrimAccountComparison, map[string]any{"field": "cash", "op": ">=", "value": 500.0}),
		mustExtension(t, "rsi", PrimComparison, map[string]any{"left": "rsi", "op": ">", "right": 30.0}),
	}, nil)

	conflicts := checker.CheckRuleBlock(rb)
	if len(conflicts) != 2 {
		t.Fatalf("CheckRuleBlock = %v, want 2 conflicts", conflicts)
	}
}
