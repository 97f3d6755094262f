package rules

import (
	"os"
	"path/filepath"
	"testing"
)

const playbookJSON = `{
  "name": "momentum_day",
  "rules": [
    {
      "name": "rsi_entry",
      "category": "ENTRY",
      "extensions": [
        {"id": "rsi_ok", "primitive": "comparison", "params": {"left": "RSI_14", "op": ">", "right": 30}},
        {"id": "in_session", "primitive": "temporal_gate", "params": {"start_time": 34200, "end_time": 41400}}
      ],
      "conditions": {"all": ["rsi_ok", "in_session"]}
    },
    {
      "name": "overtrading_stop",
      "category": "DISCIPLINE",
      "extensions": [
        {"id": "trade_cap", "primitive": "rate_limit", "params": {"metric": "trades", "max": 3, "window_minutes": 60}}
      ]
    }
  ],
  "context": {
    "symbol": "AAPL",
    "market_data": ["price", "current_time"],
    "ta_lib_metrics": [{"name": "RSI", "timeperiod": 14}],
    "account_fields": ["buying_power"],
    "history_metrics": ["trades"]
  }
}`

func TestParsePlaybookJSON(t *testing.T) {
	pb, req, err := ParsePlaybookJSON([]byte(playbookJSON), NewBuiltinRegistry())
	if err != nil {
		t.Fatalf("ParsePlaybookJSON: %v", err)
	}
	if pb.Name != "momentum_day" || len(pb.Rules) != 2 {
		t.Fatalf("playbook = %q with %d rules", pb.Name, len(pb.Rules))
	}
	if pb.Rules[0].Category != CategoryEntry || pb.Rules[1].Category != CategoryDiscipline {
		t.Fatalf("categories = %v, %v", pb.Rules[0].Category, pb.Rules[1].Category)
	}
	if req == nil || req.Symbol != "AAPL" {
		t.Fatalf("context request = %+v", req)
	}
	if len(req.TALibMetrics) != 1 || req.TALibMetrics[0].Key() != "RSI_14" {
		t.Fatalf("ta metrics = %+v", req.TALibMetrics)
	}

	// The parsed playbook evaluates end to end.
	ec := &EvalContext{
		Fields:  map[string]any{"RSI_14": 45.0, "current_time": 36000.0},
		History: map[string][]any{"trades": {35900.0}},
	}
	triggered := pb.Evaluate(ec)
	if got := triggered[CategoryEntry]; len(got) != 1 || got[0] != "rsi_entry" {
		t.Fatalf("Triggered[ENTRY] = %v", got)
	}
	if got := triggered[CategoryDiscipline]; len(got) != 1 || got[0] != "overtrading_stop" {
		t.Fatalf("Triggered[DISCIPLINE] = %v", got)
	}
}

func TestParsePlaybookJSONRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown primitive",
			doc:  `{"name": "p", "rules": [{"name": "r", "category": "ENTRY", "extensions": [{"id": "x", "primitive": "warp", "params": {}}]}]}`,
		},
		{
			name: "unknown category",
			doc:  `{"name": "p", "rules": [{"name": "r", "category": "SIDEWAYS", "extensions": []}]}`,
		},
		{
			name: "undeclared condition leaf",
			doc:  `{"name": "p", "rules": [{"name": "r", "category": "ENTRY", "extensions": [], "conditions": {"all": ["ghost"]}}]}`,
		},
		{
			name: "malformed json",
			doc:  `{"name": `,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParsePlaybookJSON([]byte(tt.doc), NewBuiltinRegistry()); err == nil {
				t.Fatal("expected parse failure")
			}
		})
	}
}

func TestLoadPlaybookFile(t *testing.T) {
	doc := `playbooks:
  - name: swing
    rules:
      - name: regime_filter
        category: ENTRY
        extensions:
          - id: regime
            primitive: set_membership
            params:
              field: market_regime
              allowed: [TRENDING, BREAKOUT]
        conditions:
          all: [regime]
    context:
      symbol: TSLA
      market_data: [price, market_regime, current_time]
      account_fields: []
`
	path := filepath.Join(t.TempDir(), "playbooks.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	defs, err := LoadPlaybookFile(path)
	if err != nil {
		t.Fatalf("LoadPlaybookFile: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "swing" {
		t.Fatalf("defs = %+v", defs)
	}
	if defs[0].Context == nil || defs[0].Context.Symbol != "TSLA" {
		t.Fatalf("context = %+v", defs[0].Context)
	}

	pb, err := BuildPlaybook(defs[0], NewBuiltinRegistry())
	if err != nil {
		t.Fatalf("BuildPlaybook: %v", err)
	}
	ec := &EvalContext{Fields: map[string]any{"market_regime": "TRENDING"}}
	if got := pb.Evaluate(ec)[CategoryEntry]; len(got) != 1 || got[0] != "regime_filter" {
		t.Fatalf("Triggered[ENTRY] = %v", got)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewBuiltinRegistry()

	names := reg.Names()
	want := []string{
		PrimComparison, PrimSetMembership, PrimRateLimit, PrimAccumulation,
		PrimSequence, PrimTemporalGate, PrimAccountComparison,
	}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %d primitives", names, len(want))
	}

	if err := reg.Register(&Primitive{Name: PrimComparison}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
	if err := reg.Register(&Primitive{}); err == nil {
		t.Fatal("unnamed primitive should fail")
	}
	if _, err := reg.Get("nope"); err == nil {
		t.Fatal("unknown primitive lookup should fail")
	}
}
