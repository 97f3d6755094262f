package rules

import (
	"encoding/json"
	"testing"
)

func mustTree(t *testing.T, jsonDef string) ConditionNode {
	t.Helper()
	var def *ConditionsDef
	if jsonDef != "" {
		def = &ConditionsDef{}
		if err := json.Unmarshal([]byte(jsonDef), def); err != nil {
			t.Fatalf("unmarshal conditions: %v", err)
		}
	}
	root, err := buildConditionTree(def)
	if err != nil {
		t.Fatalf("buildConditionTree: %v", err)
	}
	return root
}

func TestGateSemantics(t *testing.T) {
	results := map[string]bool{"a": true, "b": false, "c": true}

	tests := []struct {
		name string
		def  string
		want bool
	}{
		{"all passes", `{"all": ["a", "c"]}`, true},
		{"all fails on one false", `{"all": ["a", "b"]}`, false},
		{"any passes on one true", `{"any": ["b", "c"]}`, true},
		{"any fails when all false", `{"any": ["b"]}`, false},
		{"none passes when all false", `{"none": ["b"]}`, true},
		{"none fails on one true", `{"none": ["a", "b"]}`, false},
		{"multiple gates combine with all", `{"all": ["a"], "none": ["b"]}`, true},
		{"multiple gates fail together", `{"any": ["a"], "none": ["c"]}`, false},
		{"nested any inside all", `{"all": [{"any": ["a", "b"]}, "c"]}`, true},
		{"nested any all false", `{"all": [{"any": ["b"]}, "c"]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustTree(t, tt.def).eval(results); got != tt.want {
				t.Fatalf("eval(%s) = %v, want %v", tt.def, got, tt.want)
			}
		})
	}
}

func TestEmptyGatesAreVacuouslyTrue(t *testing.T) {
	results := map[string]bool{}

	for _, kind := range []GateKind{GateAll, GateAny, GateNone} {
		if !(Gate{Kind: kind}).eval(results) {
			t.Fatalf("empty %s gate should be true", kind)
		}
	}

	if !mustTree(t, "").eval(results) {
		t.Fatal("nil conditions should be vacuously true")
	}
	if !mustTree(t, `{}`).eval(results) {
		t.Fatal("empty conditions object should be vacuously true")
	}
}

func TestCollectLeaves(t *testing.T) {
	root := mustTree(t, `{"all": [{"any": ["a", "b"]}, "c"], "none": ["d"]}`)
	var leaves []string
	root.collectLeaves(&leaves)

	want := map[string]bool{"a": true, "b": true, "c": true, "d": true}
	if len(leaves) != len(want) {
		t.Fatalf("collectLeaves = %v, want 4 leaves", leaves)
	}
	for _, id := range leaves {
		if !want[id] {
			t.Fatalf("unexpected leaf %q", id)
		}
	}
}

func TestConditionTermRejectsInvalidJSON(t *testing.T) {
	var term ConditionTerm
	if err := json.Unmarshal([]byte(`42`), &term); err == nil {
		t.Fatal("numeric condition entry should be rejected")
	}
}
