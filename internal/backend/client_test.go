package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"rule-core/internal/rules"
)

func TestFetchPlaybook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/playbooks/momentum_day" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Error("missing bearer token")
		}
		w.Write([]byte(`{"name":"momentum_day","rules":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	data, err := c.FetchPlaybook(context.Background(), "momentum_day")
	if err != nil {
		t.Fatalf("FetchPlaybook: %v", err)
	}
	var def rules.PlaybookDef
	if err := json.Unmarshal(data, &def); err != nil {
		t.Fatalf("response not a playbook definition: %v", err)
	}
	if def.Name != "momentum_day" {
		t.Fatalf("name = %q", def.Name)
	}
}

func TestPushContextRequest(t *testing.T) {
	var got rules.ContextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/api/playbooks/momentum_day/context" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	creq := &rules.ContextRequest{
		Symbol:        "AAPL",
		MarketData:    []string{"price"},
		AccountFields: []string{"buying_power"},
	}
	if err := c.PushContextRequest(context.Background(), "momentum_day", creq); err != nil {
		t.Fatalf("PushContextRequest: %v", err)
	}
	if got.Symbol != "AAPL" || len(got.AccountFields) != 1 {
		t.Fatalf("backend received %+v", got)
	}
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.FetchPlaybook(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 502")
	}
	if err := c.ReportResult(context.Background(), map[string]any{"ok": true}); err == nil {
		t.Fatal("expected error on 502")
	}
}
