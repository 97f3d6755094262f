package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestUserLifecycle(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	now := time.Now().UTC()
	user := User{
		ID:           "user-1",
		Email:        "trader@example.com",
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := q.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := q.GetUserByEmail(ctx, "trader@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.ID != "user-1" {
		t.Fatalf("GetUserByEmail = %+v", got)
	}

	missing, err := q.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil || missing != nil {
		t.Fatalf("absent email should be (nil, nil), got %+v, %v", missing, err)
	}

	if _, err := q.GetUserByID(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUserByID(ghost) = %v, want ErrNotFound", err)
	}

	// Duplicate email violates the unique constraint.
	dup := user
	dup.ID = "user-2"
	if err := q.CreateUser(ctx, dup); err == nil {
		t.Fatal("duplicate email should fail")
	}
}

func TestPlaybookLifecycle(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	rec := PlaybookRecord{
		Name:           "momentum_day",
		Definition:     `{"name":"momentum_day","rules":[]}`,
		ContextRequest: `{"market_data":["price"],"account_fields":[]}`,
	}
	if err := q.SavePlaybook(ctx, rec); err != nil {
		t.Fatalf("SavePlaybook: %v", err)
	}

	// Upsert replaces the definition under the same name.
	rec.Definition = `{"name":"momentum_day","rules":[{"name":"r"}]}`
	if err := q.SavePlaybook(ctx, rec); err != nil {
		t.Fatalf("SavePlaybook upsert: %v", err)
	}

	got, err := q.GetPlaybook(ctx, "momentum_day")
	if err != nil {
		t.Fatalf("GetPlaybook: %v", err)
	}
	if got.Definition != rec.Definition {
		t.Fatalf("Definition = %s", got.Definition)
	}

	if err := q.SavePlaybook(ctx, PlaybookRecord{Name: "swing", Definition: `{}`}); err != nil {
		t.Fatalf("SavePlaybook swing: %v", err)
	}
	all, err := q.ListPlaybooks(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListPlaybooks = %v, %v", all, err)
	}

	if err := q.MarkDeployed(ctx, "swing"); err != nil {
		t.Fatalf("MarkDeployed: %v", err)
	}
	swing, _ := q.GetPlaybook(ctx, "swing")
	momentum, _ := q.GetPlaybook(ctx, "momentum_day")
	if !swing.Deployed || momentum.Deployed {
		t.Fatalf("deployed flags: swing=%v momentum=%v", swing.Deployed, momentum.Deployed)
	}

	// Deploying another playbook clears the previous flag.
	if err := q.MarkDeployed(ctx, "momentum_day"); err != nil {
		t.Fatalf("MarkDeployed: %v", err)
	}
	swing, _ = q.GetPlaybook(ctx, "swing")
	if swing.Deployed {
		t.Fatal("previous deployment flag should be cleared")
	}

	if err := q.MarkDeployed(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkDeployed(ghost) = %v, want ErrNotFound", err)
	}

	if err := q.DeletePlaybook(ctx, "swing"); err != nil {
		t.Fatalf("DeletePlaybook: %v", err)
	}
	if _, err := q.GetPlaybook(ctx, "swing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetPlaybook after delete = %v, want ErrNotFound", err)
	}
}

func TestRuleResultQueries(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	results := []RuleResult{
		{ID: "r1", Symbol: "AAPL", Playbook: "p", RuleName: "rsi_entry", Category: "ENTRY", Triggered: true, Price: 101.5},
		{ID: "r2", Symbol: "AAPL", Playbook: "p", RuleName: "overtrading_stop", Category: "DISCIPLINE", Triggered: false},
		{ID: "r3", Symbol: "TSLA", Playbook: "p", RuleName: "rsi_entry", Category: "ENTRY", Triggered: false, Conflicts: "No cash available."},
	}
	for _, r := range results {
		if err := q.InsertRuleResult(ctx, r); err != nil {
			t.Fatalf("InsertRuleResult(%s): %v", r.ID, err)
		}
	}

	aapl, err := q.ListRuleResults(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("ListRuleResults: %v", err)
	}
	if len(aapl) != 2 {
		t.Fatalf("AAPL results = %d, want 2", len(aapl))
	}

	all, err := q.ListRuleResults(ctx, "", 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("all results = %v, %v", all, err)
	}

	limited, err := q.ListRuleResults(ctx, "", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limited results = %v, %v", limited, err)
	}
}
