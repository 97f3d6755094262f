package engine

import (
	"context"
	"testing"
	"time"

	"rule-core/internal/account"
	"rule-core/internal/events"
	"rule-core/internal/history"
	"rule-core/internal/indicators"
	"rule-core/internal/market"
	"rule-core/internal/rules"
	"rule-core/pkg/cache"
)

func buildPlaybook(t *testing.T, doc string) (*rules.Playbook, *rules.ContextRequest) {
	t.Helper()
	pb, req, err := rules.ParsePlaybookJSON([]byte(doc), rules.NewBuiltinRegistry())
	if err != nil {
		t.Fatalf("ParsePlaybookJSON: %v", err)
	}
	return pb, req
}

func newTestService(bus *events.Bus) *Service {
	builder := &rules.ContextBuilder{
		Accounts:            account.NewStaticProvider(nil),
		Actions:             history.NewTracker(100),
		GlobalAccountFields: rules.GlobalAccountFields,
	}
	svc := New(builder, indicators.NewEngine(100), history.NewTracker(100), cache.NewShardedQuoteCache(), bus, nil)
	svc.MinInterval = 0
	return svc
}

const priceAbovePlaybook = `{
  "name": "breakout",
  "rules": [
    {
      "name": "price_entry",
      "category": "ENTRY",
      "extensions": [
        {"id": "above", "primitive": "comparison", "params": {"left": "price", "op": ">", "right": 100}}
      ]
    }
  ],
  "context": {"market_data": ["price", "current_time"], "account_fields": []}
}`

func TestHandleTickPublishesResult(t *testing.T) {
	bus := events.NewBus()
	svc := newTestService(bus)

	results, unsub := bus.Subscribe(events.EventRuleResult, 10)
	defer unsub()

	pb, req := buildPlaybook(t, priceAbovePlaybook)
	svc.Deploy(pb, req)

	svc.HandleTick(context.Background(), market.Tick{
		Symbol: "AAPL", Price: 105.0, Time: time.Now(),
	})

	select {
	case msg := <-results:
		result := msg.(Result)
		if result.Symbol != "AAPL" || result.Price != 105.0 {
			t.Fatalf("result = %+v", result)
		}
		entries := result.Triggered["ENTRY"]
		if len(entries) != 1 || entries[0] != "price_entry" {
			t.Fatalf("Triggered = %v", result.Triggered)
		}
		if !result.AnyTriggered() || !result.RuleTriggered {
			t.Fatal("result should report a triggered rule")
		}
		// No user action was recorded, so the firing rule is a deviation.
		if result.Action || !result.Deviation {
			t.Fatalf("action = %v, deviation = %v", result.Action, result.Deviation)
		}
	default:
		t.Fatal("no result published")
	}
}

func TestUserActionClearsDeviation(t *testing.T) {
	bus := events.NewBus()
	svc := newTestService(bus)

	results, unsub := bus.Subscribe(events.EventRuleResult, 10)
	defer unsub()

	pb, req := buildPlaybook(t, priceAbovePlaybook)
	svc.Deploy(pb, req)

	svc.Tracker.Record("trades", 100)
	svc.HandleTick(context.Background(), market.Tick{Symbol: "AAPL", Price: 105.0, Time: time.Now()})

	result := (<-results).(Result)
	if !result.Action || result.Deviation {
		t.Fatalf("action = %v, deviation = %v", result.Action, result.Deviation)
	}

	// The action flag resets after being consumed.
	svc.lastEval = map[string]time.Time{}
	svc.HandleTick(context.Background(), market.Tick{Symbol: "AAPL", Price: 105.0, Time: time.Now()})
	result = (<-results).(Result)
	if result.Action || !result.Deviation {
		t.Fatalf("second tick: action = %v, deviation = %v", result.Action, result.Deviation)
	}
}

func TestHandleTickWithoutDeploymentIsQuiet(t *testing.T) {
	bus := events.NewBus()
	svc := newTestService(bus)

	results, unsub := bus.Subscribe(events.EventRuleResult, 10)
	defer unsub()

	svc.HandleTick(context.Background(), market.Tick{Symbol: "AAPL", Price: 105.0, Time: time.Now()})

	if len(results) != 0 {
		t.Fatal("undeployed service should not publish results")
	}
	// The quote cache still tracks the tick.
	if q, ok := svc.Quotes.Get("AAPL"); !ok || q.Price != 105.0 {
		t.Fatalf("quote = %+v, %v", q, ok)
	}
}

func TestHandleTickFiltersSymbols(t *testing.T) {
	bus := events.NewBus()
	svc := newTestService(bus)

	results, unsub := bus.Subscribe(events.EventRuleResult, 10)
	defer unsub()

	pb, req := buildPlaybook(t, `{
	  "name": "aapl_only",
	  "rules": [
	    {"name": "r", "category": "ENTRY", "extensions": [
	      {"id": "x", "primitive": "comparison", "params": {"left": "price", "op": ">", "right": 0}}
	    ]}
	  ],
	  "context": {"symbol": "AAPL", "market_data": ["price"], "account_fields": []}
	}`)
	svc.Deploy(pb, req)

	svc.HandleTick(context.Background(), market.Tick{Symbol: "TSLA", Price: 50.0, Time: time.Now()})
	if len(results) != 0 {
		t.Fatal("off-symbol tick should be ignored")
	}

	svc.HandleTick(context.Background(), market.Tick{Symbol: "AAPL", Price: 50.0, Time: time.Now()})
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
}

func TestDeployGenerationsAdvance(t *testing.T) {
	bus := events.NewBus()
	svc := newTestService(bus)

	pb, req := buildPlaybook(t, priceAbovePlaybook)
	g1 := svc.Deploy(pb, req)
	g2 := svc.Deploy(pb, req)
	if g2 <= g1 {
		t.Fatalf("generations should advance: %d then %d", g1, g2)
	}
	if cur := svc.Current(); cur == nil || cur.Generation != g2 {
		t.Fatalf("Current = %+v", cur)
	}

	svc.Undeploy()
	if svc.Current() != nil {
		t.Fatal("Undeploy should clear the deployment")
	}
}

func TestHandleTickThrottlesPerSymbol(t *testing.T) {
	bus := events.NewBus()
	svc := newTestService(bus)
	svc.MinInterval = time.Hour

	results, unsub := bus.Subscribe(events.EventRuleResult, 10)
	defer unsub()

	pb, req := buildPlaybook(t, priceAbovePlaybook)
	svc.Deploy(pb, req)

	for i := 0; i < 5; i++ {
		svc.HandleTick(context.Background(), market.Tick{Symbol: "AAPL", Price: 105.0, Time: time.Now()})
	}
	if len(results) != 1 {
		t.Fatalf("throttle should allow one evaluation, got %d", len(results))
	}
}

func TestRuleErrorsPublishOnErrorTopic(t *testing.T) {
	bus := events.NewBus()
	svc := newTestService(bus)

	results, unsub := bus.Subscribe(events.EventRuleResult, 10)
	defer unsub()
	errs, unsubErrs := bus.Subscribe(events.EventEngineError, 10)
	defer unsubErrs()

	// margin_multiplier is not a field the account provider reports, so the
	// second rule fails with a missing-field error every tick.
	pb, req := buildPlaybook(t, `{
	  "name": "mixed",
	  "rules": [
	    {"name": "price_entry", "category": "ENTRY", "extensions": [
	      {"id": "above", "primitive": "comparison", "params": {"left": "price", "op": ">", "right": 100}}
	    ]},
	    {"name": "margin_check", "category": "RISK", "extensions": [
	      {"id": "mm", "primitive": "account_comparison", "params": {"field": "margin_multiplier", "op": ">=", "value": 2}}
	    ]}
	  ],
	  "context": {"market_data": ["price"], "account_fields": ["margin_multiplier"]}
	}`)
	svc.Deploy(pb, req)

	svc.HandleTick(context.Background(), market.Tick{Symbol: "AAPL", Price: 105.0, Time: time.Now()})

	if len(errs) != 1 {
		t.Fatalf("expected one engine error event, got %d", len(errs))
	}
	evt := (<-errs).(map[string]any)
	if evt["rule"] != "margin_check" || evt["symbol"] != "AAPL" {
		t.Fatalf("error event = %v", evt)
	}

	// The failing rule is isolated: its sibling still fires.
	result := (<-results).(Result)
	if entries := result.Triggered["ENTRY"]; len(entries) != 1 || entries[0] != "price_entry" {
		t.Fatalf("Triggered = %v", result.Triggered)
	}
	if result.Errors["margin_check"] == "" {
		t.Fatalf("Errors = %v", result.Errors)
	}
}

func TestGuardConflictsFlowIntoResult(t *testing.T) {
	bus := events.NewBus()
	svc := newTestService(bus)

	blocked := account.NewStaticProvider(nil)
	blocked.Set("trading_blocked", true)
	svc.Builder.Accounts = blocked

	results, unsub := bus.Subscribe(events.EventRuleResult, 10)
	defer unsub()
	conflicts, unsubC := bus.Subscribe(events.EventRuleConflict, 10)
	defer unsubC()

	pb, req := buildPlaybook(t, priceAbovePlaybook)
	svc.Deploy(pb, req)

	svc.HandleTick(context.Background(), market.Tick{Symbol: "AAPL", Price: 105.0, Time: time.Now()})

	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	result := (<-results).(Result)
	if result.AnyTriggered() {
		t.Fatal("blocked account must not trigger rules")
	}
	if len(result.Conflicts["price_entry"]) == 0 {
		t.Fatalf("Conflicts = %v", result.Conflicts)
	}
	if len(conflicts) == 0 {
		t.Fatal("conflict event should be published")
	}
}
