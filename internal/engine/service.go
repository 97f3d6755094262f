// Package engine runs the live rule evaluation loop: market ticks in, rule
// results out.
package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rule-core/internal/events"
	"rule-core/internal/history"
	"rule-core/internal/indicators"
	"rule-core/internal/market"
	"rule-core/internal/rules"
	"rule-core/pkg/cache"
	"rule-core/pkg/db"
)

// Service consumes market ticks and evaluates the deployed playbook against
// each one. Evaluations are serialized; the deployment can be swapped at any
// time and takes effect on the next tick.
type Service struct {
	Builder    *rules.ContextBuilder
	Indicators *indicators.Engine
	Tracker    *history.Tracker
	Quotes     *cache.ShardedQuoteCache
	Bus        *events.Bus
	Store      *db.Queries

	// MinInterval throttles per-symbol evaluation; ticks arriving faster
	// still update the quote cache and indicator windows.
	MinInterval time.Duration

	deployment atomic.Pointer[Deployment]
	generation atomic.Uint64

	mu       sync.Mutex
	lastEval map[string]time.Time
}

// New wires an evaluation service. Store may be nil to skip persistence.
func New(builder *rules.ContextBuilder, ind *indicators.Engine, tracker *history.Tracker, quotes *cache.ShardedQuoteCache, bus *events.Bus, store *db.Queries) *Service {
	return &Service{
		Builder:     builder,
		Indicators:  ind,
		Tracker:     tracker,
		Quotes:      quotes,
		Bus:         bus,
		Store:       store,
		MinInterval: 250 * time.Millisecond,
		lastEval:    make(map[string]time.Time),
	}
}

// Deploy swaps the live rule set and returns the new generation number.
func (s *Service) Deploy(pb *rules.Playbook, req *rules.ContextRequest) uint64 {
	gen := s.generation.Add(1)
	s.deployment.Store(&Deployment{Playbook: pb, Request: req, Generation: gen})
	if s.Bus != nil {
		s.Bus.Publish(events.EventPlaybookDeployed, pb.Name)
	}
	log.Printf("engine: deployed playbook %q (generation %d, %d rules)", pb.Name, gen, len(pb.Rules))
	return gen
}

// Undeploy clears the live rule set; ticks pass through unevaluated.
func (s *Service) Undeploy() {
	s.generation.Add(1)
	s.deployment.Store(nil)
	log.Println("engine: playbook undeployed")
}

// Current returns the live deployment, or nil when none is active.
func (s *Service) Current() *Deployment {
	return s.deployment.Load()
}

// Start subscribes to market ticks and evaluates until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	ticks, unsub := s.Bus.Subscribe(events.EventMarketTick, 200)

	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ticks:
				if !ok {
					return
				}
				tick, isTick := msg.(market.Tick)
				if !isTick {
					continue
				}
				s.HandleTick(ctx, tick)
			}
		}
	}()
}

// HandleTick ingests one tick and evaluates the live playbook against it.
func (s *Service) HandleTick(ctx context.Context, tick market.Tick) {
	if s.Quotes != nil {
		s.Quotes.Set(tick.Symbol, cache.Quote{
			Price:  tick.Price,
			High:   tick.High,
			Low:    tick.Low,
			Volume: tick.Volume,
		})
	}
	if s.Indicators != nil {
		s.Indicators.Update(tick)
	}

	dep := s.deployment.Load()
	if dep == nil {
		return
	}
	if dep.Request != nil && dep.Request.Symbol != "" && dep.Request.Symbol != tick.Symbol {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastEval[tick.Symbol]; ok && time.Since(last) < s.MinInterval {
		return
	}
	s.lastEval[tick.Symbol] = time.Now()

	result, err := s.evaluate(ctx, dep, tick)
	if err != nil {
		log.Printf("engine: evaluation for %s failed: %v", tick.Symbol, err)
		return
	}
	if result == nil {
		return
	}

	if s.Bus != nil {
		s.Bus.Publish(events.EventRuleResult, *result)
		for rule, conflicts := range result.Conflicts {
			s.Bus.Publish(events.EventRuleConflict, map[string]any{
				"rule": rule, "conflicts": conflicts, "symbol": result.Symbol,
			})
		}
	}
	s.persist(ctx, result)
}

// evaluate builds the context and runs the playbook. The deployment is
// re-checked afterwards; a result computed against a replaced rule set is
// dropped.
func (s *Service) evaluate(ctx context.Context, dep *Deployment, tick market.Tick) (*Result, error) {
	base := map[string]any{
		"price":        tick.Price,
		"current_time": secondsSinceMidnight(tick.Time),
	}
	if tick.High != 0 {
		base["high"] = tick.High
	}
	if tick.Low != 0 {
		base["low"] = tick.Low
	}
	if tick.Volume != 0 {
		base["volume"] = tick.Volume
	}
	if s.Indicators != nil && dep.Request != nil {
		for key, v := range s.Indicators.Compute(tick.Symbol, dep.Request.TALibMetrics) {
			base[key] = v
		}
	}

	ec, err := s.Builder.Hydrate(ctx, base, dep.Request, dep.Playbook.AllExtensions())
	if err != nil {
		return nil, err
	}
	ec.Symbol = tick.Symbol
	if s.Tracker != nil {
		ec.Events = s.Tracker.Events()
	}

	report := dep.Playbook.EvaluateReport(ec)

	// A swap during hydration or evaluation invalidates this result.
	if current := s.deployment.Load(); current == nil || current.Generation != dep.Generation {
		return nil, nil
	}

	result := &Result{
		Timestamp:  time.Now().UTC(),
		Symbol:     tick.Symbol,
		Price:      tick.Price,
		Playbook:   dep.Playbook.Name,
		Generation: dep.Generation,
		Triggered:  make(map[string][]string, len(report.Triggered)),
		Conflicts:  report.Conflicts,
	}
	for cat, names := range report.Triggered {
		result.Triggered[string(cat)] = names
	}
	result.RuleTriggered = result.AnyTriggered()
	if s.Tracker != nil {
		result.Action = s.Tracker.ConsumeDirty()
	}
	result.Deviation = result.RuleTriggered != result.Action
	if len(report.Errors) > 0 {
		result.Errors = make(map[string]string, len(report.Errors))
		for rule, evalErr := range report.Errors {
			result.Errors[rule] = evalErr.Error()
			log.Printf("engine: rule %q failed on %s: %v", rule, tick.Symbol, evalErr)
			if s.Bus != nil {
				s.Bus.Publish(events.EventEngineError, map[string]any{
					"rule": rule, "symbol": tick.Symbol, "error": evalErr.Error(),
				})
			}
		}
	}
	return result, nil
}

// persist stores fired rules and guard conflicts. Quiet ticks are not written.
func (s *Service) persist(ctx context.Context, result *Result) {
	if s.Store == nil {
		return
	}
	for cat, names := range result.Triggered {
		for _, name := range names {
			row := db.RuleResult{
				ID:        uuid.NewString(),
				Symbol:    result.Symbol,
				Playbook:  result.Playbook,
				RuleName:  name,
				Category:  cat,
				Triggered: true,
				Price:     result.Price,
			}
			if err := s.Store.InsertRuleResult(ctx, row); err != nil {
				log.Printf("engine: persist result for %q: %v", name, err)
			}
		}
	}
	for rule, conflicts := range result.Conflicts {
		row := db.RuleResult{
			ID:        uuid.NewString(),
			Symbol:    result.Symbol,
			Playbook:  result.Playbook,
			RuleName:  rule,
			Category:  "GUARD",
			Triggered: false,
			Price:     result.Price,
			Conflicts: joinConflicts(conflicts),
		}
		if err := s.Store.InsertRuleResult(ctx, row); err != nil {
			log.Printf("engine: persist conflict for %q: %v", rule, err)
		}
	}
}

func joinConflicts(conflicts []string) string {
	out := ""
	for i, c := range conflicts {
		if i > 0 {
			out += "; "
		}
		out += c
	}
	return out
}

// secondsSinceMidnight reduces a wall clock to the engine's time axis. All
// time params in rules (session windows, cooldowns, history timestamps) share
// this axis, in UTC.
func secondsSinceMidnight(t time.Time) float64 {
	if t.IsZero() {
		t = time.Now()
	}
	u := t.UTC()
	return float64(u.Hour()*3600+u.Minute()*60+u.Second()) + float64(u.Nanosecond())/1e9
}
