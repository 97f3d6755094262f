package rules

import (
	"context"
	"fmt"
	"sort"
)

// EvalContext is the per-tick data bundle fed to rule evaluation. It is built
// fresh for every market update, never mutated during evaluation, and
// discarded afterwards.
type EvalContext struct {
	// Fields holds flat market and derived values (price, rsi, current_time...).
	Fields map[string]any
	// Account is the broker snapshot, present only when the rule set needs it.
	Account map[string]any
	// History maps action metrics ("trades") to timestamp lists.
	History map[string][]any
	// Events is the ordered event history scanned by sequence rules.
	Events []EventRecord
	// Symbol is the instrument this context describes, when known.
	Symbol string
}

// EventRecord is one timestamped entry in the event history.
type EventRecord struct {
	Time any
	Name string
}

// Field looks up a flat context value.
func (c *EvalContext) Field(name string) (any, bool) {
	v, ok := c.Fields[name]
	return v, ok
}

// CurrentTime parses the context clock. Every time-based primitive requires
// it, so absence is a MissingFieldError rather than a silent zero.
func (c *EvalContext) CurrentTime() (float64, error) {
	v, ok := c.Fields["current_time"]
	if !ok {
		return 0, &MissingFieldError{Field: "current_time", Scope: "context"}
	}
	t, err := ParseTimeValue(v)
	if err != nil {
		return 0, fmt.Errorf("current_time: %w", err)
	}
	return t, nil
}

// AccountProvider fetches a broker account snapshot for an exact field list.
type AccountProvider interface {
	GetSnapshot(ctx context.Context, fields []string) (map[string]any, error)
}

// ActionHistoryProvider fetches timestamp lists for the requested metrics.
type ActionHistoryProvider interface {
	GetHistory(ctx context.Context, metrics []string) (map[string][]any, error)
}

// TAMetric names one indicator the rule set wants injected into the market
// context, e.g. {Name: "RSI", Timeperiod: 14} -> context key "RSI_14".
type TAMetric struct {
	Name       string         `json:"name" yaml:"name"`
	Timeperiod int            `json:"timeperiod,omitempty" yaml:"timeperiod,omitempty"`
	Params     map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Key returns the context field name the metric value is published under.
func (m TAMetric) Key() string {
	if m.Timeperiod > 0 {
		return fmt.Sprintf("%s_%d", m.Name, m.Timeperiod)
	}
	return m.Name
}

// ContextRequest describes the data a parsed rule set needs per tick. It is
// produced alongside the rule definitions and shared with the data plane.
type ContextRequest struct {
	Symbol         string     `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	MarketData     []string   `json:"market_data" yaml:"market_data"`
	TALibMetrics   []TAMetric `json:"ta_lib_metrics,omitempty" yaml:"ta_lib_metrics,omitempty"`
	AccountFields  []string   `json:"account_fields" yaml:"account_fields"`
	HistoryMetrics []string   `json:"history_metrics,omitempty" yaml:"history_metrics,omitempty"`
}

// ContextBuilder assembles the full evaluation context: market fields from
// the caller, an account snapshot fetched on demand, and action history.
type ContextBuilder struct {
	Accounts AccountProvider
	Actions  ActionHistoryProvider
	// GlobalAccountFields is the fixed safety field set fetched whenever any
	// account data is needed, so the pre-flight guard always has its inputs.
	GlobalAccountFields []string
}

// Hydrate builds the evaluation context for one tick. Account fields come
// from the request descriptor when present, otherwise from scanning the given
// extensions; either way the global safety set is merged in. Each provider is
// called at most once, and any provider failure aborts the whole hydration —
// a partially populated context is never returned.
func (b *ContextBuilder) Hydrate(ctx context.Context, base map[string]any, req *ContextRequest, exts []*Extension) (*EvalContext, error) {
	fieldSet := make(map[string]struct{})
	var historyMetrics []string

	if req != nil {
		for _, f := range req.AccountFields {
			fieldSet[f] = struct{}{}
		}
		historyMetrics = req.HistoryMetrics
	} else {
		for _, ext := range exts {
			for _, f := range ext.AccountFields() {
				fieldSet[f] = struct{}{}
			}
		}
	}
	for _, f := range b.GlobalAccountFields {
		fieldSet[f] = struct{}{}
	}

	ec := &EvalContext{Fields: make(map[string]any, len(base))}
	for k, v := range base {
		ec.Fields[k] = v
	}
	if req != nil {
		ec.Symbol = req.Symbol
	}

	if len(fieldSet) > 0 {
		if b.Accounts == nil {
			return nil, &ProviderError{Provider: "account", Err: fmt.Errorf("no provider configured")}
		}
		fields := make([]string, 0, len(fieldSet))
		for f := range fieldSet {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		snapshot, err := b.Accounts.GetSnapshot(ctx, fields)
		if err != nil {
			return nil, &ProviderError{Provider: "account", Err: err}
		}
		ec.Account = snapshot
	}

	if b.Actions != nil && len(historyMetrics) > 0 {
		history, err := b.Actions.GetHistory(ctx, historyMetrics)
		if err != nil {
			return nil, &ProviderError{Provider: "history", Err: err}
		}
		ec.History = history
	}

	return ec, nil
}
