package account

import (
	"context"
	"sync"
)

// StaticProvider serves a fixed account snapshot, for mock mode and tests.
type StaticProvider struct {
	mu     sync.RWMutex
	fields map[string]any
}

// NewStaticProvider wraps a fixed field map. A nil map yields a healthy
// default account so mock mode rules are not blocked by the safety guard.
func NewStaticProvider(fields map[string]any) *StaticProvider {
	if fields == nil {
		fields = map[string]any{
			"trading_blocked":         false,
			"trade_suspended_by_user": false,
			"pattern_day_trader":      false,
			"daytrade_count":          0.0,
			"buying_power":            100000.0,
			"cash":                    50000.0,
			"equity":                  100000.0,
		}
	}
	return &StaticProvider{fields: fields}
}

// Set replaces one field, for scenario toggling at runtime.
func (p *StaticProvider) Set(field string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields[field] = value
}

// GetSnapshot projects the static account onto the requested fields.
func (p *StaticProvider) GetSnapshot(_ context.Context, fields []string) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snapshot := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := p.fields[f]; ok {
			snapshot[f] = v
		}
	}
	return snapshot, nil
}
