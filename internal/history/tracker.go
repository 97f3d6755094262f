// Package history tracks user trading actions for rate-limit and sequence
// rules.
package history

import (
	"context"
	"sync"

	"rule-core/internal/rules"
)

// Tracker accumulates timestamped user actions in memory. It serves the rule
// engine as its action history provider and keeps the ordered event log that
// sequence rules scan.
type Tracker struct {
	mu        sync.RWMutex
	actions   map[string][]any
	events    []rules.EventRecord
	maxEvents int
	dirty     bool
}

// NewTracker builds a tracker retaining up to maxEvents event records.
func NewTracker(maxEvents int) *Tracker {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &Tracker{
		actions:   make(map[string][]any),
		maxEvents: maxEvents,
	}
}

// Record appends a timestamp to a metric ("trades", "orders"...).
func (t *Tracker) Record(metric string, timestamp float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions[metric] = append(t.actions[metric], timestamp)
	t.dirty = true
}

// RecordEvent appends a named event ("win", "loss"...) to the ordered log.
func (t *Tracker) RecordEvent(name string, timestamp float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, rules.EventRecord{Time: timestamp, Name: name})
	if len(t.events) > t.maxEvents {
		t.events = t.events[len(t.events)-t.maxEvents:]
	}
	t.dirty = true
}

// GetHistory returns timestamp lists for the requested metrics. Unknown
// metrics come back as empty lists, not errors: a rule over a metric with no
// recorded actions simply sees zero occurrences.
func (t *Tracker) GetHistory(_ context.Context, metrics []string) (map[string][]any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string][]any, len(metrics))
	for _, m := range metrics {
		out[m] = append([]any(nil), t.actions[m]...)
	}
	return out, nil
}

// Events returns a copy of the ordered event log.
func (t *Tracker) Events() []rules.EventRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]rules.EventRecord(nil), t.events...)
}

// ConsumeDirty reports whether anything was recorded since the last call and
// resets the flag, so pollers can skip re-evaluation when nothing changed.
func (t *Tracker) ConsumeDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.dirty
	t.dirty = false
	return d
}

// Reset clears all recorded actions and events, for session rollover.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions = make(map[string][]any)
	t.events = nil
	t.dirty = true
}
