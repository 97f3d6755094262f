package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"rule-core/internal/events"
)

// MockFeed generates synthetic ticks for local development.
type MockFeed struct {
	Bus        *events.Bus
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"AAPL"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	prices := make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		prices[sym] = m.StartPrice
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, sym := range m.Symbols {
					// simple random walk
					price := prices[sym] + (rand.Float64()*2-1)*m.Step
					if price < m.Step {
						price = m.Step
					}
					prices[sym] = price
					m.Bus.Publish(events.EventMarketTick, Tick{
						Symbol: sym,
						Price:  price,
						High:   price + m.Step/2,
						Low:    price - m.Step/2,
						Volume: 100 + rand.Float64()*900,
						Time:   time.Now().UTC(),
					})
				}
			}
		}
	}()
}
