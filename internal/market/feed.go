package market

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"rule-core/internal/events"
)

// Feed streams live ticks from an upstream market data websocket and publishes
// them to the event bus. Symbols are sent as a subscription message after
// connecting; the upstream replies with one JSON tick per message.
type Feed struct {
	URL     string
	Bus     *events.Bus
	Symbols []string

	// ReconnectWait bounds the backoff between connection attempts.
	ReconnectWait time.Duration
}

type subscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Start runs the feed until the context is cancelled, reconnecting on error.
func (f *Feed) Start(ctx context.Context) {
	if f.Bus == nil || f.URL == "" {
		log.Println("market feed not fully configured; skipping start")
		return
	}
	if f.ReconnectWait == 0 {
		f.ReconnectWait = 5 * time.Second
	}

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := f.stream(ctx); err != nil {
				log.Printf("market feed: %v (reconnecting in %v)", err, f.ReconnectWait)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.ReconnectWait):
			}
		}
	}()
}

func (f *Feed) stream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Symbols: f.Symbols}); err != nil {
		return err
	}
	log.Printf("market feed connected to %s (%d symbols)", f.URL, len(f.Symbols))

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick Tick
		if err := json.Unmarshal(data, &tick); err != nil {
			log.Printf("market feed: skipping malformed message: %v", err)
			continue
		}
		if tick.Symbol == "" {
			continue
		}
		if tick.Time.IsZero() {
			tick.Time = time.Now().UTC()
		}
		f.Bus.Publish(events.EventMarketTick, tick)
	}
}
