package history

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"rule-core/internal/events"
)

// ActionMessage is one user activity update from the upstream stream: an
// executed trade, a realized win or loss, an order placement.
type ActionMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// UserStream consumes the user activity websocket and feeds the tracker.
// Trade-like actions land in the metric history; outcome actions additionally
// land in the ordered event log.
type UserStream struct {
	URL     string
	Tracker *Tracker
	Bus     *events.Bus

	ReconnectWait time.Duration
}

// Start runs the stream until the context is cancelled, reconnecting on error.
func (s *UserStream) Start(ctx context.Context) {
	if s.Tracker == nil || s.URL == "" {
		log.Println("user stream not fully configured; skipping start")
		return
	}
	if s.ReconnectWait == 0 {
		s.ReconnectWait = 5 * time.Second
	}

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.stream(ctx); err != nil {
				log.Printf("user stream: %v (reconnecting in %v)", err, s.ReconnectWait)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.ReconnectWait):
			}
		}
	}()
}

func (s *UserStream) stream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("user stream connected to %s", s.URL)

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
		var msg ActionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("user stream: skipping malformed message: %v", err)
			continue
		}
		s.Apply(msg)
	}
}

// Apply records one action message into the tracker and publishes it.
// Timestamps share the engine's time axis: seconds since midnight UTC.
func (s *UserStream) Apply(msg ActionMessage) {
	ts := msg.Timestamp
	if ts == 0 {
		now := time.Now().UTC()
		ts = float64(now.Hour()*3600 + now.Minute()*60 + now.Second())
	}

	switch msg.Type {
	case "trade", "order":
		s.Tracker.Record(msg.Type+"s", ts)
	case "win", "loss", "scratch":
		s.Tracker.RecordEvent(msg.Type, ts)
	case "reset":
		s.Tracker.Reset()
	default:
		log.Printf("user stream: ignoring unknown action type %q", msg.Type)
		return
	}

	if s.Bus != nil {
		s.Bus.Publish(events.EventUserAction, msg)
	}
}
