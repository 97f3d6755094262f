package market

import "time"

// Tick is one market data update for a symbol. High/Low/Volume are optional
// depending on the upstream feed; Price is always set.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	High   float64   `json:"high,omitempty"`
	Low    float64   `json:"low,omitempty"`
	Volume float64   `json:"volume,omitempty"`
	Time   time.Time `json:"time"`
}
