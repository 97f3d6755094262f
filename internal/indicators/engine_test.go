package indicators

import (
	"testing"
	"time"

	"rule-core/internal/market"
	"rule-core/internal/rules"
)

func feed(t *testing.T, e *Engine, symbol string, prices []float64) {
	t.Helper()
	for _, p := range prices {
		e.Update(market.Tick{Symbol: symbol, Price: p, Time: time.Now()})
	}
}

func risingPrices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func TestComputeProducesKeyedValues(t *testing.T) {
	e := NewEngine(200)
	feed(t, e, "AAPL", risingPrices(60))

	values := e.Compute("AAPL", []rules.TAMetric{
		{Name: "RSI", Timeperiod: 14},
		{Name: "SMA", Timeperiod: 20},
	})

	rsi, ok := values["RSI_14"]
	if !ok {
		t.Fatalf("RSI_14 missing from %v", values)
	}
	// A strictly rising series pins RSI at the top of its range.
	if rsi < 99 {
		t.Fatalf("RSI_14 = %v, want near 100 for monotonic rise", rsi)
	}

	sma, ok := values["SMA_20"]
	if !ok {
		t.Fatalf("SMA_20 missing from %v", values)
	}
	// Mean of the last 20 values of 100..159 is 149.5.
	if sma < 149 || sma > 150 {
		t.Fatalf("SMA_20 = %v, want ~149.5", sma)
	}
}

func TestComputeOmitsUnderfilledMetrics(t *testing.T) {
	e := NewEngine(200)
	feed(t, e, "TSLA", risingPrices(10))

	values := e.Compute("TSLA", []rules.TAMetric{{Name: "SMA", Timeperiod: 50}})
	if _, ok := values["SMA_50"]; ok {
		t.Fatalf("SMA_50 should be omitted with only 10 bars, got %v", values)
	}
}

func TestComputeOmitsUnknownIndicator(t *testing.T) {
	e := NewEngine(200)
	feed(t, e, "AAPL", risingPrices(60))

	values := e.Compute("AAPL", []rules.TAMetric{{Name: "FANCY", Timeperiod: 5}})
	if len(values) != 0 {
		t.Fatalf("unknown indicator should be omitted, got %v", values)
	}
}

func TestWindowTrimsOldBars(t *testing.T) {
	e := NewEngine(50)
	feed(t, e, "AAPL", risingPrices(120))

	if got := e.BarCount("AAPL"); got != 50 {
		t.Fatalf("BarCount = %d, want 50", got)
	}
}

func TestComputeUnknownSymbol(t *testing.T) {
	e := NewEngine(50)
	if values := e.Compute("GHOST", []rules.TAMetric{{Name: "RSI", Timeperiod: 14}}); values != nil {
		t.Fatalf("unknown symbol should return nil, got %v", values)
	}
}
