package indicators

import (
	"log"
	"strings"
	"sync"

	talib "github.com/markcheno/go-talib"

	"rule-core/internal/market"
	"rule-core/internal/rules"
)

// Engine maintains per-symbol OHLC windows and computes the indicators a rule
// set asks for. Values are keyed the way rules reference them, e.g. RSI with
// timeperiod 14 becomes "RSI_14".
type Engine struct {
	mu     sync.Mutex
	window int
	series map[string]*ohlcSeries
}

type ohlcSeries struct {
	close []float64
	high  []float64
	low   []float64
}

// NewEngine builds an indicator engine keeping up to window bars per symbol.
func NewEngine(window int) *Engine {
	if window < 50 {
		window = 50
	}
	return &Engine{
		window: window,
		series: make(map[string]*ohlcSeries),
	}
}

// Update ingests a tick into the symbol's window.
func (e *Engine) Update(t market.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.series[t.Symbol]
	if !ok {
		s = &ohlcSeries{}
		e.series[t.Symbol] = s
	}

	high, low := t.High, t.Low
	if high == 0 {
		high = t.Price
	}
	if low == 0 {
		low = t.Price
	}

	s.close = trim(append(s.close, t.Price), e.window)
	s.high = trim(append(s.high, high), e.window)
	s.low = trim(append(s.low, low), e.window)
}

func trim(arr []float64, max int) []float64 {
	if len(arr) > max {
		return arr[len(arr)-max:]
	}
	return arr
}

// BarCount reports how many bars a symbol has accumulated.
func (e *Engine) BarCount(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.series[symbol]; ok {
		return len(s.close)
	}
	return 0
}

// Compute evaluates the requested metrics for a symbol. Metrics the window
// cannot support yet (not enough bars, unknown indicator) are omitted from the
// result rather than reported as zero, so comparison rules fail closed instead
// of firing on a placeholder value.
func (e *Engine) Compute(symbol string, metrics []rules.TAMetric) map[string]float64 {
	e.mu.Lock()
	s, ok := e.series[symbol]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	closes := append([]float64(nil), s.close...)
	highs := append([]float64(nil), s.high...)
	lows := append([]float64(nil), s.low...)
	e.mu.Unlock()

	out := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		period := m.Timeperiod
		if period <= 0 {
			period = 14
		}
		if len(closes) <= period {
			continue
		}

		var series []float64
		switch strings.ToUpper(m.Name) {
		case "RSI":
			series = talib.Rsi(closes, period)
		case "SMA":
			series = talib.Sma(closes, period)
		case "EMA":
			series = talib.Ema(closes, period)
		case "WMA":
			series = talib.Wma(closes, period)
		case "ATR":
			series = talib.Atr(highs, lows, closes, period)
		case "ROC":
			series = talib.Roc(closes, period)
		default:
			log.Printf("indicators: unsupported metric %q for %s", m.Name, symbol)
			continue
		}
		if len(series) == 0 {
			continue
		}
		out[m.Key()] = series[len(series)-1]
	}
	return out
}
