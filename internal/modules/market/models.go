package market

import (
	"errors"
	"time"
)

// ErrDataUnavailable signals an upstream fetch failure. The affected ticker
// is skipped for the cycle; other tickers are unaffected.
var ErrDataUnavailable = errors.New("market data unavailable")

// Candle is a single OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Body returns the absolute body size of the candle.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the total high-low range.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// UpperShadow returns the upper wick length.
func (c Candle) UpperShadow() float64 {
	if c.Close > c.Open {
		return c.High - c.Close
	}
	return c.High - c.Open
}

// LowerShadow returns the lower wick length.
func (c Candle) LowerShadow() float64 {
	if c.Close > c.Open {
		return c.Open - c.Low
	}
	return c.Close - c.Low
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Midpoint returns the midpoint of the candle body.
func (c Candle) Midpoint() float64 { return (c.Open + c.Close) / 2 }

// BookLevel is one level of bid or ask depth. When a real order book is
// unavailable a source may synthesize levels from quote/volume data.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Quote is the latest observed price/volume state for a ticker.
type Quote struct {
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	AvgVolume float64   `json:"avg_volume"`
	Time      time.Time `json:"time"`
}

// Snapshot is the per-cycle market view for one ticker. Candles are
// time-ascending and immutable once fetched; the snapshot is owned by the
// cycle that fetched it and discarded afterwards.
type Snapshot struct {
	Ticker  string
	Candles []Candle
	Quote   Quote
	Bids    []BookLevel
	Asks    []BookLevel
}

// Closes returns the close series of the snapshot, time-ascending.
func (s *Snapshot) Closes() []float64 {
	closes := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		closes[i] = c.Close
	}
	return closes
}
