package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimSource provides simulated market snapshots with realistic behavior.
// Prices follow a mean-reverting walk around a per-ticker base price so the
// downstream models have something to chew on. Each ticker is seeded from its
// name, which keeps runs reproducible.
type SimSource struct {
	mu     sync.Mutex
	bases  map[string]*simBase
	now    func() time.Time
	failAt map[string]bool // tickers that report DataUnavailable, for chaos testing
}

type simBase struct {
	price      float64
	volatility float64
	volume     float64
	rng        *rand.Rand
}

// NewSimSource creates a simulated market source.
func NewSimSource() *SimSource {
	return &SimSource{
		bases:  make(map[string]*simBase),
		now:    time.Now,
		failAt: make(map[string]bool),
	}
}

// SetFailing marks a ticker as unavailable; FetchSnapshot returns
// ErrDataUnavailable for it until cleared.
func (s *SimSource) SetFailing(ticker string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt[ticker] = failing
}

// FetchSnapshot generates a snapshot of `lookback` bars plus a current quote.
func (s *SimSource) FetchSnapshot(ctx context.Context, ticker string, lookback int) (*Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAt[ticker] {
		return nil, fmt.Errorf("sim source %s: %w", ticker, ErrDataUnavailable)
	}

	base := s.baseFor(ticker)
	end := s.now().Truncate(time.Minute)

	candles := make([]Candle, 0, lookback)
	price := base.price
	mean := base.price
	for i := lookback - 1; i >= 0; i-- {
		// Mean-reverting step keeps the series anchored around the base price.
		drift := 0.05 * (mean - price)
		shock := base.rng.NormFloat64() * base.volatility * price
		open := price
		close := price + drift + shock
		high := math.Max(open, close) * (1 + base.rng.Float64()*base.volatility/2)
		low := math.Min(open, close) * (1 - base.rng.Float64()*base.volatility/2)
		vol := base.volume * (0.5 + base.rng.Float64())

		candles = append(candles, Candle{
			Time:   end.Add(-time.Duration(i) * time.Minute),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: vol,
		})
		price = close
	}
	base.price = price

	spread := price * 0.0005
	quote := Quote{
		Price:     price,
		Bid:       price - spread,
		Ask:       price + spread,
		Volume:    candles[len(candles)-1].Volume,
		AvgVolume: base.volume * 0.75,
		Time:      end,
	}

	// Synthesize a shallow book around the quote.
	bids := make([]BookLevel, 5)
	asks := make([]BookLevel, 5)
	for i := 0; i < 5; i++ {
		bids[i] = BookLevel{Price: quote.Bid - float64(i)*spread, Size: base.volume / 1000 * (1 + base.rng.Float64())}
		asks[i] = BookLevel{Price: quote.Ask + float64(i)*spread, Size: base.volume / 1000 * (1 + base.rng.Float64())}
	}

	return &Snapshot{
		Ticker:  ticker,
		Candles: candles,
		Quote:   quote,
		Bids:    bids,
		Asks:    asks,
	}, nil
}

func (s *SimSource) baseFor(ticker string) *simBase {
	if base, ok := s.bases[ticker]; ok {
		return base
	}

	h := fnv.New64a()
	h.Write([]byte(ticker))
	seed := int64(h.Sum64())
	rng := rand.New(rand.NewSource(seed))

	base := &simBase{
		price:      20 + rng.Float64()*400,
		volatility: 0.002 + rng.Float64()*0.004,
		volume:     1e5 + rng.Float64()*1e7,
		rng:        rng,
	}
	s.bases[ticker] = base
	return base
}
