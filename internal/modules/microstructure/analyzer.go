package microstructure

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/daytrader/internal/modules/market"
)

// Config holds microstructure calibration.
type Config struct {
	DepthLevels       int     // book levels used for OBI
	DecayLambda       float64 // exponential decay across levels
	BucketCount       int     // number of volume buckets per VPIN window
	RecentBuckets     int     // buckets averaged into the toxicity value
	ToxicityThreshold float64 // above this, same-direction signals are downgraded
}

// DefaultConfig returns the standard microstructure calibration.
func DefaultConfig() Config {
	return Config{
		DepthLevels:       5,
		DecayLambda:       0.5,
		BucketCount:       10,
		RecentBuckets:     5,
		ToxicityThreshold: 0.7,
	}
}

// Report is the microstructure output for one ticker.
type Report struct {
	OBI      float64 `json:"obi"`      // [-1, 1], positive = buy pressure
	Toxicity float64 `json:"toxicity"` // [0, 1], VPIN proxy
	Score    float64 `json:"score"`    // [-100, 100]
	Toxic    bool    `json:"toxic"`
}

// Analyzer computes order-book imbalance and a volume-toxicity proxy.
type Analyzer struct {
	cfg Config
	log zerolog.Logger
}

// NewAnalyzer creates a new microstructure analyzer.
func NewAnalyzer(cfg Config, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		cfg: cfg,
		log: log.With().Str("component", "microstructure").Logger(),
	}
}

// Analyze computes the microstructure report from a snapshot.
func (a *Analyzer) Analyze(snap *market.Snapshot) Report {
	obi := a.OrderBookImbalance(snap.Bids, snap.Asks)
	toxicity := a.Toxicity(snap.Candles)

	report := Report{
		OBI:      obi,
		Toxicity: toxicity,
		Score:    clamp(obi*50, -100, 100),
		Toxic:    toxicity > a.cfg.ToxicityThreshold,
	}

	a.log.Debug().
		Str("ticker", snap.Ticker).
		Float64("obi", obi).
		Float64("toxicity", toxicity).
		Bool("toxic", report.Toxic).
		Msg("Microstructure report")

	return report
}

// OrderBookImbalance computes depth-weighted OBI over up to DepthLevels
// levels: w_i = e^(-lambda*i). Falls back to level-1 imbalance when only one
// level is available, and to 0 when the book is empty. Result is in [-1, 1];
// positive means buy pressure.
func (a *Analyzer) OrderBookImbalance(bids, asks []market.BookLevel) float64 {
	if len(bids) == 0 || len(asks) == 0 {
		return 0
	}

	var bidWeighted, askWeighted float64
	for i := 0; i < len(bids) && i < a.cfg.DepthLevels; i++ {
		bidWeighted += bids[i].Size * math.Exp(-a.cfg.DecayLambda*float64(i))
	}
	for i := 0; i < len(asks) && i < a.cfg.DepthLevels; i++ {
		askWeighted += asks[i].Size * math.Exp(-a.cfg.DecayLambda*float64(i))
	}

	total := bidWeighted + askWeighted
	if total == 0 {
		return 0
	}

	return clamp((bidWeighted-askWeighted)/total, -1, 1)
}

// Toxicity is a VPIN proxy: trades are grouped into fixed-volume buckets,
// each classified buy- or sell-initiated by the sign of the price change,
// and the absolute buy/sell imbalance is averaged across the most recent
// buckets. Without a real tape, each candle stands in for a trade burst.
func (a *Analyzer) Toxicity(candles []market.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}

	totalVolume := 0.0
	for _, c := range candles {
		totalVolume += c.Volume
	}
	if totalVolume == 0 {
		return 0
	}
	bucketVolume := totalVolume / float64(a.cfg.BucketCount)
	if bucketVolume <= 0 {
		return 0
	}

	type bucket struct{ buy, sell float64 }
	var buckets []bucket
	cur := bucket{}
	filled := 0.0

	for i := 1; i < len(candles); i++ {
		vol := candles[i].Volume
		buyInitiated := candles[i].Close >= candles[i-1].Close

		for vol > 0 {
			room := bucketVolume - filled
			take := math.Min(vol, room)
			if buyInitiated {
				cur.buy += take
			} else {
				cur.sell += take
			}
			filled += take
			vol -= take
			if filled >= bucketVolume {
				buckets = append(buckets, cur)
				cur = bucket{}
				filled = 0
			}
		}
	}
	if filled > 0 {
		buckets = append(buckets, cur)
	}
	if len(buckets) == 0 {
		return 0
	}

	recent := buckets
	if len(recent) > a.cfg.RecentBuckets {
		recent = recent[len(recent)-a.cfg.RecentBuckets:]
	}

	sum := 0.0
	for _, b := range recent {
		total := b.buy + b.sell
		if total > 0 {
			sum += math.Abs(b.buy-b.sell) / total
		}
	}

	return clamp(sum/float64(len(recent)), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
