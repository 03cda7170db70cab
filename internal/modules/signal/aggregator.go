package signal

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/daytrader/internal/modules/indicators"
	"github.com/aristath/daytrader/internal/modules/market"
	"github.com/aristath/daytrader/internal/modules/meanreversion"
	"github.com/aristath/daytrader/internal/modules/microstructure"
)

// Weights for the composite score. Fixed; they sum to 1.0.
const (
	weightPattern   = 0.35
	weightTechnical = 0.25
	weightMicro     = 0.20
	weightVolume    = 0.20
)

// Config holds aggregator calibration.
type Config struct {
	ConsultThreshold int     // confidence below this flags the signal ambiguous
	TradeThreshold   float64 // composite magnitude that flips HOLD to BUY/SELL
	ToxicityDiscount float64 // confidence multiplier when toxic flow agrees with the signal
}

// DefaultConfig returns the standard aggregator calibration.
func DefaultConfig() Config {
	return Config{
		ConsultThreshold: 60,
		TradeThreshold:   20,
		ToxicityDiscount: 0.7,
	}
}

// Aggregator merges indicator, microstructure and mean-reversion outputs into
// one base signal with a confidence score and an ambiguity flag.
type Aggregator struct {
	cfg Config
	log zerolog.Logger
}

// NewAggregator creates a new signal aggregator.
func NewAggregator(cfg Config, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		cfg: cfg,
		log: log.With().Str("component", "signal").Logger(),
	}
}

// Aggregate combines the component outputs into a Signal. An indicator error
// (short series) contributes a neutral score rather than failing the ticker.
func (a *Aggregator) Aggregate(
	snap *market.Snapshot,
	ind indicators.Report,
	indErr error,
	micro microstructure.Report,
	gate meanreversion.Verdict,
) Signal {
	scores := Scores{
		Microstructure: micro.Score,
		Volume:         volumeScore(snap.Quote),
	}
	if indErr == nil {
		scores.Technical = ind.TechnicalScore
		scores.Pattern = ind.PatternScore
	}

	scores.Composite = scores.Pattern*weightPattern +
		scores.Technical*weightTechnical +
		scores.Microstructure*weightMicro +
		scores.Volume*weightVolume

	direction, confidence := decide(scores.Composite, a.cfg.TradeThreshold)

	// Strong pattern boosts confidence a notch.
	for _, p := range ind.Patterns {
		if p.Confidence > 75 {
			confidence += 10
			if confidence > 95 {
				confidence = 95
			}
			break
		}
	}

	// Informed-flow risk: toxic volume in the signal's own direction cuts
	// confidence instead of adding to it.
	toxicSameDirection := micro.Toxic &&
		((direction == DirectionBuy && micro.OBI > 0) ||
			(direction == DirectionSell && micro.OBI < 0))
	if toxicSameDirection {
		confidence = int(float64(confidence) * a.cfg.ToxicityDiscount)
	}

	sig := Signal{
		Ticker:     snap.Ticker,
		Direction:  direction,
		Confidence: confidence,
		Scores:     scores,
		GateZScore: gate.ZScore,
		Toxic:      micro.Toxic,
	}

	// Mean-reversion veto only blocks the direction that would increase
	// exposure to the extreme.
	if (direction == DirectionBuy && gate.RejectBuy) ||
		(direction == DirectionSell && gate.RejectSell) {
		sig.Direction = DirectionHold
		sig.GateRejected = true
	}

	sig.Ambiguous = confidence < a.cfg.ConsultThreshold || componentsDisagree(scores)
	sig.Reasoning = a.buildReasoning(ind, indErr, micro, gate, sig)

	a.log.Debug().
		Str("ticker", sig.Ticker).
		Str("direction", string(sig.Direction)).
		Int("confidence", sig.Confidence).
		Bool("ambiguous", sig.Ambiguous).
		Bool("gate_rejected", sig.GateRejected).
		Msg("Signal aggregated")

	return sig
}

// decide maps the composite score to a direction and confidence.
func decide(composite, threshold float64) (Direction, int) {
	abs := composite
	if abs < 0 {
		abs = -abs
	}

	switch {
	case composite > 2*threshold:
		return DirectionBuy, minInt(95, 60+int(composite))
	case composite > threshold:
		return DirectionBuy, minInt(80, 50+int(composite))
	case composite < -2*threshold:
		return DirectionSell, minInt(95, 60+int(abs))
	case composite < -threshold:
		return DirectionSell, minInt(80, 50+int(abs))
	default:
		c := 50 - int(abs)
		if c < 0 {
			c = 0
		}
		return DirectionHold, c
	}
}

// componentsDisagree reports whether the non-neutral components point in
// different directions. Scores within ±10 are treated as neutral.
func componentsDisagree(s Scores) bool {
	components := []float64{s.Technical, s.Pattern, s.Microstructure}
	positive, negative := 0, 0
	for _, c := range components {
		if c > 10 {
			positive++
		} else if c < -10 {
			negative++
		}
	}
	return positive > 0 && negative > 0
}

// volumeScore rewards above-average volume (conviction) and penalizes thin
// tape. Same ladder for BUY and SELL; sign comes from the other components.
func volumeScore(q market.Quote) float64 {
	if q.AvgVolume <= 0 {
		return 0
	}
	ratio := q.Volume / q.AvgVolume
	switch {
	case ratio > 2.0:
		return 30
	case ratio > 1.5:
		return 20
	case ratio > 1.2:
		return 10
	case ratio < 0.5:
		return -20
	case ratio < 0.8:
		return -10
	default:
		return 0
	}
}

func (a *Aggregator) buildReasoning(
	ind indicators.Report,
	indErr error,
	micro microstructure.Report,
	gate meanreversion.Verdict,
	sig Signal,
) string {
	var parts []string

	if indErr != nil {
		parts = append(parts, "indicators: insufficient data")
	} else {
		if len(ind.Patterns) > 0 {
			names := make([]string, 0, 3)
			for i, p := range ind.Patterns {
				if i == 3 {
					break
				}
				names = append(names, p.Name)
			}
			parts = append(parts, "patterns: "+strings.Join(names, ", "))
		}
		if len(ind.Notes) > 0 {
			parts = append(parts, "indicators: "+strings.Join(ind.Notes, "; "))
		}
	}

	parts = append(parts, fmt.Sprintf("OBI %.2f, toxicity %.2f", micro.OBI, micro.Toxicity))

	if gate.Params.MeanReverting {
		parts = append(parts, fmt.Sprintf("OU z-score %.2f", gate.ZScore))
	}
	if sig.GateRejected {
		parts = append(parts, "rejected by mean reversion gate")
	}

	return strings.Join(parts, " | ")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
