package indicators

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/daytrader/internal/modules/market"
	"github.com/aristath/daytrader/pkg/formulas"
)

// ErrInsufficientData signals a series shorter than the longest indicator
// lookback. Callers treat it as a neutral score, not a hard failure.
var ErrInsufficientData = errors.New("insufficient data for indicators")

// Config holds indicator calibration. Zero value is unusable; use DefaultConfig.
type Config struct {
	RSILength        int
	RSIOversold      float64
	RSIOverbought    float64
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	BollingerLength  int
	BollingerStdDevs float64
	PatternLookback  int
}

// DefaultConfig returns the standard indicator calibration.
func DefaultConfig() Config {
	return Config{
		RSILength:        14,
		RSIOversold:      30,
		RSIOverbought:    70,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		BollingerLength:  20,
		BollingerStdDevs: 2.0,
		PatternLookback:  20,
	}
}

// MinBars returns the minimum number of bars the engine needs.
func (c Config) MinBars() int {
	min := c.RSILength + 1
	if n := c.MACDSlow + c.MACDSignal; n > min {
		min = n
	}
	if c.BollingerLength > min {
		min = c.BollingerLength
	}
	return min
}

// Report is the indicator engine output for one ticker.
type Report struct {
	TechnicalScore float64                  `json:"technical_score"` // [-100, 100]
	PatternScore   float64                  `json:"pattern_score"`   // [-100, 100]
	RSI            *float64                 `json:"rsi,omitempty"`
	MACD           *formulas.MACD           `json:"macd,omitempty"`
	Bollinger      *formulas.BollingerBands `json:"bollinger,omitempty"`
	Patterns       []Pattern                `json:"patterns,omitempty"`
	Notes          []string                 `json:"notes,omitempty"`
}

// Engine computes technical indicators and candlestick pattern flags from an
// OHLCV series. Pure function of its input; deterministic, fixed weights.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates a new indicator engine.
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "indicators").Logger(),
	}
}

// Analyze computes the indicator report for a snapshot.
// Returns ErrInsufficientData when the series is shorter than the longest lookback.
func (e *Engine) Analyze(snap *market.Snapshot) (Report, error) {
	if len(snap.Candles) < e.cfg.MinBars() {
		return Report{}, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(snap.Candles), e.cfg.MinBars())
	}

	closes := snap.Closes()
	report := Report{
		RSI:       formulas.CalculateRSI(closes, e.cfg.RSILength),
		MACD:      formulas.CalculateMACD(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal),
		Bollinger: formulas.CalculateBollingerBands(closes, e.cfg.BollingerLength, e.cfg.BollingerStdDevs),
	}

	report.TechnicalScore = e.technicalScore(&report, closes[len(closes)-1])

	patterns := DetectPatterns(snap.Candles, e.cfg.PatternLookback)
	report.Patterns = patterns
	report.PatternScore = PatternScore(patterns)

	e.log.Debug().
		Str("ticker", snap.Ticker).
		Float64("technical", report.TechnicalScore).
		Float64("pattern", report.PatternScore).
		Int("patterns", len(patterns)).
		Msg("Indicator report")

	return report, nil
}

// technicalScore combines RSI, MACD and Bollinger position into [-100, 100].
// Weights: RSI distance from its bands ×2, MACD histogram ×10 capped at ±30,
// Bollinger band breach ±20.
func (e *Engine) technicalScore(r *Report, price float64) float64 {
	score := 0.0

	if r.RSI != nil {
		rsi := *r.RSI
		switch {
		case rsi < e.cfg.RSIOversold:
			score += (e.cfg.RSIOversold - rsi) * 2
			r.Notes = append(r.Notes, fmt.Sprintf("RSI oversold (%.1f)", rsi))
		case rsi > e.cfg.RSIOverbought:
			score -= (rsi - e.cfg.RSIOverbought) * 2
			r.Notes = append(r.Notes, fmt.Sprintf("RSI overbought (%.1f)", rsi))
		}
	}

	if r.MACD != nil {
		diff := r.MACD.Line - r.MACD.Signal
		macdScore := diff * 10
		if macdScore > 30 {
			macdScore = 30
		}
		if macdScore < -30 {
			macdScore = -30
		}
		score += macdScore
		if diff > 0 {
			r.Notes = append(r.Notes, "MACD above signal line")
		} else if diff < 0 {
			r.Notes = append(r.Notes, "MACD below signal line")
		}
	}

	if r.Bollinger != nil {
		switch {
		case price < r.Bollinger.Lower:
			score += 20
			r.Notes = append(r.Notes, "price below lower Bollinger band")
		case price > r.Bollinger.Upper:
			score -= 20
			r.Notes = append(r.Notes, "price above upper Bollinger band")
		}
	}

	return clampScore(score)
}

func clampScore(score float64) float64 {
	if score > 100 {
		return 100
	}
	if score < -100 {
		return -100
	}
	return score
}
