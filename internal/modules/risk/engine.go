package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/daytrader/internal/modules/advisor"
	"github.com/aristath/daytrader/internal/modules/portfolio"
	"github.com/aristath/daytrader/internal/modules/signal"
)

// Config holds the risk engine limits and model parameters.
type Config struct {
	MinTradeConfidence  int
	AIVetoMargin        int
	MaxPositionFraction float64
	MaxVaRFraction      float64
	VaRConfidence       float64
	StopLossPct         float64 // negative
	TakeProfitPct       float64
	SlippageBps         float64
	BLTau               float64
	BLRiskAversion      float64
	BLViewAlpha         float64
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MinTradeConfidence:  65,
		AIVetoMargin:        0,
		MaxPositionFraction: 0.20,
		MaxVaRFraction:      0.02,
		VaRConfidence:       0.95,
		StopLossPct:         -2.0,
		TakeProfitPct:       4.0,
		SlippageBps:         5.0,
		BLTau:               0.05,
		BLRiskAversion:      2.5,
		BLViewAlpha:         1.5,
	}
}

// Input is everything the engine needs to assess one candidate trade.
// All fields are snapshots; the engine never mutates them.
type Input struct {
	Signal     signal.Signal
	Opinion    *advisor.Opinion // nil when no consultation happened
	Price      float64
	Portfolio  portfolio.Snapshot
	Prices     map[string]float64   // current marks for equity and VaR
	Returns    map[string][]float64 // daily return series per ticker
	WinRate    float64              // realized win rate from closed trades
	RewardRisk float64              // realized avg-win : avg-loss ratio, 0 when unknown
}

// Assessment is the engine's decision for one ticker. When Approved is
// false, RejectionReason says why in trade-log language.
type Assessment struct {
	Ticker          string           `json:"ticker"`
	Decision        advisor.Decision `json:"decision"`
	Confidence      int              `json:"confidence"`
	AIOverride      bool             `json:"ai_override"`
	KellyFraction   float64          `json:"kelly_fraction"`
	TargetWeight    float64          `json:"target_weight"`
	PortfolioVaR    float64          `json:"portfolio_var"`
	VaRLimit        float64          `json:"var_limit"`
	Quantity        float64          `json:"quantity"`
	Approved        bool             `json:"approved"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
}

// Engine sizes and approves trades. It is stateless between calls; all
// portfolio context arrives in the Input.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "risk").Logger(),
	}
}

// Assess resolves the final decision (applying the AI veto rule), then runs
// the candidate through the confidence floor, Kelly sizing, the
// Black-Litterman blend and the portfolio VaR limit. It never errors: an
// unapprovable trade comes back with Approved=false and a reason.
func (e *Engine) Assess(in Input) Assessment {
	sig := in.Signal
	out := Assessment{
		Ticker:     sig.Ticker,
		Decision:   advisor.Decision(sig.Direction),
		Confidence: sig.Confidence,
	}

	// The AI opinion overrides the base signal only when it disagrees AND
	// is at least AIVetoMargin more confident. Agreement takes the higher
	// confidence of the two. A synthetic fail-open opinion never overrides.
	if op := in.Opinion; op != nil && op.ProviderUsed != "" {
		if op.Decision != out.Decision {
			if op.Confidence >= out.Confidence+e.cfg.AIVetoMargin {
				e.log.Info().
					Str("ticker", sig.Ticker).
					Str("signal", string(sig.Direction)).
					Str("ai", string(op.Decision)).
					Int("signal_confidence", sig.Confidence).
					Int("ai_confidence", op.Confidence).
					Msg("AI opinion overrides base signal")
				out.Decision = op.Decision
				out.Confidence = op.Confidence
				out.AIOverride = true
			}
		} else if op.Confidence > out.Confidence {
			out.Confidence = op.Confidence
		}
	}

	switch out.Decision {
	case advisor.DecisionHold:
		out.RejectionReason = "no actionable signal"
		return out
	case advisor.DecisionTrack:
		out.RejectionReason = "tracking only"
		return out
	}

	// The mean-reversion gate binds even when the AI overrode the signal:
	// an extreme z-score is a statistical fact, not an opinion.
	if sig.GateRejected {
		out.RejectionReason = fmt.Sprintf("mean-reversion gate rejected entry (z=%.2f)", sig.GateZScore)
		return out
	}

	if out.Confidence < e.cfg.MinTradeConfidence {
		out.RejectionReason = fmt.Sprintf("confidence %d below minimum %d", out.Confidence, e.cfg.MinTradeConfidence)
		return out
	}

	if in.Price <= 0 {
		out.RejectionReason = "no valid price"
		return out
	}

	if out.Decision == advisor.DecisionSell {
		return e.assessSell(in, out)
	}
	return e.assessBuy(in, out)
}

// assessSell closes the full position. Partial exits are not sized here;
// the stop-loss and take-profit monitors also sell whole positions.
func (e *Engine) assessSell(in Input, out Assessment) Assessment {
	h, ok := in.Portfolio.Holdings[out.Ticker]
	if !ok || h.Quantity <= 0 {
		out.RejectionReason = "no position to sell"
		return out
	}
	out.Quantity = h.Quantity
	out.Approved = true
	return out
}

func (e *Engine) assessBuy(in Input, out Assessment) Assessment {
	equity := in.Portfolio.TotalEquity(in.Prices)
	if equity <= 0 {
		out.RejectionReason = "no equity"
		return out
	}

	// Kelly fraction from confidence-implied win probability and the
	// payoff ratio, hard-capped at the position limit. The configured
	// take-profit : stop-loss ratio is averaged with the realized
	// reward:risk once closed trades exist.
	b := e.cfg.TakeProfitPct / math.Abs(e.cfg.StopLossPct)
	if in.RewardRisk > 0 {
		b = (b + in.RewardRisk) / 2
	}
	p := winProbability(out.Confidence, in.WinRate)
	f := KellyFraction(p, b)
	if f <= 0 {
		out.RejectionReason = "no positive edge"
		return out
	}
	if f > e.cfg.MaxPositionFraction {
		f = e.cfg.MaxPositionFraction
	}
	out.KellyFraction = f

	// With diversification context and a real AI view, average the Kelly
	// fraction with the Black-Litterman posterior weight for the candidate.
	// A lone candidate has no cross-asset structure to blend against.
	target := f
	if w, ok := e.blendedWeight(in, out, f); ok {
		target = (f + w) / 2
	}
	out.TargetWeight = target

	targetValue := target * equity

	// Project VaR with the candidate position added; a breach of the daily
	// loss limit blocks the entry outright.
	values := make(map[string]float64, len(in.Portfolio.Holdings)+1)
	for ticker, h := range in.Portfolio.Holdings {
		price, ok := in.Prices[ticker]
		if !ok {
			price = h.AverageCost
		}
		values[ticker] = h.Quantity * price
	}
	values[out.Ticker] += targetValue

	out.VaRLimit = e.cfg.MaxVaRFraction * equity
	out.PortfolioVaR = PortfolioVaR(values, in.Returns, e.cfg.VaRConfidence)
	if out.PortfolioVaR > out.VaRLimit {
		out.RejectionReason = fmt.Sprintf("projected portfolio VaR %.2f exceeds daily limit %.2f",
			out.PortfolioVaR, out.VaRLimit)
		e.log.Info().
			Str("ticker", out.Ticker).
			Float64("var", out.PortfolioVaR).
			Float64("limit", out.VaRLimit).
			Msg("entry rejected on VaR limit")
		return out
	}

	// Leave headroom for slippage so the fills cannot overdraw cash.
	maxSpend := in.Portfolio.CashBalance / (1 + e.cfg.SlippageBps/10000)
	if targetValue > maxSpend {
		targetValue = maxSpend
	}

	if targetValue < 1.0 {
		out.RejectionReason = "position too small after risk limits"
		return out
	}

	out.Quantity = targetValue / in.Price
	out.Approved = true
	return out
}

// blendedWeight computes the Black-Litterman posterior weight for the
// candidate over the universe of current holdings plus the candidate.
// Returns false when there is no opinion or no cross-asset structure.
func (e *Engine) blendedWeight(in Input, out Assessment, kelly float64) (float64, bool) {
	op := in.Opinion
	if op == nil || op.ProviderUsed == "" {
		return 0, false
	}

	symbols := make([]string, 0, len(in.Portfolio.Holdings)+1)
	for ticker := range in.Portfolio.Holdings {
		if ticker != out.Ticker {
			symbols = append(symbols, ticker)
		}
	}
	symbols = append(symbols, out.Ticker)
	if len(symbols) < 2 {
		return 0, false
	}

	cov, candVol := covarianceMatrix(symbols, in.Returns)

	// Prior weights: current position values normalized over equity, with
	// the candidate entered at its Kelly fraction.
	equity := in.Portfolio.TotalEquity(in.Prices)
	prior := make(map[string]float64, len(symbols))
	for _, ticker := range symbols {
		if ticker == out.Ticker {
			prior[ticker] = kelly
			continue
		}
		h := in.Portfolio.Holdings[ticker]
		price, ok := in.Prices[ticker]
		if !ok {
			price = h.AverageCost
		}
		prior[ticker] = h.Quantity * price / equity
	}

	view := View{
		Symbol:     out.Ticker,
		Return:     ViewReturn(float64(op.Confidence), candVol, e.cfg.BLViewAlpha),
		Confidence: float64(op.Confidence) / 100,
	}
	if op.Decision == advisor.DecisionSell {
		view.Return = -view.Return
	}

	weights, err := PosteriorWeights(symbols, prior, cov, view, e.cfg.BLTau, e.cfg.BLRiskAversion)
	if err != nil {
		e.log.Debug().Err(err).Str("ticker", out.Ticker).Msg("Black-Litterman blend skipped")
		return 0, false
	}

	w := weights[out.Ticker]
	if math.IsNaN(w) || math.IsInf(w, 0) {
		e.log.Debug().Str("ticker", out.Ticker).Msg("Black-Litterman posterior degenerate, blend skipped")
		return 0, false
	}
	if w < 0 {
		w = 0
	}
	if w > e.cfg.MaxPositionFraction {
		w = e.cfg.MaxPositionFraction
	}
	return w, true
}

// covarianceMatrix builds the daily-return covariance for the universe,
// assigning a flat fallback volatility and zero correlation to symbols
// without a usable series. Also returns the last symbol's volatility.
func covarianceMatrix(symbols []string, returns map[string][]float64) (*mat.SymDense, float64) {
	const fallbackDailyVol = 0.02

	minLen := math.MaxInt32
	for _, s := range symbols {
		if r, ok := returns[s]; ok && len(r) >= 2 && len(r) < minLen {
			minLen = len(r)
		}
	}

	n := len(symbols)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		ri, okI := alignedReturns(returns, symbols[i], minLen)
		if !okI {
			cov.SetSym(i, i, fallbackDailyVol*fallbackDailyVol)
			continue
		}
		cov.SetSym(i, i, stat.Variance(ri, nil))
		for j := i + 1; j < n; j++ {
			rj, okJ := alignedReturns(returns, symbols[j], minLen)
			if !okJ {
				continue
			}
			cov.SetSym(i, j, stat.Covariance(ri, rj, nil))
		}
	}

	candVol := math.Sqrt(cov.At(n-1, n-1))
	if candVol <= 0 {
		candVol = fallbackDailyVol
	}
	return cov, candVol
}
