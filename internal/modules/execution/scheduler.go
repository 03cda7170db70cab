// Package execution turns an approved order into a slice schedule and
// simulates its fills. Orders below the impact threshold go out whole;
// larger orders follow an Almgren-Chriss optimal liquidation trajectory,
// degrading to TWAP when the urgency parameter vanishes.
package execution

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/daytrader/internal/modules/portfolio"
)

// Strategy names appear in trade reasoning and the cycle report.
const (
	StrategyImmediate     = "immediate"
	StrategyAlmgrenChriss = "almgren-chriss"
	StrategyTWAP          = "twap"
)

// Slice is one child order within a plan.
type Slice struct {
	TimeOffset time.Duration `json:"time_offset"`
	Quantity   float64       `json:"quantity"`
}

// Plan is the full slice schedule for one order. Slice quantities always
// sum exactly to Quantity and every slice is strictly positive.
type Plan struct {
	Ticker   string         `json:"ticker"`
	Side     portfolio.Side `json:"side"`
	Quantity float64        `json:"quantity"`
	Price    float64        `json:"price"`
	Strategy string         `json:"strategy"`
	Slices   []Slice        `json:"slices"`
}

// Fill is one simulated execution of a slice.
type Fill struct {
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	FilledAt time.Time `json:"filled_at"`
}

// Result summarizes the simulated fills for a plan.
type Result struct {
	Fills    []Fill  `json:"fills"`
	VWAP     float64 `json:"vwap"`
	Quantity float64 `json:"quantity"`
}

// Config holds the slicing model parameters.
type Config struct {
	ImpactThresholdValue float64       // order value below which no slicing happens
	SliceCount           int           // child orders for sliced plans
	Horizon              time.Duration // execution window for sliced plans
	RiskAversion         float64       // Almgren-Chriss lambda
	Volatility           float64       // assumed daily volatility
	TemporaryImpact      float64       // Almgren-Chriss eta
	SlippageBps          float64       // adverse fill slippage in basis points
}

// DefaultConfig returns the standard slicing parameters.
func DefaultConfig() Config {
	return Config{
		ImpactThresholdValue: 5000.0,
		SliceCount:           5,
		Horizon:              15 * time.Minute,
		RiskAversion:         1e-6,
		Volatility:           0.02,
		TemporaryImpact:      2e-7,
		SlippageBps:          5.0,
	}
}

// Scheduler builds and simulates slice plans.
type Scheduler struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

func NewScheduler(cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.SliceCount < 2 {
		cfg.SliceCount = 2
	}
	return &Scheduler{
		cfg: cfg,
		log: log.With().Str("component", "execution").Logger(),
		now: time.Now,
	}
}

// BuildPlan produces the slice schedule for an order of the given quantity
// at the reference price.
func (s *Scheduler) BuildPlan(ticker string, side portfolio.Side, quantity, price float64) (Plan, error) {
	if quantity <= 0 {
		return Plan{}, fmt.Errorf("non-positive quantity %f for %s", quantity, ticker)
	}
	if price <= 0 {
		return Plan{}, fmt.Errorf("non-positive price %f for %s", price, ticker)
	}

	plan := Plan{
		Ticker:   ticker,
		Side:     side,
		Quantity: quantity,
		Price:    price,
	}

	if quantity*price < s.cfg.ImpactThresholdValue {
		plan.Strategy = StrategyImmediate
		plan.Slices = []Slice{{TimeOffset: 0, Quantity: quantity}}
		return plan, nil
	}

	// Almgren-Chriss urgency: kappa = sqrt(lambda * sigma^2 / eta).
	// The optimal remaining-inventory trajectory is
	//
	//	x(t) = X * sinh(kappa*(T-t)) / sinh(kappa*T)
	//
	// and each slice trades the inventory drop across its interval. As
	// kappa*T -> 0 the trajectory flattens into equal slices, so tiny
	// urgency is handled explicitly as TWAP to avoid sinh cancellation.
	kappa := math.Sqrt(s.cfg.RiskAversion * s.cfg.Volatility * s.cfg.Volatility / s.cfg.TemporaryImpact)
	horizon := s.cfg.Horizon.Seconds()
	n := s.cfg.SliceCount

	plan.Slices = make([]Slice, n)
	step := s.cfg.Horizon / time.Duration(n)

	if kappa*horizon < 1e-4 {
		plan.Strategy = StrategyTWAP
		remaining := quantity
		for i := 0; i < n; i++ {
			q := quantity / float64(n)
			if i == n-1 {
				q = remaining
			}
			plan.Slices[i] = Slice{TimeOffset: time.Duration(i) * step, Quantity: q}
			remaining -= q
		}
		return plan, nil
	}

	plan.Strategy = StrategyAlmgrenChriss
	denom := math.Sinh(kappa * horizon)
	inventory := func(t float64) float64 {
		return quantity * math.Sinh(kappa*(horizon-t)) / denom
	}
	prev := quantity
	remaining := quantity
	for i := 0; i < n; i++ {
		tEnd := horizon * float64(i+1) / float64(n)
		q := prev - inventory(tEnd)
		if i == n-1 {
			q = remaining // absorb float error so slices sum exactly
		}
		if q <= 0 {
			return Plan{}, fmt.Errorf("degenerate slice %d for %s", i, ticker)
		}
		plan.Slices[i] = Slice{TimeOffset: time.Duration(i) * step, Quantity: q}
		prev -= q
		remaining -= q
	}
	return plan, nil
}

// Execute simulates the plan's fills. Paper fills land at the reference
// price moved adversely by the configured slippage, front-loaded slices
// first. For BUY plans availableCash bounds total spend; for SELL plans
// availableQty bounds total quantity. A breach aborts before any fill past
// the limit is recorded.
func (s *Scheduler) Execute(plan Plan, availableCash, availableQty float64) (Result, error) {
	slip := s.cfg.SlippageBps / 10000
	fillPrice := plan.Price * (1 + slip)
	if plan.Side == portfolio.SideSell {
		fillPrice = plan.Price * (1 - slip)
	}

	const eps = 1e-9
	res := Result{Fills: make([]Fill, 0, len(plan.Slices))}
	spent := 0.0
	sold := 0.0
	now := s.now()

	for _, sl := range plan.Slices {
		cost := sl.Quantity * fillPrice
		switch plan.Side {
		case portfolio.SideBuy:
			if spent+cost > availableCash+eps {
				return res, fmt.Errorf("buy %s: %w", plan.Ticker, portfolio.ErrInsufficientCash)
			}
			spent += cost
		case portfolio.SideSell:
			if sold+sl.Quantity > availableQty+eps {
				return res, fmt.Errorf("sell %s: %w", plan.Ticker, portfolio.ErrInsufficientHoldings)
			}
			sold += sl.Quantity
		}
		res.Fills = append(res.Fills, Fill{
			Quantity: sl.Quantity,
			Price:    fillPrice,
			FilledAt: now.Add(sl.TimeOffset),
		})
		res.Quantity += sl.Quantity
	}

	// VWAP over fills; with a flat fill price this equals the fill price,
	// kept as a weighted sum so per-slice impact models can slot in.
	var notional float64
	for _, f := range res.Fills {
		notional += f.Quantity * f.Price
	}
	if res.Quantity > 0 {
		res.VWAP = notional / res.Quantity
	}

	s.log.Debug().
		Str("ticker", plan.Ticker).
		Str("side", string(plan.Side)).
		Str("strategy", plan.Strategy).
		Int("slices", len(plan.Slices)).
		Float64("vwap", res.VWAP).
		Msg("plan executed")

	return res, nil
}
