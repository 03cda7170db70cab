package portfolio

import (
	"errors"
	"time"
)

// Ledger invariant violations. These are never swallowed: they indicate a
// sizing bug upstream, not an ordinary no-trade outcome.
var (
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// Side is the trade direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Holding is one position. Quantity and AverageCost are always >= 0.
type Holding struct {
	Quantity    float64 `json:"quantity"`
	AverageCost float64 `json:"average_cost"`
}

// Snapshot is a point-in-time copy of the portfolio. Mutating a snapshot
// does not affect the ledger.
type Snapshot struct {
	CashBalance float64            `json:"cash_balance"`
	Holdings    map[string]Holding `json:"holdings"`
}

// TotalEquity recomputes equity from cash plus holdings marked at the given
// prices. Holdings without a price are marked at average cost. Equity is
// always derived, never stored, so it cannot drift.
func (s Snapshot) TotalEquity(prices map[string]float64) float64 {
	equity := s.CashBalance
	for ticker, h := range s.Holdings {
		price, ok := prices[ticker]
		if !ok {
			price = h.AverageCost
		}
		equity += h.Quantity * price
	}
	return equity
}

// Trade is one executed paper trade. Append-only: records are never edited
// or deleted. RealizedPnL is set for SELL trades only.
type Trade struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	RealizedPnL *float64  `json:"realized_pnl,omitempty"`
	Confidence  int       `json:"confidence"`
	Reasoning   string    `json:"reasoning"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// WatchItem is a ticker the AI asked to track instead of trading.
type WatchItem struct {
	Ticker     string    `json:"ticker"`
	Price      float64   `json:"price"`
	Confidence int       `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	UpdatedAt  time.Time `json:"updated_at"`
}
