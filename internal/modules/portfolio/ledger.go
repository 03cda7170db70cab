package portfolio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// qtyEpsilon absorbs float rounding when comparing quantities and cash.
const qtyEpsilon = 1e-9

// Ledger holds the authoritative cash/holdings state and the append-only
// trade record. It is the only state shared across tickers; the orchestrator
// serializes risk and execution behind it, the mutex additionally guards
// read-only HTTP projections.
type Ledger struct {
	mu       sync.Mutex
	cash     float64
	holdings map[string]Holding
	repo     *Repository
	log      zerolog.Logger

	// Running stats over closed trades, used for Kelly calibration.
	wins      int
	losses    int
	winTotal  float64
	lossTotal float64
}

// NewLedger creates the ledger, restoring persisted state when present,
// otherwise starting with initialCash. The repository may be nil for
// in-memory use.
func NewLedger(repo *Repository, initialCash float64, log zerolog.Logger) (*Ledger, error) {
	l := &Ledger{
		cash:     initialCash,
		holdings: make(map[string]Holding),
		repo:     repo,
		log:      log.With().Str("component", "ledger").Logger(),
	}

	if repo != nil {
		snap, ok, err := repo.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to restore portfolio: %w", err)
		}
		if ok {
			l.cash = snap.CashBalance
			l.holdings = snap.Holdings
			l.log.Info().
				Float64("cash", l.cash).
				Int("holdings", len(l.holdings)).
				Msg("Portfolio restored")
		} else {
			if err := repo.SaveInitial(Snapshot{CashBalance: initialCash}); err != nil {
				return nil, err
			}
			l.log.Info().Float64("cash", initialCash).Msg("Portfolio initialized")
		}

		// Rebuild win/loss stats from the persisted trade record.
		trades, err := repo.Trades(1000)
		if err != nil {
			return nil, err
		}
		for _, t := range trades {
			if t.Side == SideSell && t.RealizedPnL != nil {
				l.recordOutcome(*t.RealizedPnL)
			}
		}
	}

	return l, nil
}

// CurrentState returns a snapshot of the portfolio. The copy is deep; the
// caller may not mutate ledger state through it.
func (l *Ledger) CurrentState() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	holdings := make(map[string]Holding, len(l.holdings))
	for k, v := range l.holdings {
		holdings[k] = v
	}
	return Snapshot{CashBalance: l.cash, Holdings: holdings}
}

// NewTrade builds a trade record with a fresh ID and timestamp.
func NewTrade(ticker string, side Side, quantity, price float64, confidence int, reasoning string) Trade {
	return Trade{
		ID:         uuid.NewString(),
		Ticker:     ticker,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Confidence: confidence,
		Reasoning:  reasoning,
		ExecutedAt: time.Now().UTC(),
	}
}

// Apply executes a trade against the portfolio. The application is atomic:
// either the trade is validated, persisted and the state mutated, or the
// ledger is left unchanged and the invariant error is returned. A SELL never
// takes a holding below zero; a BUY never takes cash below zero. On a SELL
// the trade is enriched in place with its realized PnL, so the caller's copy
// matches the persisted row.
func (l *Ledger) Apply(trade *Trade) (Snapshot, error) {
	if trade.Quantity <= 0 {
		return Snapshot{}, fmt.Errorf("trade quantity must be positive, got %f", trade.Quantity)
	}
	if trade.Price <= 0 {
		return Snapshot{}, fmt.Errorf("trade price must be positive, got %f", trade.Price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch trade.Side {
	case SideBuy:
		return l.applyBuyLocked(trade)
	case SideSell:
		return l.applySellLocked(trade)
	default:
		return Snapshot{}, fmt.Errorf("unknown trade side %q", trade.Side)
	}
}

func (l *Ledger) applyBuyLocked(trade *Trade) (Snapshot, error) {
	cost := trade.Quantity * trade.Price
	if cost > l.cash+qtyEpsilon {
		return Snapshot{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, cost, l.cash)
	}

	after := l.snapshotLocked()
	after.CashBalance -= cost
	if after.CashBalance < 0 {
		after.CashBalance = 0
	}

	h := after.Holdings[trade.Ticker]
	totalQty := h.Quantity + trade.Quantity
	h.AverageCost = (h.Quantity*h.AverageCost + cost) / totalQty
	h.Quantity = totalQty
	after.Holdings[trade.Ticker] = h

	if err := l.persistLocked(trade, after); err != nil {
		return Snapshot{}, err
	}

	l.cash = after.CashBalance
	l.holdings = after.Holdings

	l.log.Info().
		Str("ticker", trade.Ticker).
		Float64("quantity", trade.Quantity).
		Float64("price", trade.Price).
		Float64("cash_after", l.cash).
		Msg("BUY applied")

	return l.snapshotLocked(), nil
}

func (l *Ledger) applySellLocked(trade *Trade) (Snapshot, error) {
	h, ok := l.holdings[trade.Ticker]
	if !ok || trade.Quantity > h.Quantity+qtyEpsilon {
		return Snapshot{}, fmt.Errorf("%w: selling %.4f of %s, holding %.4f",
			ErrInsufficientHoldings, trade.Quantity, trade.Ticker, h.Quantity)
	}

	pnl := (trade.Price - h.AverageCost) * trade.Quantity
	trade.RealizedPnL = &pnl

	after := l.snapshotLocked()
	after.CashBalance += trade.Quantity * trade.Price

	remaining := h.Quantity - trade.Quantity
	if remaining <= qtyEpsilon {
		delete(after.Holdings, trade.Ticker)
	} else {
		after.Holdings[trade.Ticker] = Holding{Quantity: remaining, AverageCost: h.AverageCost}
	}

	if err := l.persistLocked(trade, after); err != nil {
		return Snapshot{}, err
	}

	l.cash = after.CashBalance
	l.holdings = after.Holdings
	l.recordOutcome(pnl)

	l.log.Info().
		Str("ticker", trade.Ticker).
		Float64("quantity", trade.Quantity).
		Float64("price", trade.Price).
		Float64("pnl", pnl).
		Msg("SELL applied")

	return l.snapshotLocked(), nil
}

func (l *Ledger) persistLocked(trade *Trade, after Snapshot) error {
	if l.repo == nil {
		return nil
	}
	return l.repo.Persist(*trade, after)
}

func (l *Ledger) recordOutcome(pnl float64) {
	if pnl > 0 {
		l.wins++
		l.winTotal += pnl
	} else {
		l.losses++
		l.lossTotal += math.Abs(pnl)
	}
}

// WinStats returns the realized win rate and average reward:risk ratio over
// closed trades. Before enough history exists it returns startup defaults
// (0.55, 1.5).
func (l *Ledger) WinStats() (winRate, rewardRisk float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	closed := l.wins + l.losses
	if closed == 0 {
		return 0.55, 1.5
	}

	winRate = float64(l.wins) / float64(closed)

	avgWin := 1.0
	if l.wins > 0 {
		avgWin = l.winTotal / float64(l.wins)
	}
	avgLoss := 1.0
	if l.losses > 0 && l.lossTotal > 0 {
		avgLoss = l.lossTotal / float64(l.losses)
	}

	return winRate, avgWin / avgLoss
}
