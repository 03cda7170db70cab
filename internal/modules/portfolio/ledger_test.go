package portfolio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, cash float64) *Ledger {
	t.Helper()
	l, err := NewLedger(nil, cash, zerolog.Nop())
	require.NoError(t, err)
	return l
}

// applyTrade applies a throwaway copy for tests that only care about the
// resulting snapshot.
func applyTrade(l *Ledger, trade Trade) (Snapshot, error) {
	return l.Apply(&trade)
}

func TestLedger_SellEnrichesCallerTradeWithPnL(t *testing.T) {
	l := newTestLedger(t, 1000)

	_, err := applyTrade(l, NewTrade("AAA", SideBuy, 2, 100, 80, "entry"))
	require.NoError(t, err)

	sell := NewTrade("AAA", SideSell, 2, 110, 80, "exit")
	_, err = l.Apply(&sell)
	require.NoError(t, err)

	require.NotNil(t, sell.RealizedPnL)
	assert.InDelta(t, 20, *sell.RealizedPnL, 1e-9)
}

func TestLedger_BuyLeavesCallerPnLNil(t *testing.T) {
	l := newTestLedger(t, 1000)

	buy := NewTrade("AAA", SideBuy, 2, 100, 80, "entry")
	_, err := l.Apply(&buy)
	require.NoError(t, err)
	assert.Nil(t, buy.RealizedPnL)
}

func TestLedger_BuyReducesCashAndAddsHolding(t *testing.T) {
	l := newTestLedger(t, 1000)

	after, err := applyTrade(l, NewTrade("AAA", SideBuy, 2, 100, 80, "test"))
	require.NoError(t, err)

	assert.InDelta(t, 800, after.CashBalance, 1e-9)
	h := after.Holdings["AAA"]
	assert.InDelta(t, 2, h.Quantity, 1e-9)
	assert.InDelta(t, 100, h.AverageCost, 1e-9)
}

func TestLedger_BuyAveragesCost(t *testing.T) {
	l := newTestLedger(t, 1000)

	_, err := applyTrade(l, NewTrade("AAA", SideBuy, 2, 100, 80, "first"))
	require.NoError(t, err)
	after, err := applyTrade(l, NewTrade("AAA", SideBuy, 2, 110, 80, "second"))
	require.NoError(t, err)

	h := after.Holdings["AAA"]
	assert.InDelta(t, 4, h.Quantity, 1e-9)
	assert.InDelta(t, 105, h.AverageCost, 1e-9)
}

func TestLedger_InsufficientCashLeavesStateUnchanged(t *testing.T) {
	l := newTestLedger(t, 100)

	_, err := applyTrade(l, NewTrade("AAA", SideBuy, 2, 100, 80, "too big"))
	assert.ErrorIs(t, err, ErrInsufficientCash)

	state := l.CurrentState()
	assert.InDelta(t, 100, state.CashBalance, 1e-9)
	assert.Empty(t, state.Holdings)
}

func TestLedger_SellRealizesPnL(t *testing.T) {
	l := newTestLedger(t, 1000)

	_, err := applyTrade(l, NewTrade("AAA", SideBuy, 2, 100, 80, "entry"))
	require.NoError(t, err)

	after, err := applyTrade(l, NewTrade("AAA", SideSell, 2, 110, 80, "exit"))
	require.NoError(t, err)

	// 1000 - 200 + 220
	assert.InDelta(t, 1020, after.CashBalance, 1e-9)
	assert.Empty(t, after.Holdings, "full exit removes the holding")

	winRate, _ := l.WinStats()
	assert.InDelta(t, 1.0, winRate, 1e-9)
}

func TestLedger_PartialSellKeepsAverageCost(t *testing.T) {
	l := newTestLedger(t, 1000)

	_, err := applyTrade(l, NewTrade("AAA", SideBuy, 4, 100, 80, "entry"))
	require.NoError(t, err)

	after, err := applyTrade(l, NewTrade("AAA", SideSell, 1, 90, 80, "trim"))
	require.NoError(t, err)

	h := after.Holdings["AAA"]
	assert.InDelta(t, 3, h.Quantity, 1e-9)
	assert.InDelta(t, 100, h.AverageCost, 1e-9)

	winRate, _ := l.WinStats()
	assert.InDelta(t, 0.0, winRate, 1e-9) // one loss
}

func TestLedger_OversellLeavesStateUnchanged(t *testing.T) {
	l := newTestLedger(t, 1000)

	_, err := applyTrade(l, NewTrade("AAA", SideBuy, 2, 100, 80, "entry"))
	require.NoError(t, err)

	_, err = applyTrade(l, NewTrade("AAA", SideSell, 5, 100, 80, "oversell"))
	assert.ErrorIs(t, err, ErrInsufficientHoldings)

	state := l.CurrentState()
	assert.InDelta(t, 2, state.Holdings["AAA"].Quantity, 1e-9)
	assert.InDelta(t, 800, state.CashBalance, 1e-9)
}

func TestLedger_SellUnknownTicker(t *testing.T) {
	l := newTestLedger(t, 1000)

	_, err := applyTrade(l, NewTrade("ZZZ", SideSell, 1, 100, 80, "phantom"))
	assert.ErrorIs(t, err, ErrInsufficientHoldings)
}

func TestLedger_RejectsDegenerateTrades(t *testing.T) {
	l := newTestLedger(t, 1000)

	_, err := applyTrade(l, NewTrade("AAA", SideBuy, 0, 100, 80, "zero qty"))
	assert.Error(t, err)

	_, err = applyTrade(l, NewTrade("AAA", SideBuy, 1, -10, 80, "negative price"))
	assert.Error(t, err)
}

func TestLedger_SnapshotIsDeepCopy(t *testing.T) {
	l := newTestLedger(t, 1000)

	_, err := applyTrade(l, NewTrade("AAA", SideBuy, 2, 100, 80, "entry"))
	require.NoError(t, err)

	snap := l.CurrentState()
	snap.Holdings["AAA"] = Holding{Quantity: 999}
	snap.CashBalance = 0

	state := l.CurrentState()
	assert.InDelta(t, 2, state.Holdings["AAA"].Quantity, 1e-9)
	assert.InDelta(t, 800, state.CashBalance, 1e-9)
}

func TestLedger_WinStatsDefaultsWithoutHistory(t *testing.T) {
	l := newTestLedger(t, 1000)

	winRate, rewardRisk := l.WinStats()
	assert.InDelta(t, 0.55, winRate, 1e-9)
	assert.InDelta(t, 1.5, rewardRisk, 1e-9)
}

func TestSnapshot_TotalEquity(t *testing.T) {
	snap := Snapshot{
		CashBalance: 500,
		Holdings: map[string]Holding{
			"AAA": {Quantity: 2, AverageCost: 100},
			"BBB": {Quantity: 1, AverageCost: 50},
		},
	}

	// AAA marked at 110, BBB falls back to average cost.
	equity := snap.TotalEquity(map[string]float64{"AAA": 110})
	assert.InDelta(t, 500+220+50, equity, 1e-9)
}
