package trading

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/daytrader/internal/modules/advisor"
	"github.com/aristath/daytrader/internal/modules/execution"
	"github.com/aristath/daytrader/internal/modules/indicators"
	"github.com/aristath/daytrader/internal/modules/market"
	"github.com/aristath/daytrader/internal/modules/meanreversion"
	"github.com/aristath/daytrader/internal/modules/microstructure"
	"github.com/aristath/daytrader/internal/modules/news"
	"github.com/aristath/daytrader/internal/modules/portfolio"
	"github.com/aristath/daytrader/internal/modules/risk"
	"github.com/aristath/daytrader/internal/modules/signal"
)

// fakeSource serves canned snapshots and errors per ticker.
type fakeSource struct {
	snaps map[string]*market.Snapshot
	fail  map[string]bool
}

func (f *fakeSource) FetchSnapshot(_ context.Context, ticker string, _ int) (*market.Snapshot, error) {
	if f.fail[ticker] {
		return nil, market.ErrDataUnavailable
	}
	snap, ok := f.snaps[ticker]
	if !ok {
		return nil, market.ErrDataUnavailable
	}
	return snap, nil
}

// scriptedProvider always answers with the same opinion JSON.
type scriptedProvider struct {
	text string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Consult(_ context.Context, _ string) (string, error) {
	return p.text, nil
}

// climbSnapshot builds a steadily rising series: every candle closes 0.1
// above its open. The trend fits AR(1) beta ~ 1, so the mean-reversion gate
// passes it through.
func climbSnapshot(ticker string, start float64, n int) *market.Snapshot {
	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	candles := make([]market.Candle, n)
	price := start
	for i := range candles {
		open := price
		price = open + 0.1
		candles[i] = market.Candle{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Open:   open,
			High:   price + 0.02,
			Low:    open - 0.02,
			Close:  price,
			Volume: 10000,
		}
	}
	return &market.Snapshot{
		Ticker:  ticker,
		Candles: candles,
		Quote: market.Quote{
			Price:     price,
			Bid:       price - 0.05,
			Ask:       price + 0.05,
			Volume:    10000,
			AvgVolume: 10000,
			Time:      base.Add(time.Duration(n) * time.Minute),
		},
		Bids: []market.BookLevel{{Price: price - 0.05, Size: 500}, {Price: price - 0.1, Size: 400}},
		Asks: []market.BookLevel{{Price: price + 0.05, Size: 500}, {Price: price + 0.1, Size: 400}},
	}
}

// applySeed seeds the ledger with a position outside the cycle machinery.
func applySeed(l *portfolio.Ledger, trade portfolio.Trade) (portfolio.Snapshot, error) {
	return l.Apply(&trade)
}

func newTestService(t *testing.T, cfg Config, src market.Source, providerText string, initialCash float64) (*Service, *portfolio.Ledger) {
	t.Helper()
	return newTestServiceWithRisk(t, cfg, src, providerText, initialCash, risk.DefaultConfig())
}

func newTestServiceWithRisk(t *testing.T, cfg Config, src market.Source, providerText string, initialCash float64, riskCfg risk.Config) (*Service, *portfolio.Ledger) {
	t.Helper()
	log := zerolog.Nop()

	ledger, err := portfolio.NewLedger(nil, initialCash, log)
	require.NoError(t, err)

	var providers []advisor.Provider
	if providerText != "" {
		providers = []advisor.Provider{&scriptedProvider{text: providerText}}
	}

	svc := NewService(cfg, Deps{
		Market:     src,
		News:       news.NopSource{},
		Indicators: indicators.NewEngine(indicators.DefaultConfig(), log),
		Micro:      microstructure.NewAnalyzer(microstructure.DefaultConfig(), log),
		Gate:       meanreversion.NewGate(2.0, log),
		Aggregator: signal.NewAggregator(signal.DefaultConfig(), log),
		Advisor:    advisor.NewRouter(providers, advisor.DefaultConfig(), log),
		Risk:       risk.NewEngine(riskCfg, log),
		Execution:  execution.NewScheduler(execution.DefaultConfig(), log),
		Ledger:     ledger,
	}, log)

	return svc, ledger
}

func TestRunCycle_AIOpinionDrivesBuy(t *testing.T) {
	src := &fakeSource{snaps: map[string]*market.Snapshot{
		"CLIMB": climbSnapshot("CLIMB", 100, 100),
	}}
	cfg := DefaultConfig([]string{"CLIMB"})
	svc, ledger := newTestService(t, cfg, src,
		`{"decision": "BUY", "confidence": 95, "reasoning": "breakout continuation"}`, 1000)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, StateExecuted, res.State, res.Error)
	require.NotNil(t, res.Opinion)
	assert.Equal(t, "scripted", res.Opinion.ProviderUsed)
	require.NotNil(t, res.Trade)
	assert.Equal(t, portfolio.SideBuy, res.Trade.Side)

	state := ledger.CurrentState()
	assert.Less(t, state.CashBalance, 1000.0)
	h, ok := state.Holdings["CLIMB"]
	require.True(t, ok)
	assert.Greater(t, h.Quantity, 0.0)

	// Position sized at the 20% cap of starting equity, net of slippage.
	assert.InDelta(t, 200, h.Quantity*h.AverageCost, 5)

	assert.Equal(t, 1, report.Executed)
	assert.Equal(t, 1, report.Consulted)
	assert.Equal(t, 0, report.Skipped)
}

func TestRunCycle_FailedFetchIsSkippedNotFatal(t *testing.T) {
	src := &fakeSource{
		snaps: map[string]*market.Snapshot{"CLIMB": climbSnapshot("CLIMB", 100, 100)},
		fail:  map[string]bool{"DEAD": true},
	}
	cfg := DefaultConfig([]string{"CLIMB", "DEAD"})
	svc, _ := newTestService(t, cfg, src,
		`{"decision": "BUY", "confidence": 95, "reasoning": "ok"}`, 1000)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	byTicker := map[string]TickerResult{}
	for _, r := range report.Results {
		byTicker[r.Ticker] = r
	}

	assert.Equal(t, StateSkipped, byTicker["DEAD"].State)
	assert.NotEmpty(t, byTicker["DEAD"].Error)
	assert.Equal(t, StateExecuted, byTicker["CLIMB"].State)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Executed)
}

func TestRunCycle_SyntheticHoldNeverTrades(t *testing.T) {
	src := &fakeSource{snaps: map[string]*market.Snapshot{
		"CLIMB": climbSnapshot("CLIMB", 100, 100),
	}}
	cfg := DefaultConfig([]string{"CLIMB"})
	// No providers at all: every consultation fails open to HOLD.
	svc, ledger := newTestService(t, cfg, src, "", 1000)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	res := report.Results[0]
	assert.NotEqual(t, StateExecuted, res.State)
	assert.Equal(t, 0, report.Executed)

	state := ledger.CurrentState()
	assert.InDelta(t, 1000, state.CashBalance, 1e-9)
	assert.Empty(t, state.Holdings)
}

func TestRunCycle_StopLossForcesExit(t *testing.T) {
	// Price is far below the position's average cost.
	src := &fakeSource{snaps: map[string]*market.Snapshot{
		"CLIMB": climbSnapshot("CLIMB", 100, 100), // last price ~110
	}}
	cfg := DefaultConfig([]string{"CLIMB"})
	svc, ledger := newTestService(t, cfg, src,
		`{"decision": "HOLD", "confidence": 90, "reasoning": "wait"}`, 1000)

	// Seed a position bought at 200: at ~110 that is a -45% hole.
	_, err := applySeed(ledger, portfolio.NewTrade("CLIMB", portfolio.SideBuy, 2, 200, 80, "seed"))
	require.NoError(t, err)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StateExecuted, res.State, res.Error)
	require.NotNil(t, res.Trade)
	assert.Equal(t, portfolio.SideSell, res.Trade.Side)
	assert.Contains(t, res.Trade.Reasoning, "stop-loss")

	state := ledger.CurrentState()
	assert.Empty(t, state.Holdings)
}

func TestRunCycle_TakeProfitForcesExit(t *testing.T) {
	src := &fakeSource{snaps: map[string]*market.Snapshot{
		"CLIMB": climbSnapshot("CLIMB", 100, 100), // last price ~110
	}}
	cfg := DefaultConfig([]string{"CLIMB"})
	svc, ledger := newTestService(t, cfg, src,
		`{"decision": "HOLD", "confidence": 90, "reasoning": "wait"}`, 1000)

	// Seed a position bought at 100: at ~110 that is +10%, past +4%.
	_, err := applySeed(ledger, portfolio.NewTrade("CLIMB", portfolio.SideBuy, 2, 100, 80, "seed"))
	require.NoError(t, err)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StateExecuted, res.State, res.Error)
	require.NotNil(t, res.Trade)
	assert.Equal(t, portfolio.SideSell, res.Trade.Side)
	assert.Contains(t, res.Trade.Reasoning, "take-profit")
	require.NotNil(t, res.Trade.RealizedPnL, "a reported SELL must carry its realized PnL")
	assert.Greater(t, *res.Trade.RealizedPnL, 0.0)

	state := ledger.CurrentState()
	assert.Empty(t, state.Holdings)
	assert.Greater(t, state.CashBalance, 1000.0) // realized the gain

	winRate, _ := ledger.WinStats()
	assert.InDelta(t, 1.0, winRate, 1e-9)
}

func TestRunCycle_TrackGoesToWatchlistNotLedger(t *testing.T) {
	src := &fakeSource{snaps: map[string]*market.Snapshot{
		"CLIMB": climbSnapshot("CLIMB", 100, 100),
	}}
	cfg := DefaultConfig([]string{"CLIMB"})
	svc, ledger := newTestService(t, cfg, src,
		`{"decision": "TRACK", "confidence": 70, "reasoning": "needs confirmation"}`, 1000)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	res := report.Results[0]
	assert.NotEqual(t, StateExecuted, res.State)
	require.NotNil(t, res.Assessment)
	assert.Equal(t, advisor.DecisionTrack, res.Assessment.Decision)

	state := ledger.CurrentState()
	assert.InDelta(t, 1000, state.CashBalance, 1e-9)
}

func TestRunCycle_TwoTickersShareOneWalletSafely(t *testing.T) {
	src := &fakeSource{snaps: map[string]*market.Snapshot{
		"AAA": climbSnapshot("AAA", 100, 100),
		"BBB": climbSnapshot("BBB", 50, 100),
	}}
	cfg := DefaultConfig([]string{"AAA", "BBB"})
	svc, ledger := newTestService(t, cfg, src,
		`{"decision": "BUY", "confidence": 95, "reasoning": "ok"}`, 1000)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	// Both buys settle serially against the same cash balance; whatever
	// executes must leave the ledger consistent.
	state := ledger.CurrentState()
	assert.GreaterOrEqual(t, state.CashBalance, 0.0)
	assert.Equal(t, 2, report.Executed)
	assert.Len(t, state.Holdings, 2)

	invested := 0.0
	for _, h := range state.Holdings {
		invested += h.Quantity * h.AverageCost
	}
	assert.InDelta(t, 1000, state.CashBalance+invested, 1.0)
}

func TestRunCycle_ReportBookkeeping(t *testing.T) {
	src := &fakeSource{snaps: map[string]*market.Snapshot{
		"CLIMB": climbSnapshot("CLIMB", 100, 100),
	}}
	cfg := DefaultConfig([]string{"CLIMB"})
	svc, _ := newTestService(t, cfg, src,
		`{"decision": "BUY", "confidence": 95, "reasoning": "ok"}`, 1000)

	_, ok := svc.LastReport()
	assert.False(t, ok, "no report before the first cycle")

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	last, ok := svc.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.ID, last.ID)
	assert.False(t, last.FinishedAt.Before(last.StartedAt))
	assert.Greater(t, last.TotalEquity, 0.0)

	stats := svc.CurrentStats()
	assert.Equal(t, 1, stats.Cycles)
	assert.Equal(t, 1, stats.TradesExecuted)
	assert.Equal(t, 1, stats.Consultations)
}

func TestShouldConsult_OnlyAmbiguousSignals(t *testing.T) {
	src := &fakeSource{snaps: map[string]*market.Snapshot{}}
	svc, _ := newTestService(t, DefaultConfig(nil), src, "", 1000)

	tests := []struct {
		name string
		sig  signal.Signal
		want bool
	}{
		{
			name: "confident unambiguous buy stays algorithmic",
			sig:  signal.Signal{Direction: signal.DirectionBuy, Confidence: 90, Ambiguous: false},
			want: false,
		},
		{
			name: "confident unambiguous sell stays algorithmic",
			sig:  signal.Signal{Direction: signal.DirectionSell, Confidence: 85, Ambiguous: false},
			want: false,
		},
		{
			name: "confident hold stays algorithmic",
			sig:  signal.Signal{Direction: signal.DirectionHold, Confidence: 80, Ambiguous: false},
			want: false,
		},
		{
			name: "ambiguous hold consults",
			sig:  signal.Signal{Direction: signal.DirectionHold, Confidence: 53, Ambiguous: true},
			want: true,
		},
		{
			name: "ambiguous buy consults",
			sig:  signal.Signal{Direction: signal.DirectionBuy, Confidence: 62, Ambiguous: true},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.shouldConsult(tt.sig))
		})
	}
}

// reversalSnapshot builds a zig-zag decline capped by three strong white
// soldiers: the pattern, a bid-heavy book and a volume spike line up into a
// confident, unambiguous BUY that needs no consultation.
func reversalSnapshot(ticker string, start float64, n int) *market.Snapshot {
	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	candles := make([]market.Candle, n)
	price := start
	for i := 0; i < n-3; i++ {
		open := price
		step := -0.4
		if i%2 == 1 {
			step = 0.1
		}
		price = open + step
		candles[i] = market.Candle{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: open, High: max(open, price) + 0.02, Low: min(open, price) - 0.02,
			Close: price, Volume: 10000,
		}
	}
	for i := n - 3; i < n; i++ {
		open := price
		price = open + 0.5
		candles[i] = market.Candle{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: open, High: price + 0.05, Low: open - 0.05,
			Close: price, Volume: 10000,
		}
	}
	return &market.Snapshot{
		Ticker:  ticker,
		Candles: candles,
		Quote: market.Quote{
			Price: price, Bid: price - 0.05, Ask: price + 0.05,
			Volume: 25000, AvgVolume: 10000,
			Time: base.Add(time.Duration(n) * time.Minute),
		},
		Bids: []market.BookLevel{{Price: price - 0.05, Size: 900}, {Price: price - 0.1, Size: 900}},
		Asks: []market.BookLevel{{Price: price + 0.05, Size: 100}, {Price: price + 0.1, Size: 100}},
	}
}

func TestRunCycle_TwoOversizedBuysAreCashBounded(t *testing.T) {
	src := &fakeSource{snaps: map[string]*market.Snapshot{
		"AAA": reversalSnapshot("AAA", 100, 100),
		"BBB": reversalSnapshot("BBB", 120, 100),
	}}
	cfg := DefaultConfig([]string{"AAA", "BBB"})

	// A 70% position cap and a strong realized track record make each buy
	// want most of the wallet; whichever settles second can only spend what
	// the first left behind. The provider is hostile on purpose: these
	// signals are unambiguous, so it must never be asked.
	riskCfg := risk.DefaultConfig()
	riskCfg.MaxPositionFraction = 0.70
	svc, ledger := newTestServiceWithRisk(t, cfg, src,
		`{"decision": "SELL", "confidence": 99, "reasoning": "sabotage"}`, 940.5, riskCfg)

	// Closed round trips push the realized stats up: 3 wins of +20, one
	// -0.50 loss. Win rate 0.75, reward:risk 40, cash lands on 1000.
	for i := 0; i < 3; i++ {
		_, err := applySeed(ledger, portfolio.NewTrade("SEED", portfolio.SideBuy, 1, 100, 80, "seed"))
		require.NoError(t, err)
		_, err = applySeed(ledger, portfolio.NewTrade("SEED", portfolio.SideSell, 1, 120, 80, "seed"))
		require.NoError(t, err)
	}
	_, err := applySeed(ledger, portfolio.NewTrade("SEED", portfolio.SideBuy, 1, 100, 80, "seed"))
	require.NoError(t, err)
	_, err = applySeed(ledger, portfolio.NewTrade("SEED", portfolio.SideSell, 1, 99.5, 80, "seed"))
	require.NoError(t, err)
	require.InDelta(t, 1000, ledger.CurrentState().CashBalance, 1e-9)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Consulted, "unambiguous signals must not consult")
	assert.Equal(t, 2, report.Executed)

	state := ledger.CurrentState()
	assert.GreaterOrEqual(t, state.CashBalance, 0.0)
	require.Len(t, state.Holdings, 2)

	values := make([]float64, 0, 2)
	invested := 0.0
	for _, h := range state.Holdings {
		v := h.Quantity * h.AverageCost
		values = append(values, v)
		invested += v
	}
	assert.InDelta(t, 1000, state.CashBalance+invested, 1.0)
	// The second buy was squeezed into the leftover cash, near-emptying the
	// wallet: one ~70% position, one sized to the remainder.
	assert.Less(t, state.CashBalance, 1.0)
	sort.Float64s(values)
	assert.InDelta(t, 700, values[1], 15)
	assert.InDelta(t, 300, values[0], 15)
}

func TestService_ImplementsJob(t *testing.T) {
	src := &fakeSource{snaps: map[string]*market.Snapshot{}}
	svc, _ := newTestService(t, DefaultConfig(nil), src, "", 1000)

	assert.Equal(t, "trading-cycle", svc.Name())
	assert.NoError(t, svc.Run())
}
