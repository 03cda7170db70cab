// Package trading orchestrates the decision cycle: fetch and analyze every
// ticker concurrently, then run risk checks and executions serially against
// the ledger. Per-ticker analysis is embarrassingly parallel and produces
// immutable results; everything that touches money happens in one consumer.
package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/daytrader/internal/database"
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
	"github.com/aristath/daytrader/pkg/formulas"
)

const cacheKeyLastCycle = "cycle:last"

// Config holds the cycle orchestration knobs.
type Config struct {
	Tickers       []string
	Lookback      int // candles fetched per ticker
	WorkerCount   int
	CycleDeadline time.Duration
	StopLossPct   float64 // negative
	TakeProfitPct float64
}

// DefaultConfig returns the standard cycle configuration for the given
// universe.
func DefaultConfig(tickers []string) Config {
	return Config{
		Tickers:       tickers,
		Lookback:      100,
		WorkerCount:   4,
		CycleDeadline: 45 * time.Second,
		StopLossPct:   -2.0,
		TakeProfitPct: 4.0,
	}
}

// Deps are the engines the service coordinates. All of them are safe for
// the service's access pattern: analysis engines are called concurrently
// from workers, the risk engine, scheduler and ledger only from the
// consumer.
type Deps struct {
	Market     market.Source
	News       news.Source
	Indicators *indicators.Engine
	Micro      *microstructure.Analyzer
	Gate       *meanreversion.Gate
	Aggregator *signal.Aggregator
	Advisor    *advisor.Router
	Risk       *risk.Engine
	Execution  *execution.Scheduler
	Ledger     *portfolio.Ledger
	Repo       *portfolio.Repository
	DB         *database.DB
}

// Service runs the decision cycle. It implements the scheduler Job
// interface.
type Service struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu         sync.Mutex
	lastReport *CycleReport
	stats      Stats
}

func NewService(cfg Config, deps Deps, log zerolog.Logger) *Service {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.Lookback < 1 {
		cfg.Lookback = 100
	}
	s := &Service{
		cfg:  cfg,
		deps: deps,
		log:  log.With().Str("component", "trading").Logger(),
	}
	s.restoreLastReport()
	return s
}

// Name implements scheduler.Job.
func (s *Service) Name() string { return "trading-cycle" }

// Run implements scheduler.Job.
func (s *Service) Run() error {
	_, err := s.RunCycle(context.Background())
	return err
}

// LastReport returns the most recent cycle report, if any.
func (s *Service) LastReport() (CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport == nil {
		return CycleReport{}, false
	}
	return *s.lastReport, true
}

// CurrentStats returns the cumulative counters since process start.
func (s *Service) CurrentStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// analysis is the immutable output of one worker. Only the consumer reads
// it after the worker sends it.
type analysis struct {
	ticker  string
	snap    *market.Snapshot
	sig     signal.Signal
	opinion *advisor.Opinion
	err     error
	elapsed time.Duration
}

// RunCycle executes one full decision cycle and returns its report. A
// ticker failing never fails the cycle; the cycle deadline downgrades
// unprocessed tickers to SKIPPED.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CycleDeadline)
	defer cancel()

	report := CycleReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	s.log.Info().Str("cycle_id", report.ID).Int("tickers", len(s.cfg.Tickers)).Msg("Cycle started")

	// Snapshot the portfolio once for prompts. The risk engine gets a
	// fresh snapshot per execution from the consumer instead.
	promptState := s.deps.Ledger.CurrentState()

	jobs := make(chan string)
	results := make(chan analysis)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range jobs {
				results <- s.analyze(ctx, ticker, promptState)
			}
		}()
	}
	go func() {
		for _, ticker := range s.cfg.Tickers {
			jobs <- ticker
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	// Single consumer: risk, execution and the ledger are touched only
	// here, so per-ticker decisions see the effects of earlier ones.
	prices := make(map[string]float64)
	returns := make(map[string][]float64)
	byTicker := make(map[string]TickerResult, len(s.cfg.Tickers))
	for a := range results {
		byTicker[a.ticker] = s.settle(ctx, a, prices, returns)
	}

	report.Results = make([]TickerResult, 0, len(s.cfg.Tickers))
	for _, ticker := range s.cfg.Tickers {
		r, ok := byTicker[ticker]
		if !ok {
			r = TickerResult{Ticker: ticker, State: StateSkipped, Error: "no result produced"}
		}
		report.Results = append(report.Results, r)
		switch r.State {
		case StateExecuted:
			report.Executed++
		case StateRejected:
			report.Rejected++
		case StateSkipped:
			report.Skipped++
		}
		if r.Opinion != nil {
			report.Consulted++
		}
	}

	final := s.deps.Ledger.CurrentState()
	report.CashBalance = final.CashBalance
	report.TotalEquity = final.TotalEquity(prices)
	report.FinishedAt = time.Now().UTC()

	s.finishCycle(report)

	s.log.Info().
		Str("cycle_id", report.ID).
		Int("executed", report.Executed).
		Int("rejected", report.Rejected).
		Int("skipped", report.Skipped).
		Int("consulted", report.Consulted).
		Float64("equity", report.TotalEquity).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Cycle finished")

	return report, nil
}

// analyze runs the per-ticker pipeline: fetch, indicators, microstructure,
// mean-reversion gate, aggregation, and AI consultation when warranted.
func (s *Service) analyze(ctx context.Context, ticker string, promptState portfolio.Snapshot) analysis {
	start := time.Now()
	a := analysis{ticker: ticker}

	snap, err := s.deps.Market.FetchSnapshot(ctx, ticker, s.cfg.Lookback)
	if err != nil {
		a.err = fmt.Errorf("fetch %s: %w", ticker, err)
		a.elapsed = time.Since(start)
		return a
	}
	a.snap = snap

	ind, indErr := s.deps.Indicators.Analyze(snap)
	micro := s.deps.Micro.Analyze(snap)
	verdict := s.deps.Gate.Evaluate(ticker, snap.Closes())
	a.sig = s.deps.Aggregator.Aggregate(snap, ind, indErr, micro, verdict)

	if s.shouldConsult(a.sig) {
		op := s.consult(ctx, snap, a.sig, promptState)
		a.opinion = &op
	}

	a.elapsed = time.Since(start)
	return a
}

// shouldConsult gates AI usage: only ambiguous signals are worth a
// consultation. A confident signal, in any direction, trades (or holds) on
// its own and keeps the provider budget for the calls that need it.
func (s *Service) shouldConsult(sig signal.Signal) bool {
	return sig.Ambiguous
}

func (s *Service) consult(ctx context.Context, snap *market.Snapshot, sig signal.Signal, state portfolio.Snapshot) advisor.Opinion {
	digest, err := s.deps.News.FetchDigest(ctx, snap.Ticker)
	if err != nil {
		s.log.Debug().Err(err).Str("ticker", snap.Ticker).Msg("news digest unavailable")
		digest = news.Digest{Ticker: snap.Ticker}
	}

	var holdingQty float64
	if h, ok := state.Holdings[snap.Ticker]; ok {
		holdingQty = h.Quantity
	}

	prompt := advisor.BuildPrompt(advisor.PromptContext{
		Ticker:        snap.Ticker,
		Price:         snap.Quote.Price,
		ChangePercent: changePercent(snap),
		Volume:        snap.Quote.Volume,
		Signal:        sig,
		RecentNews:    digest.Articles,
		CashBalance:   state.CashBalance,
		TotalEquity:   state.TotalEquity(nil),
		HoldingQty:    holdingQty,
	})
	return s.deps.Advisor.Consult(ctx, prompt)
}

// settle is the consumer-side half of the pipeline for one analysis result:
// protective exits, risk assessment, execution and ledger application.
func (s *Service) settle(ctx context.Context, a analysis, prices map[string]float64, returns map[string][]float64) TickerResult {
	r := TickerResult{Ticker: a.ticker, State: StateFetching, Elapsed: a.elapsed}

	if a.err != nil {
		r.State = StateSkipped
		r.Error = a.err.Error()
		s.log.Warn().Str("ticker", a.ticker).Str("error", r.Error).Msg("Ticker skipped")
		return r
	}

	price := a.snap.Quote.Price
	r.Price = price
	prices[a.ticker] = price
	returns[a.ticker] = formulas.CalculateReturns(a.snap.Closes())

	r.State = StateSignaled
	r.Signal = &a.sig
	if a.opinion != nil {
		r.State = StateConsulting
		r.Opinion = a.opinion
	}

	if ctx.Err() != nil {
		r.State = StateSkipped
		r.Error = "cycle deadline exceeded"
		return r
	}

	state := s.deps.Ledger.CurrentState()

	// Protective exits run before any new decision and bypass confidence
	// thresholds entirely.
	if reason, triggered := s.protectiveExit(a.ticker, price, state); triggered {
		return s.executeOrder(r, portfolio.SideSell, state.Holdings[a.ticker].Quantity, price, 100, reason)
	}

	winRate, rewardRisk := s.deps.Ledger.WinStats()
	assessment := s.deps.Risk.Assess(risk.Input{
		Signal:     a.sig,
		Opinion:    a.opinion,
		Price:      price,
		Portfolio:  state,
		Prices:     prices,
		Returns:    returns,
		WinRate:    winRate,
		RewardRisk: rewardRisk,
	})
	r.State = StateRiskChecked
	r.Assessment = &assessment

	if assessment.Decision == advisor.DecisionTrack {
		return s.track(r, a, price)
	}

	if !assessment.Approved {
		r.State = StateRejected
		s.log.Info().
			Str("ticker", a.ticker).
			Str("decision", string(assessment.Decision)).
			Str("reason", assessment.RejectionReason).
			Msg("Trade rejected")
		return r
	}

	side := portfolio.SideBuy
	if assessment.Decision == advisor.DecisionSell {
		side = portfolio.SideSell
	}
	reasoning := a.sig.Reasoning
	if assessment.AIOverride && a.opinion != nil {
		reasoning = fmt.Sprintf("AI override (%s): %s", a.opinion.ProviderUsed, a.opinion.Reasoning)
	}
	return s.executeOrder(r, side, assessment.Quantity, price, assessment.Confidence, reasoning)
}

// protectiveExit reports whether the position hit its stop-loss or
// take-profit level relative to average cost.
func (s *Service) protectiveExit(ticker string, price float64, state portfolio.Snapshot) (string, bool) {
	h, ok := state.Holdings[ticker]
	if !ok || h.Quantity <= 0 || h.AverageCost <= 0 {
		return "", false
	}
	pct := (price - h.AverageCost) / h.AverageCost * 100
	if pct <= s.cfg.StopLossPct {
		return fmt.Sprintf("stop-loss triggered at %.2f%%", pct), true
	}
	if pct >= s.cfg.TakeProfitPct {
		return fmt.Sprintf("take-profit triggered at %.2f%%", pct), true
	}
	return "", false
}

// executeOrder builds the slice plan, simulates fills, and applies one
// ledger trade at the fill VWAP.
func (s *Service) executeOrder(r TickerResult, side portfolio.Side, quantity, price float64, confidence int, reasoning string) TickerResult {
	plan, err := s.deps.Execution.BuildPlan(r.Ticker, side, quantity, price)
	if err != nil {
		r.State = StateRejected
		r.Error = err.Error()
		return r
	}

	state := s.deps.Ledger.CurrentState()
	var availQty float64
	if h, ok := state.Holdings[r.Ticker]; ok {
		availQty = h.Quantity
	}
	res, err := s.deps.Execution.Execute(plan, state.CashBalance, availQty)
	if err != nil {
		r.State = StateRejected
		r.Error = err.Error()
		s.log.Warn().Str("ticker", r.Ticker).Err(err).Msg("Execution aborted")
		return r
	}

	trade := portfolio.NewTrade(r.Ticker, side, res.Quantity, res.VWAP, confidence, reasoning)
	if _, err := s.deps.Ledger.Apply(&trade); err != nil {
		r.State = StateRejected
		r.Error = err.Error()
		s.log.Error().Str("ticker", r.Ticker).Err(err).Msg("Ledger rejected trade")
		return r
	}

	r.State = StateExecuted
	r.Trade = &trade
	s.log.Info().
		Str("ticker", r.Ticker).
		Str("side", string(side)).
		Float64("quantity", res.Quantity).
		Float64("vwap", res.VWAP).
		Str("strategy", plan.Strategy).
		Msg("Trade executed")
	return r
}

// track upserts the ticker on the watchlist instead of trading.
func (s *Service) track(r TickerResult, a analysis, price float64) TickerResult {
	reasoning := "tracking"
	confidence := a.sig.Confidence
	if a.opinion != nil {
		reasoning = a.opinion.Reasoning
		confidence = a.opinion.Confidence
	}
	if s.deps.Repo != nil {
		err := s.deps.Repo.UpsertWatch(portfolio.WatchItem{
			Ticker:     a.ticker,
			Price:      price,
			Confidence: confidence,
			Reasoning:  reasoning,
			UpdatedAt:  time.Now().UTC(),
		})
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", a.ticker).Msg("watchlist update failed")
		}
	}
	r.State = StateRejected
	s.log.Info().Str("ticker", a.ticker).Msg("Ticker added to watchlist")
	return r
}

func (s *Service) finishCycle(report CycleReport) {
	s.mu.Lock()
	s.lastReport = &report
	s.stats.Cycles++
	s.stats.TradesExecuted += report.Executed
	s.stats.Consultations += report.Consulted
	s.stats.Skips += report.Skipped
	s.stats.Rejections += report.Rejected
	s.mu.Unlock()

	if s.deps.DB == nil {
		return
	}
	blob, err := msgpack.Marshal(report)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to encode cycle report")
		return
	}
	if err := s.deps.DB.CacheSet(cacheKeyLastCycle, blob); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist cycle report")
	}
}

// restoreLastReport loads the last persisted cycle report so the API has
// something to serve right after a restart.
func (s *Service) restoreLastReport() {
	if s.deps.DB == nil {
		return
	}
	blob, ok, err := s.deps.DB.CacheGet(cacheKeyLastCycle)
	if err != nil || !ok {
		return
	}
	var report CycleReport
	if err := msgpack.Unmarshal(blob, &report); err != nil {
		s.log.Warn().Err(err).Msg("failed to decode cached cycle report")
		return
	}
	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()
}

func changePercent(snap *market.Snapshot) float64 {
	n := len(snap.Candles)
	if n < 2 {
		return 0
	}
	prev := snap.Candles[n-2].Close
	if prev == 0 {
		return 0
	}
	return (snap.Candles[n-1].Close - prev) / prev * 100
}
