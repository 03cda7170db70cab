package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/daytrader/internal/config"
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
	sig "github.com/aristath/daytrader/internal/modules/signal"
	"github.com/aristath/daytrader/internal/modules/trading"
	"github.com/aristath/daytrader/internal/scheduler"
	"github.com/aristath/daytrader/internal/server"
	"github.com/aristath/daytrader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Strs("tickers", cfg.Tickers).Msg("Starting day trader")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	repo := portfolio.NewRepository(db.Conn(), log)
	ledger, err := portfolio.NewLedger(repo, cfg.InitialCash, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to restore portfolio")
	}

	providers := make([]advisor.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, advisor.NewHTTPProvider(p.Name, p.URL, p.APIKey, p.Model, 1.0))
	}

	riskCfg := risk.DefaultConfig()
	riskCfg.MinTradeConfidence = cfg.MinTradeThreshold
	riskCfg.AIVetoMargin = cfg.AIVetoMargin
	riskCfg.MaxPositionFraction = cfg.MaxPositionFraction
	riskCfg.MaxVaRFraction = cfg.MaxVaRFraction
	riskCfg.VaRConfidence = cfg.VaRConfidence
	riskCfg.StopLossPct = cfg.StopLossPct
	riskCfg.TakeProfitPct = cfg.TakeProfitPct
	riskCfg.SlippageBps = cfg.SlippageBps

	execCfg := execution.DefaultConfig()
	execCfg.ImpactThresholdValue = cfg.ImpactThresholdValue
	execCfg.SlippageBps = cfg.SlippageBps

	sigCfg := sig.DefaultConfig()
	sigCfg.ConsultThreshold = cfg.ConsultThreshold

	tradingCfg := trading.DefaultConfig(cfg.Tickers)
	tradingCfg.WorkerCount = cfg.WorkerCount
	tradingCfg.CycleDeadline = cfg.CycleDeadline
	tradingCfg.StopLossPct = cfg.StopLossPct
	tradingCfg.TakeProfitPct = cfg.TakeProfitPct

	svc := trading.NewService(tradingCfg, trading.Deps{
		Market:     market.NewSimSource(),
		News:       news.NopSource{},
		Indicators: indicators.NewEngine(indicators.DefaultConfig(), log),
		Micro:      microstructure.NewAnalyzer(microstructure.DefaultConfig(), log),
		Gate:       meanreversion.NewGate(cfg.ZScoreThreshold, log),
		Aggregator: sig.NewAggregator(sigCfg, log),
		Advisor: advisor.NewRouter(providers, advisor.Config{
			AttemptTimeout: cfg.ProviderTimeout,
			Budget:         cfg.ConsultationBudget,
		}, log),
		Risk:      risk.NewEngine(riskCfg, log),
		Execution: execution.NewScheduler(execCfg, log),
		Ledger:    ledger,
		Repo:      repo,
		DB:        db,
	}, log)

	sched := scheduler.New(log)
	schedule := fmt.Sprintf("@every %s", cfg.CycleInterval)
	if err := sched.AddJob(schedule, svc); err != nil {
		log.Fatal().Err(err).Msg("Failed to register trading cycle")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{Port: cfg.Port, DevMode: cfg.DevMode}, ledger, repo, svc, log)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Str("interval", cfg.CycleInterval.String()).Msg("Day trader started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}
