package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/daytrader/internal/modules/signal"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "daytrader",
		"uptime":  time.Since(s.started).String(),
	})
}

// handlePortfolio returns the current portfolio snapshot with equity marked
// at the latest cycle prices.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.CurrentState()

	prices := make(map[string]float64)
	if report, ok := s.trading.LastReport(); ok {
		for _, res := range report.Results {
			if res.Price > 0 {
				prices[res.Ticker] = res.Price
			}
		}
	}

	winRate, rewardRisk := s.ledger.WinStats()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cash_balance": snap.CashBalance,
		"holdings":     snap.Holdings,
		"total_equity": snap.TotalEquity(prices),
		"win_rate":     winRate,
		"reward_risk":  rewardRisk,
	})
}

// handleTrades returns recent trades, newest first. ?limit= caps the count.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}

	trades, err := s.repo.Trades(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load trades")
		s.writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// handleSignals returns the base signals from the last cycle.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	report, ok := s.trading.LastReport()
	if !ok {
		s.writeJSON(w, http.StatusOK, []signal.Signal{})
		return
	}

	signals := make([]signal.Signal, 0, len(report.Results))
	for _, res := range report.Results {
		if res.Signal != nil {
			signals = append(signals, *res.Signal)
		}
	}
	s.writeJSON(w, http.StatusOK, signals)
}

// handleCycle returns the full last cycle report.
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	report, ok := s.trading.LastReport()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no cycle has completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleWatchlist returns the tickers the AI asked to track.
func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := s.repo.Watchlist()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load watchlist")
		s.writeError(w, http.StatusInternalServerError, "failed to load watchlist")
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

// handleStats returns cumulative cycle counters since process start.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.trading.CurrentStats())
}

// handleSystem returns process and host resource usage.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc_mb": m.Alloc / 1024 / 1024,
			"sys_mb":   m.Sys / 1024 / 1024,
			"num_gc":   m.NumGC,
		},
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		response["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		response["host_memory_percent"] = memStat.UsedPercent
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
