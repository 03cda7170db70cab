package trading

import (
	"time"

	"github.com/aristath/daytrader/internal/modules/advisor"
	"github.com/aristath/daytrader/internal/modules/portfolio"
	"github.com/aristath/daytrader/internal/modules/risk"
	"github.com/aristath/daytrader/internal/modules/signal"
)

// State is the per-ticker lifecycle within one cycle. Transitions only move
// forward; a ticker that fails at any stage lands in StateSkipped with the
// error recorded.
type State string

const (
	StateFetching    State = "FETCHING"
	StateSignaled    State = "SIGNALED"
	StateConsulting  State = "CONSULTING"
	StateRiskChecked State = "RISK_CHECKED"
	StateExecuted    State = "EXECUTED"
	StateRejected    State = "REJECTED"
	StateSkipped     State = "SKIPPED"
)

// TickerResult is the immutable outcome of one ticker's pass through the
// cycle. Pointers are nil for stages the ticker never reached.
type TickerResult struct {
	Ticker     string           `json:"ticker" msgpack:"ticker"`
	State      State            `json:"state" msgpack:"state"`
	Price      float64          `json:"price" msgpack:"price"`
	Signal     *signal.Signal   `json:"signal,omitempty" msgpack:"signal,omitempty"`
	Opinion    *advisor.Opinion `json:"opinion,omitempty" msgpack:"opinion,omitempty"`
	Assessment *risk.Assessment `json:"assessment,omitempty" msgpack:"assessment,omitempty"`
	Trade      *portfolio.Trade `json:"trade,omitempty" msgpack:"trade,omitempty"`
	Error      string           `json:"error,omitempty" msgpack:"error,omitempty"`
	Elapsed    time.Duration    `json:"elapsed" msgpack:"elapsed"`
}

// CycleReport summarizes one full decision cycle. Persisted to the cache
// table after every cycle and served by the API.
type CycleReport struct {
	ID          string         `json:"id" msgpack:"id"`
	StartedAt   time.Time      `json:"started_at" msgpack:"started_at"`
	FinishedAt  time.Time      `json:"finished_at" msgpack:"finished_at"`
	Results     []TickerResult `json:"results" msgpack:"results"`
	Executed    int            `json:"executed" msgpack:"executed"`
	Rejected    int            `json:"rejected" msgpack:"rejected"`
	Skipped     int            `json:"skipped" msgpack:"skipped"`
	Consulted   int            `json:"consulted" msgpack:"consulted"`
	CashBalance float64        `json:"cash_balance" msgpack:"cash_balance"`
	TotalEquity float64        `json:"total_equity" msgpack:"total_equity"`
}

// Stats are cumulative counters across cycles since process start.
type Stats struct {
	Cycles         int `json:"cycles"`
	TradesExecuted int `json:"trades_executed"`
	Consultations  int `json:"consultations"`
	Skips          int `json:"skips"`
	Rejections     int `json:"rejections"`
}
