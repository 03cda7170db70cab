package execution

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/daytrader/internal/modules/portfolio"
)

func TestBuildPlan_SmallOrderGoesOutWhole(t *testing.T) {
	s := NewScheduler(DefaultConfig(), zerolog.Nop())

	plan, err := s.BuildPlan("AAA", portfolio.SideBuy, 10, 100) // 1000 < 5000
	require.NoError(t, err)

	assert.Equal(t, StrategyImmediate, plan.Strategy)
	require.Len(t, plan.Slices, 1)
	assert.InDelta(t, 10, plan.Slices[0].Quantity, 1e-9)
	assert.Zero(t, plan.Slices[0].TimeOffset)
}

func TestBuildPlan_LargeOrderIsSliced(t *testing.T) {
	s := NewScheduler(DefaultConfig(), zerolog.Nop())

	plan, err := s.BuildPlan("AAA", portfolio.SideSell, 100, 100) // 10000 >= 5000
	require.NoError(t, err)

	assert.Equal(t, StrategyAlmgrenChriss, plan.Strategy)
	require.Len(t, plan.Slices, 5)

	sum := 0.0
	for _, sl := range plan.Slices {
		assert.Greater(t, sl.Quantity, 0.0)
		sum += sl.Quantity
	}
	// Child quantities must reconstruct the parent.
	assert.InDelta(t, 100.0, sum, 1e-9)

	// The optimal trajectory front-loads: earlier slices are larger.
	for i := 1; i < len(plan.Slices); i++ {
		assert.GreaterOrEqual(t, plan.Slices[i-1].Quantity, plan.Slices[i].Quantity)
	}
}

func TestBuildPlan_TinyUrgencyDegradesToTWAP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RiskAversion = 1e-18
	s := NewScheduler(cfg, zerolog.Nop())

	plan, err := s.BuildPlan("AAA", portfolio.SideBuy, 100, 100)
	require.NoError(t, err)

	assert.Equal(t, StrategyTWAP, plan.Strategy)
	require.Len(t, plan.Slices, 5)

	sum := 0.0
	for _, sl := range plan.Slices {
		assert.InDelta(t, 20, sl.Quantity, 1e-9)
		sum += sl.Quantity
	}
	assert.InDelta(t, 100.0, sum, 1e-9)
}

func TestBuildPlan_RejectsDegenerateOrders(t *testing.T) {
	s := NewScheduler(DefaultConfig(), zerolog.Nop())

	_, err := s.BuildPlan("AAA", portfolio.SideBuy, 0, 100)
	assert.Error(t, err)

	_, err = s.BuildPlan("AAA", portfolio.SideBuy, -5, 100)
	assert.Error(t, err)

	_, err = s.BuildPlan("AAA", portfolio.SideBuy, 10, 0)
	assert.Error(t, err)
}

func TestExecute_BuySlippageIsAdverse(t *testing.T) {
	s := NewScheduler(DefaultConfig(), zerolog.Nop())

	plan, err := s.BuildPlan("AAA", portfolio.SideBuy, 10, 100)
	require.NoError(t, err)

	res, err := s.Execute(plan, 10000, 0)
	require.NoError(t, err)

	assert.InDelta(t, 10, res.Quantity, 1e-9)
	assert.InDelta(t, 100.05, res.VWAP, 1e-9) // +5 bps
}

func TestExecute_SellSlippageIsAdverse(t *testing.T) {
	s := NewScheduler(DefaultConfig(), zerolog.Nop())

	plan, err := s.BuildPlan("AAA", portfolio.SideSell, 10, 100)
	require.NoError(t, err)

	res, err := s.Execute(plan, 0, 10)
	require.NoError(t, err)

	assert.InDelta(t, 99.95, res.VWAP, 1e-9) // -5 bps
}

func TestExecute_BuyRespectsCashLimit(t *testing.T) {
	s := NewScheduler(DefaultConfig(), zerolog.Nop())

	plan, err := s.BuildPlan("AAA", portfolio.SideBuy, 10, 100)
	require.NoError(t, err)

	_, err = s.Execute(plan, 500, 0) // fills cost ~1000.5
	assert.ErrorIs(t, err, portfolio.ErrInsufficientCash)
}

func TestExecute_SellRespectsHoldingLimit(t *testing.T) {
	s := NewScheduler(DefaultConfig(), zerolog.Nop())

	plan, err := s.BuildPlan("AAA", portfolio.SideSell, 10, 100)
	require.NoError(t, err)

	_, err = s.Execute(plan, 0, 4)
	assert.ErrorIs(t, err, portfolio.ErrInsufficientHoldings)
}

func TestExecute_SlicedFillsAreOrderedInTime(t *testing.T) {
	s := NewScheduler(DefaultConfig(), zerolog.Nop())

	plan, err := s.BuildPlan("AAA", portfolio.SideSell, 100, 100)
	require.NoError(t, err)

	res, err := s.Execute(plan, 0, 100)
	require.NoError(t, err)

	require.Len(t, res.Fills, 5)
	for i := 1; i < len(res.Fills); i++ {
		assert.True(t, res.Fills[i].FilledAt.After(res.Fills[i-1].FilledAt))
	}
}
