package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/daytrader/pkg/formulas"
)

// PortfolioVaR estimates 1-day parametric Value-at-Risk in currency units
// for positions marked at the given values, using the variance-covariance
// method:
//
//	VaR = z(confidence) * sqrt(vᵀ Σ v)
//
// where v is the vector of position values and Σ the covariance matrix of
// daily returns. Positions without a return series are assigned a flat
// fallback volatility and zero correlation to the rest of the book.
func PortfolioVaR(values map[string]float64, returns map[string][]float64, confidence float64) float64 {
	if len(values) == 0 {
		return 0
	}

	symbols := make([]string, 0, len(values))
	for s := range values {
		symbols = append(symbols, s)
	}

	// Align series to a common length so the covariance is well defined.
	minLen := math.MaxInt32
	for _, s := range symbols {
		if r, ok := returns[s]; ok && len(r) >= 2 && len(r) < minLen {
			minLen = len(r)
		}
	}

	const fallbackDailyVol = 0.02

	n := len(symbols)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		ri, okI := alignedReturns(returns, symbols[i], minLen)
		if !okI {
			cov.SetSym(i, i, fallbackDailyVol*fallbackDailyVol)
			continue
		}
		cov.SetSym(i, i, stat.Variance(ri, nil))
		for j := i + 1; j < n; j++ {
			rj, okJ := alignedReturns(returns, symbols[j], minLen)
			if !okJ {
				continue
			}
			cov.SetSym(i, j, stat.Covariance(ri, rj, nil))
		}
	}

	v := mat.NewVecDense(n, nil)
	for i, s := range symbols {
		v.SetVec(i, values[s])
	}

	variance := mat.Inner(v, cov, v)
	if variance <= 0 {
		return 0
	}

	z := formulas.NormalQuantile(confidence)
	if math.IsNaN(z) {
		return 0
	}

	return z * math.Sqrt(variance)
}

func alignedReturns(returns map[string][]float64, symbol string, minLen int) ([]float64, bool) {
	r, ok := returns[symbol]
	if !ok || len(r) < 2 || minLen < 2 || minLen == math.MaxInt32 {
		return nil, false
	}
	return r[len(r)-minLen:], true
}
