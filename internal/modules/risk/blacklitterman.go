package risk

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// View is a single-asset absolute view: the AI's implied expected excess
// return for one ticker, with a confidence in (0, 1].
type View struct {
	Symbol     string
	Return     float64
	Confidence float64
}

// ViewReturn maps an AI sentiment score in [-100, 100] onto an expected
// excess return, scaled by the asset's volatility:
//
//	Q = alpha * (score/100) * sigma
//
// alpha sets how many standard deviations a maximal view is worth.
func ViewReturn(sentimentScore, volatility, alpha float64) float64 {
	return alpha * (sentimentScore / 100.0) * volatility
}

// PosteriorWeights blends a market-equilibrium prior with one investor view
// using the Black-Litterman posterior:
//
//	π    = δ Σ w                                     (implied equilibrium returns)
//	E[R] = [(τΣ)⁻¹ + Pᵀ Ω⁻¹ P]⁻¹ [(τΣ)⁻¹ π + Pᵀ Ω⁻¹ Q]
//	w*   = (δΣ)⁻¹ E[R]
//
// with Ω = P(τΣ)Pᵀ / confidence, so higher view confidence shrinks the view's
// uncertainty but never collapses it: a single highly confident view moves the
// posterior toward itself without erasing the market prior.
func PosteriorWeights(
	symbols []string,
	priorWeights map[string]float64,
	cov *mat.SymDense,
	view View,
	tau float64,
	riskAversion float64,
) (map[string]float64, error) {
	n := len(symbols)
	if n == 0 || cov.SymmetricDim() != n {
		return nil, fmt.Errorf("covariance size %d does not match %d symbols", cov.SymmetricDim(), n)
	}
	if tau <= 0 || riskAversion <= 0 {
		return nil, fmt.Errorf("tau and risk aversion must be positive")
	}

	viewIdx := -1
	for i, s := range symbols {
		if s == view.Symbol {
			viewIdx = i
			break
		}
	}
	if viewIdx < 0 {
		return nil, fmt.Errorf("view symbol %s not in universe", view.Symbol)
	}

	w := mat.NewVecDense(n, nil)
	for i, s := range symbols {
		w.SetVec(i, priorWeights[s])
	}

	// π = δ Σ w
	var pi mat.VecDense
	pi.MulVec(cov, w)
	pi.ScaleVec(riskAversion, &pi)

	// τΣ and its inverse
	tauSigma := mat.NewDense(n, n, nil)
	tauSigma.Scale(tau, cov)
	var tauSigmaInv mat.Dense
	if err := tauSigmaInv.Inverse(tauSigma); err != nil {
		return nil, fmt.Errorf("failed to invert tau*cov: %w", err)
	}

	// Single absolute view: P is 1×n with a 1 at the view index.
	P := mat.NewDense(1, n, nil)
	P.Set(0, viewIdx, 1)

	// Ω = P(τΣ)Pᵀ / confidence (scalar for one view)
	conf := view.Confidence
	if conf <= 0 {
		conf = 0.01
	}
	if conf > 1 {
		conf = 1
	}
	omega := tau * cov.At(viewIdx, viewIdx) / conf
	if omega <= 0 {
		return nil, fmt.Errorf("degenerate view uncertainty")
	}

	// A = (τΣ)⁻¹ + Pᵀ Ω⁻¹ P
	var ptOmegaP mat.Dense
	ptOmegaP.Mul(P.T(), P)
	ptOmegaP.Scale(1/omega, &ptOmegaP)
	var A mat.Dense
	A.Add(&tauSigmaInv, &ptOmegaP)

	// b = (τΣ)⁻¹ π + Pᵀ Ω⁻¹ Q
	var b mat.VecDense
	b.MulVec(&tauSigmaInv, &pi)
	q := mat.NewVecDense(n, nil)
	q.SetVec(viewIdx, view.Return/omega)
	b.AddVec(&b, q)

	// E[R] = A⁻¹ b
	var posterior mat.VecDense
	if err := posterior.SolveVec(&A, &b); err != nil {
		return nil, fmt.Errorf("failed to solve posterior returns: %w", err)
	}

	// w* = (δΣ)⁻¹ E[R]
	deltaSigma := mat.NewDense(n, n, nil)
	deltaSigma.Scale(riskAversion, cov)
	var weights mat.VecDense
	if err := weights.SolveVec(deltaSigma, &posterior); err != nil {
		return nil, fmt.Errorf("failed to solve posterior weights: %w", err)
	}

	out := make(map[string]float64, n)
	for i, s := range symbols {
		out[s] = weights.AtVec(i)
	}
	return out, nil
}
