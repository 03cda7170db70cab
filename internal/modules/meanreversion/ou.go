package meanreversion

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MinObservations is the shortest series the OU fit accepts.
const MinObservations = 30

// Params holds the fitted Ornstein-Uhlenbeck parameters for a series.
//
//	dx_t = theta * (mu - x_t) * dt + sigma * dW_t
type Params struct {
	Mu            float64 `json:"mu"`       // long-run mean
	Theta         float64 `json:"theta"`    // reversion speed
	Sigma         float64 `json:"sigma"`    // diffusion volatility
	SigmaEq       float64 `json:"sigma_eq"` // equilibrium std dev, sigma/sqrt(2*theta)
	ZScore        float64 `json:"z_score"`  // (x_t - mu) / sigmaEq
	MeanReverting bool    `json:"mean_reverting"`
}

// EstimateOU fits OU parameters to a price or spread series via the
// discrete-time AR(1) regression x_{t+1} = alpha + beta*x_t + eps:
//
//	theta = -ln(beta) / dt
//	mu    = alpha / (1 - beta)
//	sigma = std(eps) * sqrt(-2*ln(beta) / (1 - beta^2) / dt)
//
// A beta at or above 1 means no mean reversion was detected; the returned
// params have MeanReverting=false and a zero z-score. dt is taken as one bar.
func EstimateOU(series []float64) Params {
	if len(series) < MinObservations {
		return Params{}
	}

	xt := series[:len(series)-1]
	xt1 := series[1:]

	alpha, beta := stat.LinearRegression(xt, xt1, nil, false)

	// Non-mean-reverting or degenerate fit
	if beta >= 0.999 || beta <= 0 || math.IsNaN(beta) {
		return Params{}
	}

	residuals := make([]float64, len(xt))
	for i := range xt {
		residuals[i] = xt1[i] - (alpha + beta*xt[i])
	}
	sigmaEps := stat.StdDev(residuals, nil)

	theta := -math.Log(beta)
	mu := alpha / (1 - beta)
	sigma := sigmaEps * math.Sqrt(-2*math.Log(beta)/(1-beta*beta))
	sigmaEq := sigma / math.Sqrt(2*theta)

	if theta <= 0 || sigmaEq <= 0 || math.IsNaN(sigmaEq) {
		return Params{}
	}

	return Params{
		Mu:            mu,
		Theta:         theta,
		Sigma:         sigma,
		SigmaEq:       sigmaEq,
		ZScore:        (series[len(series)-1] - mu) / sigmaEq,
		MeanReverting: true,
	}
}
