package risk

// KellyFraction computes the raw Kelly bankroll fraction for a bet with win
// probability p and reward:risk ratio b:
//
//	f = (p*b - (1-p)) / b
//
// Negative edges return 0. Callers clamp the result to the configured
// maximum position fraction; the cap is the dominant constraint in practice,
// Kelly only acts as a soft upper bound beneath it.
func KellyFraction(p, b float64) float64 {
	if b <= 0 || p <= 0 {
		return 0
	}

	f := (p*b - (1 - p)) / b
	if f < 0 {
		return 0
	}
	return f
}

// winProbability maps a decision confidence in [0, 100] onto a win
// probability, then blends it equally with the realized win rate from closed
// trades. Confidence 0 maps to 0.45 and confidence 100 to 0.70: even a fully
// confident signal is not a coin with p=1.
func winProbability(confidence int, realizedWinRate float64) float64 {
	c := float64(confidence)
	if c < 0 {
		c = 0
	}
	if c > 100 {
		c = 100
	}
	mapped := 0.45 + 0.25*c/100

	if realizedWinRate <= 0 || realizedWinRate >= 1 {
		return mapped
	}
	return (mapped + realizedWinRate) / 2
}
