package meanreversion

import (
	"github.com/rs/zerolog"
)

// Verdict is the gate's decision for one ticker. A rejection only applies to
// the direction that would increase exposure to the extreme: a BUY when the
// series is stretched above its mean, a SELL when stretched below. Flattening
// trades are never vetoed.
type Verdict struct {
	Params     Params  `json:"params"`
	ZScore     float64 `json:"z_score"`
	RejectBuy  bool    `json:"reject_buy"`
	RejectSell bool    `json:"reject_sell"`
}

// Gate fits an OU process to a series and vetoes entries at statistical
// extremes. Fails open: a series too short for the fit, or one with no
// detectable mean reversion, passes everything through.
type Gate struct {
	zThreshold float64
	log        zerolog.Logger
}

// NewGate creates a gate with the given z-score threshold (typically 2.0).
func NewGate(zThreshold float64, log zerolog.Logger) *Gate {
	return &Gate{
		zThreshold: zThreshold,
		log:        log.With().Str("component", "meanreversion").Logger(),
	}
}

// Evaluate fits the series and returns the gate verdict.
func (g *Gate) Evaluate(ticker string, series []float64) Verdict {
	params := EstimateOU(series)
	if !params.MeanReverting {
		return Verdict{Params: params}
	}

	v := Verdict{
		Params:     params,
		ZScore:     params.ZScore,
		RejectBuy:  params.ZScore > g.zThreshold,
		RejectSell: params.ZScore < -g.zThreshold,
	}

	if v.RejectBuy || v.RejectSell {
		g.log.Info().
			Str("ticker", ticker).
			Float64("z_score", params.ZScore).
			Bool("reject_buy", v.RejectBuy).
			Bool("reject_sell", v.RejectSell).
			Msg("Mean reversion gate triggered")
	}

	return v
}
