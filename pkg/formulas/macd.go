package formulas

import (
	"github.com/markcheno/go-talib"
)

// MACD holds the MACD line, signal line and histogram values.
type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// CalculateMACD calculates Moving Average Convergence/Divergence.
//
// MACD line  = EMA(fast) - EMA(slow)
// Signal line = EMA(signalLength) of the MACD line
// Histogram   = MACD line - signal line
//
// Standard periods are 12/26/9. Returns nil if insufficient data.
func CalculateMACD(closes []float64, fastLength, slowLength, signalLength int) *MACD {
	if len(closes) < slowLength+signalLength {
		return nil
	}

	line, signal, hist := talib.Macd(closes, fastLength, slowLength, signalLength)

	last := len(line) - 1
	if last < 0 || isNaN(line[last]) || isNaN(signal[last]) {
		return nil
	}

	return &MACD{
		Line:      line[last],
		Signal:    signal[last],
		Histogram: hist[last],
	}
}
