package formulas

import (
	"github.com/markcheno/go-talib"
)

// BollingerBands represents Bollinger Bands values
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// CalculateBollingerBands calculates Bollinger Bands.
//
// Bollinger Bands Formula:
//
//	Middle Band = N-day SMA
//	Upper Band  = Middle + (k × std deviation)
//	Lower Band  = Middle - (k × std deviation)
//
// Returns nil if insufficient data.
func CalculateBollingerBands(closes []float64, length int, stdDevMultiplier float64) *BollingerBands {
	if len(closes) < length {
		return nil
	}

	// MAType 0 = SMA (Simple Moving Average)
	upper, middle, lower := talib.BBands(closes, length, stdDevMultiplier, stdDevMultiplier, 0)

	if len(upper) > 0 && !isNaN(upper[len(upper)-1]) {
		return &BollingerBands{
			Upper:  upper[len(upper)-1],
			Middle: middle[len(middle)-1],
			Lower:  lower[len(lower)-1],
		}
	}

	return nil
}

// BollingerPercentB returns where price sits in the band range,
// 0.0 at the lower band and 1.0 at the upper band.
func BollingerPercentB(price float64, bands BollingerBands) float64 {
	width := bands.Upper - bands.Lower
	if width <= 0 {
		return 0.5
	}
	return (price - bands.Lower) / width
}
