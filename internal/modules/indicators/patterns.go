package indicators

import (
	"github.com/aristath/daytrader/internal/modules/market"
)

// PatternType classifies a candlestick pattern.
type PatternType string

const (
	PatternBullish PatternType = "bullish"
	PatternBearish PatternType = "bearish"
	PatternNeutral PatternType = "neutral"
)

// Pattern is one detected candlestick pattern on the last bar(s).
type Pattern struct {
	Name        string      `json:"name"`
	Type        PatternType `json:"type"`
	Strength    int         `json:"strength"`   // 1 weak, 2 moderate, 3 strong
	Confidence  float64     `json:"confidence"` // 0-100
	CandlesUsed int         `json:"candles_used"`
}

// Thresholds for pattern geometry. Body percentages are relative to the
// candle's total range.
const (
	smallBodyThreshold = 0.10
	longShadowRatio    = 2.0
)

// DetectPatterns inspects the most recent candles for known reversal and
// continuation patterns. The trailing `lookback` bars before the pattern
// establish the trend context.
func DetectPatterns(candles []market.Candle, lookback int) []Pattern {
	if len(candles) < 3 {
		return nil
	}

	var patterns []Pattern

	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	third := candles[len(candles)-3]
	trend := trendOf(candles, lookback)

	// Single-candle patterns
	if p := checkDoji(last); p != nil {
		patterns = append(patterns, *p)
	}
	if p := checkHammer(last, trend); p != nil {
		patterns = append(patterns, *p)
	}
	if p := checkInvertedHammer(last, trend); p != nil {
		patterns = append(patterns, *p)
	}
	if p := checkHangingMan(last, trend); p != nil {
		patterns = append(patterns, *p)
	}
	if p := checkShootingStar(last, trend); p != nil {
		patterns = append(patterns, *p)
	}

	// Two-candle patterns
	if p := checkEngulfing(prev, last); p != nil {
		patterns = append(patterns, *p)
	}
	if p := checkPiercingLine(prev, last); p != nil {
		patterns = append(patterns, *p)
	}
	if p := checkDarkCloudCover(prev, last); p != nil {
		patterns = append(patterns, *p)
	}

	// Three-candle patterns
	if p := checkMorningStar(third, prev, last); p != nil {
		patterns = append(patterns, *p)
	}
	if p := checkEveningStar(third, prev, last); p != nil {
		patterns = append(patterns, *p)
	}
	if p := checkThreeSoldiers(third, prev, last); p != nil {
		patterns = append(patterns, *p)
	}
	if p := checkThreeCrows(third, prev, last); p != nil {
		patterns = append(patterns, *p)
	}

	return patterns
}

// PatternScore converts detected patterns into a [-100, 100] score.
// Each pattern contributes its strength, signed by type, scaled by 20.
func PatternScore(patterns []Pattern) float64 {
	score := 0.0
	for _, p := range patterns {
		switch p.Type {
		case PatternBullish:
			score += float64(p.Strength) * 20
		case PatternBearish:
			score -= float64(p.Strength) * 20
		}
	}
	return clampScore(score)
}

// trendOf classifies the run-up into the pattern window.
func trendOf(candles []market.Candle, lookback int) string {
	if lookback > len(candles)-1 {
		lookback = len(candles) - 1
	}
	if lookback < 2 {
		return "flat"
	}
	window := candles[len(candles)-1-lookback : len(candles)-1]
	first := window[0].Close
	lastClose := window[len(window)-1].Close
	if first == 0 {
		return "flat"
	}
	change := (lastClose - first) / first
	switch {
	case change > 0.01:
		return "up"
	case change < -0.01:
		return "down"
	default:
		return "flat"
	}
}

func bodyFraction(c market.Candle) float64 {
	if c.Range() == 0 {
		return 0
	}
	return c.Body() / c.Range()
}

func checkDoji(c market.Candle) *Pattern {
	if c.Range() == 0 || bodyFraction(c) > smallBodyThreshold {
		return nil
	}
	return &Pattern{Name: "Doji", Type: PatternNeutral, Strength: 1, Confidence: 55, CandlesUsed: 1}
}

func checkHammer(c market.Candle, trend string) *Pattern {
	if trend != "down" || c.Body() == 0 {
		return nil
	}
	if c.LowerShadow() >= longShadowRatio*c.Body() && c.UpperShadow() < c.Body() {
		return &Pattern{Name: "Hammer", Type: PatternBullish, Strength: 2, Confidence: 70, CandlesUsed: 1}
	}
	return nil
}

func checkInvertedHammer(c market.Candle, trend string) *Pattern {
	if trend != "down" || c.Body() == 0 {
		return nil
	}
	if c.UpperShadow() >= longShadowRatio*c.Body() && c.LowerShadow() < c.Body() {
		return &Pattern{Name: "Inverted Hammer", Type: PatternBullish, Strength: 1, Confidence: 60, CandlesUsed: 1}
	}
	return nil
}

func checkHangingMan(c market.Candle, trend string) *Pattern {
	if trend != "up" || c.Body() == 0 {
		return nil
	}
	if c.LowerShadow() >= longShadowRatio*c.Body() && c.UpperShadow() < c.Body() {
		return &Pattern{Name: "Hanging Man", Type: PatternBearish, Strength: 2, Confidence: 65, CandlesUsed: 1}
	}
	return nil
}

func checkShootingStar(c market.Candle, trend string) *Pattern {
	if trend != "up" || c.Body() == 0 {
		return nil
	}
	if c.UpperShadow() >= longShadowRatio*c.Body() && c.LowerShadow() < c.Body() {
		return &Pattern{Name: "Shooting Star", Type: PatternBearish, Strength: 2, Confidence: 70, CandlesUsed: 1}
	}
	return nil
}

func checkEngulfing(prev, cur market.Candle) *Pattern {
	if cur.Body() == 0 || prev.Body() == 0 {
		return nil
	}
	engulfs := cur.Body() > prev.Body() &&
		maxOC(cur) >= maxOC(prev) && minOC(cur) <= minOC(prev)
	if !engulfs {
		return nil
	}
	if cur.IsBullish() && prev.IsBearish() {
		return &Pattern{Name: "Bullish Engulfing", Type: PatternBullish, Strength: 3, Confidence: 80, CandlesUsed: 2}
	}
	if cur.IsBearish() && prev.IsBullish() {
		return &Pattern{Name: "Bearish Engulfing", Type: PatternBearish, Strength: 3, Confidence: 80, CandlesUsed: 2}
	}
	return nil
}

func checkPiercingLine(prev, cur market.Candle) *Pattern {
	if !prev.IsBearish() || !cur.IsBullish() {
		return nil
	}
	// Opens below the prior low, closes above the prior body midpoint.
	if cur.Open < prev.Low && cur.Close > prev.Midpoint() && cur.Close < prev.Open {
		return &Pattern{Name: "Piercing Line", Type: PatternBullish, Strength: 2, Confidence: 70, CandlesUsed: 2}
	}
	return nil
}

func checkDarkCloudCover(prev, cur market.Candle) *Pattern {
	if !prev.IsBullish() || !cur.IsBearish() {
		return nil
	}
	if cur.Open > prev.High && cur.Close < prev.Midpoint() && cur.Close > prev.Open {
		return &Pattern{Name: "Dark Cloud Cover", Type: PatternBearish, Strength: 2, Confidence: 70, CandlesUsed: 2}
	}
	return nil
}

func checkMorningStar(c1, c2, c3 market.Candle) *Pattern {
	if !c1.IsBearish() || !c3.IsBullish() {
		return nil
	}
	if bodyFraction(c2) < 0.3 && c3.Close > c1.Midpoint() {
		return &Pattern{Name: "Morning Star", Type: PatternBullish, Strength: 3, Confidence: 80, CandlesUsed: 3}
	}
	return nil
}

func checkEveningStar(c1, c2, c3 market.Candle) *Pattern {
	if !c1.IsBullish() || !c3.IsBearish() {
		return nil
	}
	if bodyFraction(c2) < 0.3 && c3.Close < c1.Midpoint() {
		return &Pattern{Name: "Evening Star", Type: PatternBearish, Strength: 3, Confidence: 80, CandlesUsed: 3}
	}
	return nil
}

func checkThreeSoldiers(c1, c2, c3 market.Candle) *Pattern {
	if c1.IsBullish() && c2.IsBullish() && c3.IsBullish() &&
		c2.Close > c1.Close && c3.Close > c2.Close &&
		bodyFraction(c1) > 0.5 && bodyFraction(c2) > 0.5 && bodyFraction(c3) > 0.5 {
		return &Pattern{Name: "Three White Soldiers", Type: PatternBullish, Strength: 3, Confidence: 85, CandlesUsed: 3}
	}
	return nil
}

func checkThreeCrows(c1, c2, c3 market.Candle) *Pattern {
	if c1.IsBearish() && c2.IsBearish() && c3.IsBearish() &&
		c2.Close < c1.Close && c3.Close < c2.Close &&
		bodyFraction(c1) > 0.5 && bodyFraction(c2) > 0.5 && bodyFraction(c3) > 0.5 {
		return &Pattern{Name: "Three Black Crows", Type: PatternBearish, Strength: 3, Confidence: 85, CandlesUsed: 3}
	}
	return nil
}

func maxOC(c market.Candle) float64 {
	if c.Open > c.Close {
		return c.Open
	}
	return c.Close
}

func minOC(c market.Candle) float64 {
	if c.Open < c.Close {
		return c.Open
	}
	return c.Close
}
