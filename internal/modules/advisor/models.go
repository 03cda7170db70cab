package advisor

import (
	"errors"
)

// Decision is the AI's recommended action. TRACK asks for the ticker to be
// placed on the watchlist instead of trading.
type Decision string

const (
	DecisionBuy   Decision = "BUY"
	DecisionSell  Decision = "SELL"
	DecisionHold  Decision = "HOLD"
	DecisionTrack Decision = "TRACK"
)

// Provider failure modes. The router reacts to all of them the same way:
// advance to the next provider immediately.
var (
	ErrProviderTimeout   = errors.New("provider timed out")
	ErrProviderError     = errors.New("provider error")
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Opinion is a parsed provider response. Immutable once produced.
// ProviderUsed is empty only for the synthetic fail-open opinion.
type Opinion struct {
	Decision           Decision `json:"decision"`
	Confidence         int      `json:"confidence"` // [0, 100]
	Reasoning          string   `json:"reasoning"`
	EntryPrice         *float64 `json:"entry_price,omitempty"`
	TargetPrice        *float64 `json:"target_price,omitempty"`
	StopPrice          *float64 `json:"stop_price,omitempty"`
	ProviderUsed       string   `json:"provider_used"`
	AttemptedProviders []string `json:"attempted_providers"`
}

// Synthetic returns the fail-open opinion: no action, zero confidence.
// It is never an execution.
func Synthetic(attempted []string, reason string) Opinion {
	return Opinion{
		Decision:           DecisionHold,
		Confidence:         0,
		Reasoning:          reason,
		AttemptedProviders: attempted,
	}
}
