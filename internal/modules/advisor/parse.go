package advisor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawOpinion mirrors the JSON schema providers are asked to produce.
// Confidence is a float to tolerate models that answer "confidence": 82.0.
type rawOpinion struct {
	Decision    string   `json:"decision"`
	Confidence  *float64 `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	EntryPrice  *float64 `json:"entry_price"`
	TargetPrice *float64 `json:"target_price"`
	StopPrice   *float64 `json:"stop_price"`
}

// parseOpinion extracts a structured opinion from a provider's raw text.
// A response that parses but omits decision or confidence is a parse
// failure: the router falls through to the next provider.
func parseOpinion(text string) (Opinion, error) {
	payload := extractJSON(text)
	if payload == "" {
		return Opinion{}, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var raw rawOpinion
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Opinion{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	decision := Decision(strings.ToUpper(strings.TrimSpace(raw.Decision)))
	switch decision {
	case DecisionBuy, DecisionSell, DecisionHold, DecisionTrack:
	default:
		return Opinion{}, fmt.Errorf("%w: missing or unknown decision %q", ErrMalformedResponse, raw.Decision)
	}

	if raw.Confidence == nil {
		return Opinion{}, fmt.Errorf("%w: missing confidence", ErrMalformedResponse)
	}
	confidence := int(*raw.Confidence)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return Opinion{
		Decision:    decision,
		Confidence:  confidence,
		Reasoning:   raw.Reasoning,
		EntryPrice:  raw.EntryPrice,
		TargetPrice: raw.TargetPrice,
		StopPrice:   raw.StopPrice,
	}, nil
}

// extractJSON pulls the first top-level JSON object out of the text,
// tolerating markdown code fences and surrounding prose.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
