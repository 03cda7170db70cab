package advisor

import (
	"encoding/json"
	"fmt"

	"github.com/aristath/daytrader/internal/modules/news"
	"github.com/aristath/daytrader/internal/modules/signal"
)

// PromptContext is everything the AI sees for one consultation. The
// algorithmic signal is included so the model validates or overrides it
// rather than starting from scratch.
type PromptContext struct {
	Ticker        string         `json:"ticker"`
	Price         float64        `json:"price"`
	ChangePercent float64        `json:"change_percent"`
	Volume        float64        `json:"volume"`
	Signal        signal.Signal  `json:"algorithmic_signal"`
	RecentNews    []news.Article `json:"recent_news,omitempty"`
	CashBalance   float64        `json:"cash_balance"`
	TotalEquity   float64        `json:"total_equity"`
	HoldingQty    float64        `json:"holding_quantity"`
}

const maxNewsArticles = 5

// BuildPrompt renders the consultation prompt. The response contract matches
// what parseOpinion expects.
func BuildPrompt(pc PromptContext) string {
	if len(pc.RecentNews) > maxNewsArticles {
		pc.RecentNews = pc.RecentNews[:maxNewsArticles]
	}

	payload, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		payload = []byte("{}")
	}

	return fmt.Sprintf(`You are an expert day trader making a final decision.

An algorithmic analysis has already been performed. Your role is to VALIDATE
or OVERRIDE the algorithmic decision. Only override if you see something the
algorithm missed: breaking news, market conditions the patterns don't
capture, or unaccounted risk factors.

Input context:
%s

Respond with JSON ONLY:
{
  "decision": "BUY" | "SELL" | "HOLD" | "TRACK",
  "confidence": <integer 0-100>,
  "reasoning": "<why you agree or disagree with the algorithm>",
  "entry_price": <number, optional>,
  "target_price": <number, optional>,
  "stop_price": <number, optional>
}`, payload)
}
