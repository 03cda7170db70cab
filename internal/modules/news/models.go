package news

import (
	"context"
	"time"
)

// Sentiment is the tag assigned to a headline by the news collaborator.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Article is one tagged headline.
type Article struct {
	Source    string    `json:"source"`
	Headline  string    `json:"headline"`
	Sentiment Sentiment `json:"sentiment"`
	Timestamp time.Time `json:"timestamp"`
}

// Digest is the per-ticker news input. It is read-only: the core only feeds
// it into AI consultation prompts.
type Digest struct {
	Ticker   string    `json:"ticker"`
	Articles []Article `json:"articles"`
}

// Source provides news digests. A digest may be empty.
type Source interface {
	FetchDigest(ctx context.Context, ticker string) (Digest, error)
}

// NopSource returns an empty digest for every ticker.
type NopSource struct{}

// FetchDigest implements Source.
func (NopSource) FetchDigest(_ context.Context, ticker string) (Digest, error) {
	return Digest{Ticker: ticker}, nil
}
