package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Provider is one external reasoning service. Calls are independent and
// stateless; the router owns ordering, timeouts and parsing.
type Provider interface {
	Name() string
	Consult(ctx context.Context, prompt string) (string, error)
}

// HTTPProvider talks to a JSON completion endpoint:
//
//	POST <url>  {"model": "...", "prompt": "...", "response_format": "json"}
//	200 -> {"text": "..."}
//
// Requests are rate limited client-side so a burst of ambiguous tickers in
// one cycle cannot trip the vendor's quota.
type HTTPProvider struct {
	name    string
	url     string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPProvider creates a provider client. requestsPerSecond bounds the
// sustained call rate; a burst of 1 keeps calls strictly spaced.
func NewHTTPProvider(name, url, apiKey, model string, requestsPerSecond float64) *HTTPProvider {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &HTTPProvider{
		name:    name,
		url:     url,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Name implements Provider.
func (p *HTTPProvider) Name() string { return p.name }

type completionRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	ResponseFormat string `json:"response_format"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Consult implements Provider. Timeout and rate-limit failures surface as
// ErrProviderTimeout / ErrProviderError so the router can fall through.
func (p *HTTPProvider) Consult(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %s rate limiter: %v", ErrProviderTimeout, p.name, err)
	}

	body, err := json.Marshal(completionRequest{
		Model:          p.model,
		Prompt:         prompt,
		ResponseFormat: "json",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderError, p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderError, p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrProviderTimeout, p.name)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrProviderError, p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderError, p.name, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %s: quota exhausted", ErrProviderError, p.name)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: status %d", ErrProviderError, p.name, resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Text == "" {
		// Some endpoints return the completion body directly.
		return string(raw), nil
	}
	return parsed.Text, nil
}
