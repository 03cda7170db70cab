package advisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Config holds router timing.
type Config struct {
	AttemptTimeout time.Duration // per-provider timeout
	Budget         time.Duration // total wall-clock budget across providers
}

// DefaultConfig returns the standard router timing.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 4 * time.Second,
		Budget:         10 * time.Second,
	}
}

// Router invokes ranked providers with ordered fallback. Providers are tried
// strictly in order, one at a time — never raced — because cost and
// rate-limit accounting downstream depends on knowing exactly which provider
// produced the used answer. On any failure (timeout, malformed response,
// quota) the router advances immediately to the next provider with no
// back-off between distinct providers. When the budget is exhausted or every
// provider has failed it fails open to a synthetic HOLD, never to a trade.
type Router struct {
	providers []Provider
	cfg       Config
	log       zerolog.Logger
}

// NewRouter creates a consultation router over an ordered provider list.
func NewRouter(providers []Provider, cfg Config, log zerolog.Logger) *Router {
	return &Router{
		providers: providers,
		cfg:       cfg,
		log:       log.With().Str("component", "advisor").Logger(),
	}
}

// Consult runs the fallback loop for one ticker's prompt. It never returns an
// error: total failure yields the synthetic HOLD opinion.
func (r *Router) Consult(ctx context.Context, prompt string) Opinion {
	budgetCtx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	var attempted []string

	for _, provider := range r.providers {
		if budgetCtx.Err() != nil {
			break
		}
		attempted = append(attempted, provider.Name())

		attemptCtx, attemptCancel := context.WithTimeout(budgetCtx, r.cfg.AttemptTimeout)
		text, err := provider.Consult(attemptCtx, prompt)
		attemptCancel()

		if err != nil {
			r.log.Warn().
				Err(err).
				Str("provider", provider.Name()).
				Msg("Provider attempt failed, advancing")
			continue
		}

		opinion, err := parseOpinion(text)
		if err != nil {
			r.log.Warn().
				Err(err).
				Str("provider", provider.Name()).
				Msg("Provider response unparseable, advancing")
			continue
		}

		opinion.ProviderUsed = provider.Name()
		opinion.AttemptedProviders = attempted

		r.log.Info().
			Str("provider", provider.Name()).
			Str("decision", string(opinion.Decision)).
			Int("confidence", opinion.Confidence).
			Msg("Consultation succeeded")

		return opinion
	}

	r.log.Warn().
		Strs("attempted", attempted).
		Msg("All providers failed, falling back to HOLD")

	return Synthetic(attempted, "all providers failed")
}
