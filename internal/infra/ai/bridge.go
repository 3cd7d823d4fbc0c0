package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

var _ adapter.AIBridge = (*Bridge)(nil)

// Bridge owns the registered providers and the retry policy around them.
// Detection probes providers in registration order and keeps the first that
// accepts the credentials.
type Bridge struct {
	providers []adapter.AIProviderAdapter
	byName    map[model.AIProvider]adapter.AIProviderAdapter
	log       *zerolog.Logger

	backoffUnit time.Duration
}

func NewBridge(log *zerolog.Logger, providers ...adapter.AIProviderAdapter) *Bridge {
	byName := make(map[model.AIProvider]adapter.AIProviderAdapter, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Bridge{providers: providers, byName: byName, log: log, backoffUnit: time.Second}
}

func (b *Bridge) Detect(ctx context.Context, apiKey, assistantID string) (model.AIProvider, error) {
	var lastErr error
	for _, p := range b.providers {
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := p.Validate(probeCtx, apiKey, assistantID)
		cancel()
		if err == nil {
			b.log.Info().Str("provider", string(p.Name())).Msg("ai provider detected")
			return p.Name(), nil
		}
		lastErr = err
		b.log.Debug().Err(err).Str("provider", string(p.Name())).Msg("ai provider probe rejected")
	}
	if lastErr == nil {
		lastErr = domain.ErrAIUnauthorized
	}
	return model.AIProviderNone, fmt.Errorf("no provider accepted the key: %w", lastErr)
}

const maxAttempts = 3

// Respond dispatches one turn with bounded retries: rate limits back off
// linearly unless the provider named a delay, server errors exponentially,
// auth and bad-request fail fast.
func (b *Bridge) Respond(ctx context.Context, provider model.AIProvider, req adapter.AIRequest) (*adapter.AIResponse, error) {
	p, ok := b.byName[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", provider, domain.ErrInvalidArgument)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := p.Respond(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var wait time.Duration
		switch {
		case errors.Is(err, domain.ErrAIRateLimited):
			wait = time.Duration(attempt) * 2 * b.backoffUnit
			// The provider's own delay wins over the ladder.
			if rl, ok := adapter.AsRateLimit(err); ok && rl.RetryAfter > 0 {
				wait = rl.RetryAfter
			}
		case errors.Is(err, domain.ErrAIServer):
			wait = time.Duration(1<<(attempt-1)) * b.backoffUnit
		default:
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}
		b.log.Warn().Err(err).
			Str("provider", string(provider)).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("ai request failed, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
