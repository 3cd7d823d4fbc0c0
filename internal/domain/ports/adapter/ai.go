package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
)

// RateLimitError wraps ErrAIRateLimited with the pause the provider asked
// for. RetryAfter is zero when the provider named none.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return domain.ErrAIRateLimited }

// AsRateLimit extracts a rate-limit error from an error chain.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// AIRequest is the minimal common contract of the external LLM providers.
type AIRequest struct {
	APIKey       string
	AssistantID  string
	Model        string
	Instructions string
	Input        string

	// PreviousResponseID continues a server-side thread when non-empty.
	PreviousResponseID string

	MaxOutputTokens  int
	EnableFileSearch bool
	VectorStoreID    string
}

// AIResponse carries the assistant text and the provider-reported usage.
// UsageReported is false when the provider returned no counts; callers
// must then estimate and still account.
type AIResponse struct {
	ID            string
	OutputText    string
	InputTokens   int64
	OutputTokens  int64
	UsageReported bool
}

// AIProviderAdapter is one concrete provider (openai, chatforyou, protalk).
type AIProviderAdapter interface {
	Name() model.AIProvider
	// Validate probes the credentials with a minimal request; used by
	// provider auto-detection.
	Validate(ctx context.Context, apiKey, assistantID string) error
	Respond(ctx context.Context, req AIRequest) (*AIResponse, error)
}

// AIBridge resolves the configured provider and dispatches turns to it.
type AIBridge interface {
	// Detect probes providers in declared order and returns the first that
	// accepts the token.
	Detect(ctx context.Context, apiKey, assistantID string) (model.AIProvider, error)
	Respond(ctx context.Context, provider model.AIProvider, req AIRequest) (*AIResponse, error)
}
