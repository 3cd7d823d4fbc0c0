package ai

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

// classifyHTTPStatus maps a provider HTTP status onto the AI error taxonomy.
// A 429 keeps the Retry-After header so the bridge can honor it.
func classifyHTTPStatus(provider string, code int, retryAfter string) error {
	switch {
	case code == 401 || code == 403:
		return fmt.Errorf("%s: %w", provider, domain.ErrAIUnauthorized)
	case code == 429:
		return &adapter.RateLimitError{Provider: provider, RetryAfter: parseRetryAfter(retryAfter)}
	case code >= 500:
		return fmt.Errorf("%s http %d: %w", provider, code, domain.ErrAIServer)
	case code >= 400:
		return fmt.Errorf("%s http %d: %w", provider, code, domain.ErrAIBadRequest)
	}
	return nil
}

// parseRetryAfter reads the delay-seconds form of the header. The HTTP-date
// form is rare on these APIs and reads as zero.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func drainClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
}
