package ai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

var _ adapter.AIProviderAdapter = (*ChatForYouAdapter)(nil)

// ChatForYouAdapter shares the ask wire format with ProTalk but lives on its
// own host and is probed before it during detection.
type ChatForYouAdapter struct {
	base   string
	client *http.Client
}

func NewChatForYouAdapter(base string, timeout time.Duration) *ChatForYouAdapter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatForYouAdapter{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *ChatForYouAdapter) Name() model.AIProvider { return model.AIProviderChatForYou }

func (c *ChatForYouAdapter) Validate(ctx context.Context, apiKey, assistantID string) error {
	if _, _, err := splitAskKey(apiKey); err != nil {
		return err
	}
	_, err := askRequest(ctx, c.client, c.base, "chatforyou", apiKey, "", "ping")
	return err
}

func (c *ChatForYouAdapter) Respond(ctx context.Context, req adapter.AIRequest) (*adapter.AIResponse, error) {
	chatID := req.PreviousResponseID
	if chatID == "" {
		chatID = ulid.Make().String()
	}
	text, err := askRequest(ctx, c.client, c.base, "chatforyou", req.APIKey, chatID, req.Input)
	if err != nil {
		return nil, err
	}
	return &adapter.AIResponse{ID: chatID, OutputText: text}, nil
}
