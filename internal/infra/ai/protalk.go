package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

var _ adapter.AIProviderAdapter = (*ProTalkAdapter)(nil)

// ProTalkAdapter speaks the ask-style bot API: the key is "botID:secret",
// the server keeps conversation context per chat id. The chat id travels in
// AIResponse.ID so the caller's thread bookkeeping works unchanged.
type ProTalkAdapter struct {
	base   string
	client *http.Client
}

func NewProTalkAdapter(base string, timeout time.Duration) *ProTalkAdapter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ProTalkAdapter{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (p *ProTalkAdapter) Name() model.AIProvider { return model.AIProviderProTalk }

func (p *ProTalkAdapter) Validate(ctx context.Context, apiKey, assistantID string) error {
	_, _, err := splitAskKey(apiKey)
	if err != nil {
		return err
	}
	_, err = askRequest(ctx, p.client, p.base, "protalk", apiKey, "", "ping")
	return err
}

func (p *ProTalkAdapter) Respond(ctx context.Context, req adapter.AIRequest) (*adapter.AIResponse, error) {
	chatID := req.PreviousResponseID
	if chatID == "" {
		chatID = ulid.Make().String()
	}
	text, err := askRequest(ctx, p.client, p.base, "protalk", req.APIKey, chatID, req.Input)
	if err != nil {
		return nil, err
	}
	return &adapter.AIResponse{ID: chatID, OutputText: text}, nil
}

// splitAskKey parses "botID:secret" keys shared by the ask-style providers.
func splitAskKey(apiKey string) (int64, string, error) {
	idx := strings.IndexByte(apiKey, ':')
	if idx <= 0 || idx == len(apiKey)-1 {
		return 0, "", fmt.Errorf("malformed bot key: %w", domain.ErrAIBadRequest)
	}
	botID, err := strconv.ParseInt(apiKey[:idx], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed bot id: %w", domain.ErrAIBadRequest)
	}
	return botID, apiKey[idx+1:], nil
}

func askRequest(ctx context.Context, client *http.Client, base, provider, apiKey, chatID, message string) (string, error) {
	botID, secret, err := splitAskKey(apiKey)
	if err != nil {
		return "", err
	}
	if chatID == "" {
		chatID = "probe"
	}

	body := struct {
		BotID   int64  `json:"bot_id"`
		ChatID  string `json:"chat_id"`
		Message string `json:"message"`
	}{BotID: botID, ChatID: chatID, Message: message}

	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/ask/"+secret, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %v: %w", provider, err, domain.ErrAIServer)
	}
	defer drainClose(resp)
	if err := classifyHTTPStatus(provider, resp.StatusCode, resp.Header.Get("Retry-After")); err != nil {
		return "", err
	}

	var payload struct {
		Done  string `json:"done"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%s decode: %w", provider, err)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("%s: %s: %w", provider, payload.Error, domain.ErrAIBadRequest)
	}
	if payload.Done == "" {
		return "", errors.New(provider + ": empty answer")
	}
	return payload.Done, nil
}
