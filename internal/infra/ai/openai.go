package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

var _ adapter.AIProviderAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter talks to the Responses API. Thread continuity rides on
// previous_response_id, so no chat history is stored locally.
type OpenAIAdapter struct {
	defaultModel string
}

func NewOpenAIAdapter(defaultModel string) *OpenAIAdapter {
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return &OpenAIAdapter{defaultModel: defaultModel}
}

func (o *OpenAIAdapter) Name() model.AIProvider { return model.AIProviderOpenAI }

func (o *OpenAIAdapter) client(apiKey string) openai.Client {
	return openai.NewClient(option.WithAPIKey(apiKey))
}

func (o *OpenAIAdapter) Validate(ctx context.Context, apiKey, assistantID string) error {
	cli := o.client(apiKey)
	if _, err := cli.Models.Get(ctx, o.defaultModel); err != nil {
		return classifyOpenAIError(err)
	}
	return nil
}

func (o *OpenAIAdapter) Respond(ctx context.Context, req adapter.AIRequest) (*adapter.AIResponse, error) {
	mdl := req.Model
	if mdl == "" {
		mdl = o.defaultModel
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(mdl),
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Input)},
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(req.PreviousResponseID)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if req.EnableFileSearch && req.VectorStoreID != "" {
		params.Tools = []responses.ToolUnionParam{{
			OfFileSearch: &responses.FileSearchToolParam{
				VectorStoreIDs: []string{req.VectorStoreID},
			},
		}}
	}

	cli := o.client(req.APIKey)
	resp, err := cli.Responses.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	out := &adapter.AIResponse{
		ID:         resp.ID,
		OutputText: resp.OutputText(),
	}
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		out.InputTokens = resp.Usage.InputTokens
		out.OutputTokens = resp.Usage.OutputTokens
		out.UsageReported = true
	}
	return out, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Errorf("openai: %w", domain.ErrAIUnauthorized)
		case apiErr.StatusCode == 429:
			retryAfter := ""
			if apiErr.Response != nil {
				retryAfter = apiErr.Response.Header.Get("Retry-After")
			}
			return &adapter.RateLimitError{Provider: "openai", RetryAfter: parseRetryAfter(retryAfter)}
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("openai http %d: %w", apiErr.StatusCode, domain.ErrAIServer)
		case apiErr.StatusCode >= 400:
			return fmt.Errorf("openai http %d: %w", apiErr.StatusCode, domain.ErrAIBadRequest)
		}
	}
	return err
}
