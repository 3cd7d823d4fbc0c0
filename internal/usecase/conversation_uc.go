package usecase

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/ai"
	"telegram-bot-hosting/internal/infra/logging"
	"telegram-bot-hosting/internal/infra/metrics"
)

var _ ConversationUseCase = (*conversationUC)(nil)

// ConversationUseCase runs AI turns for end users of hosted bots. Turns of
// one (bot, user) pair are serialised so the provider thread stays linear.
type ConversationUseCase interface {
	// Turn gates access, dispatches the provider call and accounts usage.
	// Usage is booked even when the provider omits counts (estimated).
	Turn(ctx context.Context, bot *model.UserBot, userID int64, input string) (string, error)
	// Reset drops the stored thread handle; the next turn starts fresh.
	Reset(ctx context.Context, botID string, userID int64) error
}

type conversationUC struct {
	conversations repository.ConversationRepository
	access        AccessUseCase
	bridge        adapter.AIBridge
	log           *zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewConversationUseCase(conversations repository.ConversationRepository, access AccessUseCase, bridge adapter.AIBridge, logger *zerolog.Logger) *conversationUC {
	return &conversationUC{
		conversations: conversations,
		access:        access,
		bridge:        bridge,
		log:           logger,
		locks:         map[string]*sync.Mutex{},
	}
}

func (c *conversationUC) lockFor(botID string, userID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := botID + "/" + strconv.FormatInt(userID, 10)
	l, ok := c.locks[k]
	if !ok {
		l = &sync.Mutex{}
		c.locks[k] = l
	}
	return l
}

func (c *conversationUC) Turn(ctx context.Context, bot *model.UserBot, userID int64, input string) (string, error) {
	defer logging.TraceDuration(c.log, "ConversationUC.Turn")()

	if !bot.AIEnabled || bot.AIProvider == model.AIProviderNone {
		return "", domain.ErrInvalidArgument
	}
	if _, err := c.access.CheckSubscription(ctx, bot.OwnerUserID); err != nil {
		return "", err
	}
	if err := c.access.CheckTokens(ctx, bot); err != nil {
		return "", err
	}

	l := c.lockFor(bot.BotID, userID)
	l.Lock()
	defer l.Unlock()

	var prevID string
	conv, err := c.conversations.Find(ctx, repository.NoTX, bot.BotID, userID)
	if err == nil {
		prevID = conv.ResponseID
	}

	req := adapter.AIRequest{
		APIKey:             bot.AISettings.APIKey,
		AssistantID:        bot.AIAssistantID,
		Model:              bot.AIModel,
		Instructions:       bot.AISystemPrompt,
		Input:              input,
		PreviousResponseID: prevID,
		MaxOutputTokens:    bot.AISettings.MaxOutputTokens,
		EnableFileSearch:   bot.AISettings.EnableFileSearch,
		VectorStoreID:      bot.AISettings.VectorStoreID,
	}

	start := time.Now()
	resp, err := c.bridge.Respond(ctx, bot.AIProvider, req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		metrics.ObserveAIUsage(string(bot.AIProvider), bot.AIModel, 0, 0, latency, false)
		return "", err
	}

	in, out := resp.InputTokens, resp.OutputTokens
	if !resp.UsageReported {
		in = ai.EstimateTokens(input)
		out = ai.EstimateTokens(resp.OutputText)
	}
	metrics.ObserveAIUsage(string(bot.AIProvider), bot.AIModel, in, out, latency, true)

	if err := c.access.AccountUsage(ctx, bot.BotID, in, out); err != nil {
		c.log.Error().Err(err).Str("bot_id", bot.BotID).Msg("usage accounting failed")
	}

	if resp.ID != "" {
		save := &model.Conversation{BotID: bot.BotID, UserID: userID, ResponseID: resp.ID, UpdatedAt: time.Now()}
		if err := c.conversations.Save(ctx, repository.NoTX, save); err != nil {
			c.log.Warn().Err(err).Str("bot_id", bot.BotID).Msg("thread handle save failed")
		}
	}
	return resp.OutputText, nil
}

func (c *conversationUC) Reset(ctx context.Context, botID string, userID int64) error {
	return c.conversations.Delete(ctx, repository.NoTX, botID, userID)
}
