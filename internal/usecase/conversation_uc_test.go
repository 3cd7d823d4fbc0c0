package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

func newConversationFixture(t *testing.T, bridge *stubBridge) (*conversationUC, *memBotRepo, *model.UserBot) {
	t.Helper()
	users := newMemUserRepo()
	bots := newMemBotRepo()
	access := NewAccessUseCase(users, bots, nopTM{}, nil, 3, nopLogger())
	uc := NewConversationUseCase(newMemConversationRepo(), access, bridge, nopLogger())

	bot := seedUserAndBot(t, users, bots, nil)
	bot.AIEnabled = true
	bot.AIProvider = model.AIProviderOpenAI
	bot.AISettings.APIKey = "sk-test"
	if err := bots.Save(context.Background(), repository.NoTX, bot); err != nil {
		t.Fatal(err)
	}
	return uc, bots, bot
}

func TestTurnContinuesThread(t *testing.T) {
	ctx := context.Background()
	bridge := &stubBridge{respond: func(req adapter.AIRequest) (*adapter.AIResponse, error) {
		return &adapter.AIResponse{ID: "resp-" + req.Input, OutputText: "ok", InputTokens: 10, OutputTokens: 5, UsageReported: true}, nil
	}}
	uc, _, bot := newConversationFixture(t, bridge)

	if _, err := uc.Turn(ctx, bot, 42, "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.Turn(ctx, bot, 42, "two"); err != nil {
		t.Fatal(err)
	}
	if len(bridge.calls) != 2 {
		t.Fatalf("calls = %d", len(bridge.calls))
	}
	if bridge.calls[0].PreviousResponseID != "" {
		t.Fatal("first turn carried a previous response id")
	}
	if bridge.calls[1].PreviousResponseID != "resp-one" {
		t.Fatalf("second turn previous id = %q", bridge.calls[1].PreviousResponseID)
	}

	// Reset starts a fresh thread.
	if err := uc.Reset(ctx, bot.BotID, 42); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.Turn(ctx, bot, 42, "three"); err != nil {
		t.Fatal(err)
	}
	if bridge.calls[2].PreviousResponseID != "" {
		t.Fatalf("post-reset previous id = %q", bridge.calls[2].PreviousResponseID)
	}
}

func TestTurnAccountsUsage(t *testing.T) {
	ctx := context.Background()
	bridge := &stubBridge{respond: func(req adapter.AIRequest) (*adapter.AIResponse, error) {
		return &adapter.AIResponse{ID: "r", OutputText: "answer", InputTokens: 100, OutputTokens: 50, UsageReported: true}, nil
	}}
	uc, bots, bot := newConversationFixture(t, bridge)

	if _, err := uc.Turn(ctx, bot, 42, "q"); err != nil {
		t.Fatal(err)
	}
	got, _ := bots.FindByID(ctx, repository.NoTX, bot.BotID)
	if got.TokensInputUsed != 100 || got.TokensOutputUsed != 50 {
		t.Fatalf("usage = %d/%d", got.TokensInputUsed, got.TokensOutputUsed)
	}
}

func TestTurnEstimatesWhenUnreported(t *testing.T) {
	ctx := context.Background()
	bridge := &stubBridge{respond: func(req adapter.AIRequest) (*adapter.AIResponse, error) {
		return &adapter.AIResponse{ID: "r", OutputText: "a short answer here"}, nil
	}}
	uc, bots, bot := newConversationFixture(t, bridge)

	if _, err := uc.Turn(ctx, bot, 42, "what is the answer to everything"); err != nil {
		t.Fatal(err)
	}
	got, _ := bots.FindByID(ctx, repository.NoTX, bot.BotID)
	if got.TokensInputUsed == 0 || got.TokensOutputUsed == 0 {
		t.Fatalf("estimated usage = %d/%d, want non-zero", got.TokensInputUsed, got.TokensOutputUsed)
	}
}

func TestTurnGates(t *testing.T) {
	ctx := context.Background()
	bridge := &stubBridge{respond: func(req adapter.AIRequest) (*adapter.AIResponse, error) {
		return &adapter.AIResponse{ID: "r", OutputText: "ok"}, nil
	}}
	uc, bots, bot := newConversationFixture(t, bridge)

	t.Run("ai disabled", func(t *testing.T) {
		off := *bot
		off.AIEnabled = false
		if _, err := uc.Turn(ctx, &off, 42, "q"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("tokens exhausted", func(t *testing.T) {
		spent := *bot
		limit := int64(10)
		spent.TokensLimitTotal = &limit
		spent.TokensInputUsed = 10
		if _, err := uc.Turn(ctx, &spent, 42, "q"); !errors.Is(err, domain.ErrTokensExhausted) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("owner expired", func(t *testing.T) {
		users := newMemUserRepo()
		expired, _ := model.NewUser(bot.OwnerUserID, bot.OwnerUserID, nil)
		past := time.Now().Add(-time.Hour)
		expired.Status = model.SubscriptionPaid
		expired.SubscriptionExpiresAt = &past
		users.Save(ctx, repository.NoTX, expired)
		access := NewAccessUseCase(users, bots, nopTM{}, nil, 3, nopLogger())
		gated := NewConversationUseCase(newMemConversationRepo(), access, bridge, nopLogger())
		if _, err := gated.Turn(ctx, bot, 42, "q"); !errors.Is(err, domain.ErrSubscriptionExpired) {
			t.Fatalf("err = %v", err)
		}
	})
}
