package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/logging"
)

// OwnerNotifier delivers platform notices to a bot owner through the master bot.
type OwnerNotifier interface {
	NotifyOwner(ctx context.Context, ownerUserID int64, text string) error
}

var _ AccessUseCase = (*accessUC)(nil)

// AccessUseCase is the subscription and token gate in front of paid features.
type AccessUseCase interface {
	// CheckSubscription fails with ErrSubscriptionExpired (or ErrAccessDenied
	// for never-subscribed users) when the owner has no active access.
	CheckSubscription(ctx context.Context, ownerUserID int64) (*model.User, error)
	// CheckTokens fails with ErrTokensExhausted when the bot's budget is spent.
	CheckTokens(ctx context.Context, bot *model.UserBot) error
	// AccountUsage books token usage and fires the low-budget notification
	// once when the remainder crosses 10%.
	AccountUsage(ctx context.Context, botID string, input, output int64) error
}

type accessUC struct {
	users     repository.UserRepository
	bots      repository.UserBotRepository
	tm        repository.TransactionManager
	notifier  OwnerNotifier
	trialDays int
	log       *zerolog.Logger
}

func NewAccessUseCase(users repository.UserRepository, bots repository.UserBotRepository, tm repository.TransactionManager, notifier OwnerNotifier, trialDays int, logger *zerolog.Logger) *accessUC {
	return &accessUC{users: users, bots: bots, tm: tm, notifier: notifier, trialDays: trialDays, log: logger}
}

// SetNotifier attaches the master-bot notifier after wiring (the facade
// depends on use cases built on top of this gate).
func (a *accessUC) SetNotifier(n OwnerNotifier) { a.notifier = n }

func (a *accessUC) CheckSubscription(ctx context.Context, ownerUserID int64) (*model.User, error) {
	user, err := a.users.FindByID(ctx, repository.NoTX, ownerUserID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if !user.HasAccess(now, a.trialDays) {
		if user.TrialStartedAt == nil && user.SubscriptionExpiresAt == nil {
			return user, domain.ErrAccessDenied
		}
		return user, domain.ErrSubscriptionExpired
	}
	return user, nil
}

func (a *accessUC) CheckTokens(ctx context.Context, bot *model.UserBot) error {
	remaining, limited := bot.TokensRemaining()
	if limited && remaining <= 0 {
		return domain.ErrTokensExhausted
	}
	return nil
}

func (a *accessUC) AccountUsage(ctx context.Context, botID string, input, output int64) error {
	defer logging.TraceDuration(a.log, "AccessUC.AccountUsage")()

	var notify string
	var owner int64
	err := a.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := a.bots.AddTokenUsage(ctx, tx, botID, input, output); err != nil {
			return err
		}
		bot, err := a.bots.FindByID(ctx, tx, botID)
		if err != nil {
			return err
		}
		remaining, limited := bot.TokensRemaining()
		if !limited || bot.TokenNotificationSent {
			return nil
		}
		limit := *bot.TokensLimitTotal
		switch {
		case remaining <= 0:
			notify = fmt.Sprintf("Бот @%s исчерпал лимит токенов. ИИ отключён до пополнения.", bot.BotUsername)
		case limit > 0 && remaining*10 <= limit:
			notify = fmt.Sprintf("У бота @%s осталось менее 10%% токенов (%d).", bot.BotUsername, remaining)
		default:
			return nil
		}
		owner = bot.OwnerUserID
		return a.bots.SetTokenNotificationSent(ctx, tx, botID, true)
	})
	if err != nil {
		return err
	}
	if notify != "" && a.notifier != nil {
		if nerr := a.notifier.NotifyOwner(ctx, owner, notify); nerr != nil {
			a.log.Warn().Err(nerr).Int64("owner", owner).Msg("token notification failed")
		}
	}
	return nil
}
