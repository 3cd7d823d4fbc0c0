package repository

import (
	"context"

	"telegram-bot-hosting/internal/domain/model"
)

type UserBotRepository interface {
	Save(ctx context.Context, tx Tx, b *model.UserBot) error
	Delete(ctx context.Context, tx Tx, botID string) error
	FindByID(ctx context.Context, tx Tx, botID string) (*model.UserBot, error)
	ListByOwner(ctx context.Context, tx Tx, ownerUserID int64) ([]*model.UserBot, error)
	// ListRunnable returns bots with status=active and is_running=true;
	// the supervisor reconciles against this snapshot.
	ListRunnable(ctx context.Context, tx Tx) ([]*model.UserBot, error)
	SetRunState(ctx context.Context, tx Tx, botID string, status model.BotStatus, isRunning bool) error
	// AddTokenUsage atomically increments both usage counters.
	AddTokenUsage(ctx context.Context, tx Tx, botID string, input, output int64) error
	// AddTokenLimit raises tokens_limit_total and clears token_notification_sent.
	AddTokenLimit(ctx context.Context, tx Tx, botID string, tokens int64) error
	SetTokenNotificationSent(ctx context.Context, tx Tx, botID string, sent bool) error
	CountBots(ctx context.Context, tx Tx) (int, error)
}
