package repository

import (
	"context"
	"time"

	"telegram-bot-hosting/internal/domain/model"
)

type SubscriberRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscriber) error
	Find(ctx context.Context, tx Tx, botID string, userID int64) (*model.Subscriber, error)
	// ListActive returns the bot's active audience; used for broadcast materialisation.
	ListActive(ctx context.Context, tx Tx, botID string) ([]*model.Subscriber, error)
	SetActive(ctx context.Context, tx Tx, botID string, userID int64, active bool) error
	SetFunnelStarted(ctx context.Context, tx Tx, botID string, userID int64, at time.Time) error
	SetLastBroadcastMessage(ctx context.Context, tx Tx, botID string, userID int64, number int) error
	CountActive(ctx context.Context, tx Tx, botID string) (int, error)
}
