package repository

import (
	"context"
	"time"

	"telegram-bot-hosting/internal/domain/model"
)

// BroadcastStats aggregates terminal delivery counts for the history screen.
type BroadcastStats struct {
	Total   int
	Pending int
	Sent    int
	Blocked int
	Failed  int
}

type BroadcastRepository interface {
	Save(ctx context.Context, tx Tx, b *model.MassBroadcast) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.MassBroadcast, error)
	ListByBot(ctx context.Context, tx Tx, botID string, limit int) ([]*model.MassBroadcast, error)
	// UpdateStatus transitions status only when the current status matches
	// expect; returns domain.ErrNotFound when the guard fails.
	UpdateStatus(ctx context.Context, tx Tx, id string, expect, next model.BroadcastStatus) error
	// ListDueScheduled returns scheduled broadcasts whose scheduled_at passed.
	ListDueScheduled(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.MassBroadcast, error)

	InsertDeliveries(ctx context.Context, tx Tx, rows []*model.BroadcastDelivery) (int, error)
	// ClaimDueDeliveries claims pending deliveries of sending broadcasts.
	ClaimDueDeliveries(ctx context.Context, tx Tx, limit int) ([]*model.BroadcastDelivery, error)
	ReleaseDeliveryClaim(ctx context.Context, tx Tx, id string) error
	MarkDelivery(ctx context.Context, tx Tx, id string, status model.DeliveryStatus, telegramMessageID *int, errMsg string) error
	// CancelPendingDeliveries flips the remaining pending rows of a
	// broadcast to cancelled. Already-delivered rows are untouched.
	CancelPendingDeliveries(ctx context.Context, tx Tx, broadcastID string) (int, error)
	CountPendingDeliveries(ctx context.Context, tx Tx, broadcastID string) (int, error)
	Stats(ctx context.Context, tx Tx, broadcastID string) (*BroadcastStats, error)
}
