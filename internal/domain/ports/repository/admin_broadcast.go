package repository

import (
	"context"

	"telegram-bot-hosting/internal/domain/model"
)

type AdminBroadcastRepository interface {
	// Save inserts the finished run with its counters.
	Save(ctx context.Context, tx Tx, b *model.AdminBroadcast) error
	// List returns recent runs, newest first.
	List(ctx context.Context, tx Tx, limit int) ([]*model.AdminBroadcast, error)
}
