package repository

import (
	"context"

	"telegram-bot-hosting/internal/domain/model"
)

type FunnelRepository interface {
	// SaveSequence upserts the per-bot sequence container.
	SaveSequence(ctx context.Context, tx Tx, s *model.BroadcastSequence) error
	FindSequenceByBot(ctx context.Context, tx Tx, botID string) (*model.BroadcastSequence, error)
	SetSequenceEnabled(ctx context.Context, tx Tx, sequenceID string, enabled bool) error

	// SaveMessage inserts or updates a funnel step with its buttons.
	SaveMessage(ctx context.Context, tx Tx, m *model.BroadcastMessage) error
	DeleteMessage(ctx context.Context, tx Tx, messageID string) error
	FindMessage(ctx context.Context, tx Tx, messageID string) (*model.BroadcastMessage, error)
	// ListMessages returns active steps ordered by message_number.
	ListMessages(ctx context.Context, tx Tx, sequenceID string) ([]*model.BroadcastMessage, error)
	// NextFreeNumber resolves a requested slot to the next unoccupied integer.
	NextFreeNumber(ctx context.Context, tx Tx, sequenceID string, requested int) (int, error)
}
