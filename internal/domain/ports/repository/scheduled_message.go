package repository

import (
	"context"
	"time"

	"telegram-bot-hosting/internal/domain/model"
)

type ScheduledMessageRepository interface {
	// InsertMany materialises rows, skipping (bot, subscriber, message)
	// pairs that already exist. Returns the number actually inserted.
	InsertMany(ctx context.Context, tx Tx, rows []*model.ScheduledMessage) (int, error)

	// ClaimDue atomically claims up to limit due pending rows ordered by
	// scheduled_at (ties by funnel step number) so that concurrent
	// dispatchers never process the same row twice. Rows of disabled
	// sequences are left pending and unclaimed.
	ClaimDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.ScheduledMessage, error)

	// ReleaseClaim puts an unclaimed row back to plain pending (used after
	// a rate-limit pause decides to retry on a later tick).
	ReleaseClaim(ctx context.Context, tx Tx, id string) error

	MarkSent(ctx context.Context, tx Tx, id string) error
	MarkFailed(ctx context.Context, tx Tx, id string, reason string) error

	// RescheduleByMessage shifts scheduled_at of pending rows referencing
	// messageID by (newDelay - oldDelay). Terminal rows are untouched.
	RescheduleByMessage(ctx context.Context, tx Tx, messageID string, oldDelaySeconds, newDelaySeconds int64) (int, error)

	// CancelByMessage cascades cancelled to pending rows referencing messageID.
	CancelByMessage(ctx context.Context, tx Tx, messageID string) (int, error)

	ListBySubscriber(ctx context.Context, tx Tx, botID string, subscriberID int64) ([]*model.ScheduledMessage, error)
	CountByStatus(ctx context.Context, tx Tx, botID string, status model.ScheduledStatus) (int, error)
}
