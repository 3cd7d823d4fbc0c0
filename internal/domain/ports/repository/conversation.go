package repository

import (
	"context"

	"telegram-bot-hosting/internal/domain/model"
)

type ConversationRepository interface {
	// Save upserts the (bot, user) handle row.
	Save(ctx context.Context, tx Tx, c *model.Conversation) error
	Find(ctx context.Context, tx Tx, botID string, userID int64) (*model.Conversation, error)
	// Delete clears the thread handle so the next turn starts fresh.
	Delete(ctx context.Context, tx Tx, botID string, userID int64) error
}
