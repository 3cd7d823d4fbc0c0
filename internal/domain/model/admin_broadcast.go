package model

import (
	"time"

	"github.com/google/uuid"

	"telegram-bot-hosting/internal/domain"
)

// AdminBroadcast is a platform-wide announcement sent from the master bot
// to every registered user. It bypasses the per-bot broadcast pipeline:
// the audience is the whole users table, not a bot's subscribers.
type AdminBroadcast struct {
	ID          string
	CreatedBy   int64
	MessageText string
	Total       int
	Sent        int
	Failed      int
	CreatedAt   time.Time
}

func NewAdminBroadcast(createdBy int64, text string) (*AdminBroadcast, error) {
	if createdBy == 0 || text == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &AdminBroadcast{
		ID:          uuid.NewString(),
		CreatedBy:   createdBy,
		MessageText: text,
		CreatedAt:   time.Now(),
	}, nil
}
