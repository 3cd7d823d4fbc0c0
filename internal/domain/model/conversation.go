package model

import "time"

// Conversation keys an external LLM thread handle by (bot, end-user).
// ResponseID is opaque; overwritten after every successful turn.
type Conversation struct {
	BotID      string
	UserID     int64
	ResponseID string
	UpdatedAt  time.Time
}
