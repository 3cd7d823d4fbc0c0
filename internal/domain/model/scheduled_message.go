package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type ScheduledStatus string

const (
	ScheduledPending   ScheduledStatus = "pending"
	ScheduledSent      ScheduledStatus = "sent"
	ScheduledFailed    ScheduledStatus = "failed"
	ScheduledCancelled ScheduledStatus = "cancelled"
)

// Dispatch failure reasons recorded in error_message.
const (
	FailReasonBlocked        = "blocked"
	FailReasonBotUnavailable = "bot_unavailable"
)

// ScheduledMessage is a materialised per-subscriber funnel delivery row.
type ScheduledMessage struct {
	ID           string // ULID, sortable by creation time
	BotID        string
	SubscriberID int64 // subscriber's telegram user id within the bot
	MessageID    string
	ScheduledAt  time.Time
	Status       ScheduledStatus
	ErrorMessage string
	CreatedAt    time.Time
}

// NewScheduledMessage materialises one funnel step for a subscriber.
func NewScheduledMessage(botID string, subscriberID int64, messageID string, at time.Time) *ScheduledMessage {
	now := time.Now()
	return &ScheduledMessage{
		ID:           NewULID(),
		BotID:        botID,
		SubscriberID: subscriberID,
		MessageID:    messageID,
		ScheduledAt:  at,
		Status:       ScheduledPending,
		CreatedAt:    now,
	}
}

// NewULID returns a lexicographically sortable row id.
func NewULID() string {
	return ulid.Make().String()
}
