package model

import (
	"time"

	"github.com/google/uuid"

	"telegram-bot-hosting/internal/domain"
)

type BroadcastType string

const (
	BroadcastInstant   BroadcastType = "instant"
	BroadcastScheduled BroadcastType = "scheduled"
)

type BroadcastStatus string

const (
	BroadcastDraft          BroadcastStatus = "draft"
	BroadcastStatusScheduled BroadcastStatus = "scheduled"
	BroadcastSending        BroadcastStatus = "sending"
	BroadcastCompleted      BroadcastStatus = "completed"
	BroadcastCancelled      BroadcastStatus = "cancelled"
	BroadcastFailed         BroadcastStatus = "failed"
)

// MinScheduleLead is the floor for scheduled_at at creation time.
const MinScheduleLead = 5 * time.Minute

// MassBroadcast is an admin-created blast to a bot's audience.
type MassBroadcast struct {
	ID          string
	BotID       string
	CreatedBy   int64
	Title       string
	MessageText string

	MediaFileID string
	MediaType   MediaType

	ButtonText string
	ButtonURL  string

	Type        BroadcastType
	ScheduledAt *time.Time
	Status      BroadcastStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// NewDraftBroadcast creates a draft; scheduling happens via Schedule.
func NewDraftBroadcast(botID string, createdBy int64, title, text string) (*MassBroadcast, error) {
	if botID == "" || createdBy == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &MassBroadcast{
		ID:          uuid.NewString(),
		BotID:       botID,
		CreatedBy:   createdBy,
		Title:       title,
		MessageText: text,
		MediaType:   MediaNone,
		Type:        BroadcastInstant,
		Status:      BroadcastDraft,
		CreatedAt:   time.Now(),
	}, nil
}

// Schedule moves a draft into scheduled. The floor is now+5m.
func (b *MassBroadcast) Schedule(at, now time.Time) error {
	if b.Status != BroadcastDraft {
		return domain.ErrInvalidArgument
	}
	if at.Before(now.Add(MinScheduleLead)) {
		return domain.ErrInvalidArgument
	}
	b.Type = BroadcastScheduled
	b.ScheduledAt = &at
	b.Status = BroadcastStatusScheduled
	return nil
}

// Terminal reports whether the broadcast can no longer change state.
func (b *MassBroadcast) Terminal() bool {
	switch b.Status {
	case BroadcastCompleted, BroadcastCancelled, BroadcastFailed:
		return true
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryBlocked   DeliveryStatus = "blocked"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// BroadcastDelivery is the per-recipient row of a mass broadcast.
type BroadcastDelivery struct {
	ID                string
	BroadcastID       string
	UserID            int64 // recipient chat id
	Status            DeliveryStatus
	TelegramMessageID *int
	ErrorMessage      string
	AttemptedAt       *time.Time
}

// NewBroadcastDelivery materialises one pending recipient row.
func NewBroadcastDelivery(broadcastID string, userID int64) *BroadcastDelivery {
	return &BroadcastDelivery{
		ID:          NewULID(),
		BroadcastID: broadcastID,
		UserID:      userID,
		Status:      DeliveryPending,
	}
}
