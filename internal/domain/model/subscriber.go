package model

import (
	"fmt"
	"strings"
	"time"

	"telegram-bot-hosting/internal/domain"
)

// Subscriber is one (bot, Telegram end-user) pair inside a user bot's audience.
type Subscriber struct {
	BotID     string
	UserID    int64
	ChatID    int64
	FirstName string
	LastName  string
	Username  string

	FunnelStartedAt      *time.Time
	LastBroadcastMessage int // last delivered funnel step number
	FunnelEnabled        bool
	IsActive             bool
	JoinedAt             time.Time
}

// NewSubscriber records a member of a user bot's audience.
func NewSubscriber(botID string, userID, chatID int64, firstName, lastName, username string) (*Subscriber, error) {
	if botID == "" || userID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscriber{
		BotID:         botID,
		UserID:        userID,
		ChatID:        chatID,
		FirstName:     firstName,
		LastName:      lastName,
		Username:      username,
		FunnelEnabled: true,
		IsActive:      true,
		JoinedAt:      time.Now(),
	}, nil
}

// FullName joins first and last name, skipping empty parts.
func (s *Subscriber) FullName() string {
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	if name == "" {
		return s.Username
	}
	return name
}

// Mention returns an HTML mention link for the subscriber.
func (s *Subscriber) Mention() string {
	name := s.FirstName
	if name == "" {
		name = s.FullName()
	}
	if name == "" {
		name = fmt.Sprintf("%d", s.UserID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, s.UserID, name)
}

// RenderSubstitutions replaces the supported placeholders in funnel text.
func (s *Subscriber) RenderSubstitutions(text string) string {
	r := strings.NewReplacer(
		"{first_name}", s.FirstName,
		"{username}", s.Username,
		"{user_id}", fmt.Sprintf("%d", s.UserID),
		"{mention}", s.Mention(),
		"{full_name}", s.FullName(),
	)
	return r.Replace(text)
}
