package sched

import (
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

// SenderResolver hands out the live transport for a hosted bot. The fleet
// supervisor implements it; a bot that is not running resolves to false.
type SenderResolver interface {
	SenderFor(botID string) (adapter.Sender, bool)
}
