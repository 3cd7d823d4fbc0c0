package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-bot-hosting/internal/domain/model"
)

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// SendRequest describes one outbound Telegram message. When MediaFileID is
// set the typed send for MediaType is used, otherwise plain text. Parse
// mode is HTML throughout.
type SendRequest struct {
	ChatID      int64
	Text        string
	MediaFileID string
	MediaType   model.MediaType
	Buttons     [][]InlineButton
}

type SendResult struct {
	MessageID int
}

// Sender is the thin transport port over the Telegram Bot API.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// ErrRecipientBlocked marks a Forbidden response: the user blocked the bot.
var ErrRecipientBlocked = errors.New("recipient blocked the bot")

// FloodWaitError carries the retry_after Telegram reported; the caller
// waits exactly that long and retries the same item.
type FloodWaitError struct {
	RetryAfter time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("telegram flood wait %s", e.RetryAfter)
}

// AsFloodWait extracts a flood-wait error from an error chain.
func AsFloodWait(err error) (*FloodWaitError, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw, true
	}
	return nil, false
}
