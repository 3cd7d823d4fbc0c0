package model

import (
	"time"

	"telegram-bot-hosting/internal/domain"
)

type MediaType string

const (
	MediaNone      MediaType = "none"
	MediaPhoto     MediaType = "photo"
	MediaVideo     MediaType = "video"
	MediaDocument  MediaType = "document"
	MediaAudio     MediaType = "audio"
	MediaVoice     MediaType = "voice"
	MediaVideoNote MediaType = "video_note"
	MediaAnimation MediaType = "animation"
	MediaSticker   MediaType = "sticker"
)

// SupportsCaption reports whether Telegram accepts a caption for the media
// kind. Uncaptionable kinds send text as a separate preceding message.
func (m MediaType) SupportsCaption() bool {
	switch m {
	case MediaVoice, MediaVideoNote, MediaSticker:
		return false
	default:
		return true
	}
}

const (
	MaxMessageLength   = 4096
	MaxButtonsPerStep  = 10
	MaxDelayHours      = 8760
	minDelayResolution = time.Minute
)

// BroadcastSequence is the per-bot container for funnel steps.
type BroadcastSequence struct {
	SequenceID string
	BotID      string
	IsEnabled  bool
	CreatedAt  time.Time
}

// BroadcastMessage is one funnel step. Delay is stored in seconds with
// minute resolution; DelayHours is the owner-facing unit.
type BroadcastMessage struct {
	MessageID     string
	SequenceID    string
	MessageNumber int
	MessageText   string // HTML
	DelaySeconds  int64

	MediaFileID       string
	MediaType         MediaType
	MediaFileUniqueID string
	MediaFileSize     int64
	MediaFilename     string

	IsActive    bool
	UTMCampaign string
	UTMContent  string
	CreatedAt   time.Time

	Buttons []MessageButton
}

// MessageButton is an inline URL button attached to a funnel step.
type MessageButton struct {
	MessageID  string
	Position   int
	ButtonText string
	ButtonURL  string
}

// DelayHours reports the delay in the owner-facing unit.
func (m *BroadcastMessage) DelayHours() float64 {
	return float64(m.DelaySeconds) / 3600
}

// Delay returns the delay as a duration.
func (m *BroadcastMessage) Delay() time.Duration {
	return time.Duration(m.DelaySeconds) * time.Second
}

// SetDelayHours validates and stores the delay at minute resolution.
func (m *BroadcastMessage) SetDelayHours(hours float64) error {
	if hours < 0 || hours > MaxDelayHours {
		return domain.ErrInvalidArgument
	}
	d := time.Duration(hours * float64(time.Hour)).Round(minDelayResolution)
	m.DelaySeconds = int64(d / time.Second)
	return nil
}

// Validate enforces the funnel-step invariants.
func (m *BroadcastMessage) Validate() error {
	if len(m.MessageText) > MaxMessageLength {
		return domain.ErrInvalidArgument
	}
	if len(m.Buttons) > MaxButtonsPerStep {
		return domain.ErrInvalidArgument
	}
	if m.DelaySeconds < 0 || m.DelaySeconds > MaxDelayHours*3600 {
		return domain.ErrInvalidArgument
	}
	return nil
}
