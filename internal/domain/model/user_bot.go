package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"telegram-bot-hosting/internal/domain"
)

type BotStatus string

const (
	BotStatusActive   BotStatus = "active"
	BotStatusError    BotStatus = "error"
	BotStatusDisabled BotStatus = "disabled"
)

type AIProvider string

const (
	AIProviderOpenAI     AIProvider = "openai"
	AIProviderChatForYou AIProvider = "chatforyou"
	AIProviderProTalk    AIProvider = "protalk"
	AIProviderNone       AIProvider = "none"
)

// AISettings is the enumerated option set behind the user_bots.ai_settings column.
// Unknown keys are rejected at load.
type AISettings struct {
	EnableFileSearch bool    `json:"enable_file_search,omitempty"`
	VectorStoreID    string  `json:"vector_store_id,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"max_output_tokens,omitempty"`
	APIKey           string  `json:"api_key,omitempty"`
}

// ParseAISettings decodes the settings blob strictly.
func ParseAISettings(raw []byte) (AISettings, error) {
	var s AISettings
	if len(raw) == 0 {
		return s, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return AISettings{}, err
	}
	return s, nil
}

// UserBot is one Telegram bot token registered by a platform user.
type UserBot struct {
	BotID       string // UUID
	OwnerUserID int64
	Token       string
	BotUsername string
	Status      BotStatus
	IsRunning   bool

	WelcomeMessage      string
	WelcomeButtonText   string
	ConfirmationMessage string
	GoodbyeMessage      string
	GoodbyeButtonText   string
	GoodbyeButtonURL    string

	AIEnabled      bool
	AIAssistantID  string
	AIProvider     AIProvider
	AIModel        string
	AISystemPrompt string
	AISettings     AISettings

	TokensLimitTotal      *int64 // nil means unlimited
	TokensInputUsed       int64
	TokensOutputUsed      int64
	TokenNotificationSent bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserBot creates a bot row after token verification against getMe.
func NewUserBot(ownerUserID int64, token, username string) (*UserBot, error) {
	if ownerUserID == 0 || token == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &UserBot{
		BotID:       uuid.NewString(),
		OwnerUserID: ownerUserID,
		Token:       token,
		BotUsername: username,
		Status:      BotStatusActive,
		IsRunning:   true,
		AIProvider:  AIProviderNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TokensRemaining returns the unused budget; second result is false when unlimited.
func (b *UserBot) TokensRemaining() (int64, bool) {
	if b.TokensLimitTotal == nil {
		return 0, false
	}
	return *b.TokensLimitTotal - (b.TokensInputUsed + b.TokensOutputUsed), true
}

// ConfigFingerprint covers the fields a running runtime must observe on
// reconcile; a change means the supervisor pushes fresh config without restart.
func (b *UserBot) ConfigFingerprint() string {
	j, _ := json.Marshal(struct {
		W, WB, C, G, GB, GU string
		AI                  bool
		Prov                AIProvider
		Asst, Model, Prompt string
		Set                 AISettings
	}{
		b.WelcomeMessage, b.WelcomeButtonText, b.ConfirmationMessage,
		b.GoodbyeMessage, b.GoodbyeButtonText, b.GoodbyeButtonURL,
		b.AIEnabled, b.AIProvider, b.AIAssistantID, b.AIModel, b.AISystemPrompt,
		b.AISettings,
	})
	return string(j)
}
