package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// WizardStep tags the multi-step owner dialogs running inside a user bot
// (funnel-step composer, broadcast composer, welcome editor).
type WizardStep string

const (
	StepNone WizardStep = ""

	StepFunnelText    WizardStep = "funnel_text"
	StepFunnelDelay   WizardStep = "funnel_delay"
	StepFunnelMedia   WizardStep = "funnel_media"
	StepFunnelButtons WizardStep = "funnel_buttons"
	StepEditStepDelay WizardStep = "edit_step_delay"

	StepBroadcastText     WizardStep = "broadcast_text"
	StepBroadcastMedia    WizardStep = "broadcast_media"
	StepBroadcastButton   WizardStep = "broadcast_button"
	StepBroadcastSchedule WizardStep = "broadcast_schedule"

	StepWelcomeText       WizardStep = "welcome_text"
	StepWelcomeButton     WizardStep = "welcome_button"
	StepConfirmationText  WizardStep = "confirmation_text"
	StepGoodbyeText       WizardStep = "goodbye_text"
	StepAIToken           WizardStep = "ai_token"
	StepAISystemPrompt    WizardStep = "ai_system_prompt"
	StepMasterBotToken    WizardStep = "master_bot_token"
)

// WizardState is the tagged-variant state per (bot, user). Payload carries
// the partially built object between steps.
type WizardState struct {
	Step    WizardStep      `json:"step"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WizardStateRepo keeps dialog state in Redis with a TTL so abandoned
// wizards evaporate.
type WizardStateRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewWizardStateRepo(client RedisClient) *WizardStateRepo {
	return &WizardStateRepo{client: client, ttl: 30 * time.Minute}
}

func (s *WizardStateRepo) key(botID string, userID int64) string {
	return fmt.Sprintf("wizard:%s:%d", botID, userID)
}

func (s *WizardStateRepo) Set(ctx context.Context, botID string, userID int64, state *WizardState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(botID, userID), data, s.ttl)
}

// Get returns the current state or nil when no wizard is active.
func (s *WizardStateRepo) Get(ctx context.Context, botID string, userID int64) (*WizardState, error) {
	data, err := s.client.Get(ctx, s.key(botID, userID))
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, err
	}
	var state WizardState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *WizardStateRepo) Clear(ctx context.Context, botID string, userID int64) error {
	return s.client.Del(ctx, s.key(botID, userID))
}
