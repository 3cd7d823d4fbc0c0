package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-bot-hosting/internal/domain"
)

// TokenProber verifies a candidate bot token against getMe before the
// platform persists it.
type TokenProber struct{}

func (TokenProber) VerifyToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrInvalidArgument
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return bot.Self.UserName, nil
}
