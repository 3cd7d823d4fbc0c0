package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

// Client implements adapter.Sender over one tgbotapi connection. Every bot
// of the fleet gets its own Client around its own token.
type Client struct {
	bot *tgbotapi.BotAPI
}

var _ adapter.Sender = (*Client)(nil)

// NewClient validates the token against getMe and returns a connected client.
func NewClient(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Client{bot: bot}, nil
}

// WrapBotAPI adopts an already-connected bot, used by the fleet runtime which
// owns the polling connection.
func WrapBotAPI(bot *tgbotapi.BotAPI) *Client {
	return &Client{bot: bot}
}

func (c *Client) Username() string {
	if c.bot.Self.UserName != "" {
		return c.bot.Self.UserName
	}
	return ""
}

func (c *Client) API() *tgbotapi.BotAPI { return c.bot }

func (c *Client) Send(ctx context.Context, req adapter.SendRequest) (adapter.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return adapter.SendResult{}, err
	}
	msg, err := c.bot.Send(buildChattable(req))
	if err != nil {
		return adapter.SendResult{}, ClassifyError(err)
	}
	return adapter.SendResult{MessageID: msg.MessageID}, nil
}

func buildChattable(req adapter.SendRequest) tgbotapi.Chattable {
	markup := buildMarkup(req.Buttons)

	if req.MediaFileID == "" || req.MediaType == model.MediaNone {
		m := tgbotapi.NewMessage(req.ChatID, req.Text)
		m.ParseMode = tgbotapi.ModeHTML
		m.ReplyMarkup = markup
		return m
	}

	file := tgbotapi.FileID(req.MediaFileID)
	caption := req.Text
	if !req.MediaType.SupportsCaption() {
		caption = ""
	}

	switch req.MediaType {
	case model.MediaPhoto:
		m := tgbotapi.NewPhoto(req.ChatID, file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		m.ReplyMarkup = markup
		return m
	case model.MediaVideo:
		m := tgbotapi.NewVideo(req.ChatID, file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		m.ReplyMarkup = markup
		return m
	case model.MediaDocument:
		m := tgbotapi.NewDocument(req.ChatID, file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		m.ReplyMarkup = markup
		return m
	case model.MediaAudio:
		m := tgbotapi.NewAudio(req.ChatID, file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		m.ReplyMarkup = markup
		return m
	case model.MediaVoice:
		m := tgbotapi.NewVoice(req.ChatID, file)
		m.ReplyMarkup = markup
		return m
	case model.MediaVideoNote:
		m := tgbotapi.NewVideoNote(req.ChatID, 0, file)
		m.ReplyMarkup = markup
		return m
	case model.MediaSticker:
		m := tgbotapi.NewSticker(req.ChatID, file)
		m.ReplyMarkup = markup
		return m
	case model.MediaAnimation:
		m := tgbotapi.NewAnimation(req.ChatID, file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		m.ReplyMarkup = markup
		return m
	default:
		m := tgbotapi.NewMessage(req.ChatID, req.Text)
		m.ParseMode = tgbotapi.ModeHTML
		m.ReplyMarkup = markup
		return m
	}
}

func buildMarkup(rows [][]adapter.InlineButton) interface{} {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				line = append(line, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				line = append(line, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		kb = append(kb, line)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

// ClassifyError maps Bot API failures onto the transport sentinels: Forbidden
// becomes ErrRecipientBlocked, 429 becomes a FloodWaitError with the exact
// retry_after, everything else passes through.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 403 {
			return adapter.ErrRecipientBlocked
		}
		if apiErr.Code == 429 || apiErr.RetryAfter > 0 {
			after := time.Duration(apiErr.RetryAfter) * time.Second
			if after <= 0 {
				after = time.Second
			}
			return &adapter.FloodWaitError{RetryAfter: after}
		}
		return err
	}
	// tgbotapi sometimes surfaces plain errors with the API description.
	msg := err.Error()
	if strings.Contains(msg, "Forbidden") && strings.Contains(msg, "blocked") {
		return adapter.ErrRecipientBlocked
	}
	return err
}
