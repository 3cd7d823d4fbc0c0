package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	redisinfra "telegram-bot-hosting/internal/infra/redis"
	infratg "telegram-bot-hosting/internal/infra/telegram"
	"telegram-bot-hosting/internal/usecase"
)

const (
	maxPollFailures = 5
	pollRetryBase   = 5 * time.Second
	pollRetryCap    = 30 * time.Second

	aiRateLimit       = 20
	aiRateLimitWindow = time.Minute
)

// allowedUserBotUpdates lists every update kind the runtime handles.
// my_chat_member must be requested explicitly or block events never arrive.
var allowedUserBotUpdates = []string{"message", "chat_member", "my_chat_member", "chat_join_request", "callback_query"}

// Deps bundles the use cases a hosted bot runtime talks to.
type Deps struct {
	Subs          usecase.SubscriberUseCase
	Conversations usecase.ConversationUseCase
	Funnel        usecase.FunnelUseCase
	Broadcasts    usecase.BroadcastUseCase
	Bots          usecase.BotUseCase
	Wizards       *redisinfra.WizardStateRepo
	Limiter       *redisinfra.RateLimiter
}

// Runtime owns the long-poll session of one hosted user bot. The config
// snapshot is swapped in place by the supervisor on reconcile, so settings
// changes do not restart the poll loop.
type Runtime struct {
	client *infratg.Client
	deps   Deps
	log    *zerolog.Logger

	mu  sync.RWMutex
	bot *model.UserBot
}

func NewRuntime(bot *model.UserBot, client *infratg.Client, deps Deps, logger *zerolog.Logger) *Runtime {
	compLog := logger.With().Str("component", "Runtime").Str("bot_id", bot.BotID).Logger()
	return &Runtime{client: client, deps: deps, log: &compLog, bot: bot}
}

// Sender exposes the transport for the dispatchers.
func (r *Runtime) Sender() adapter.Sender { return r.client }

// UpdateConfig swaps the config snapshot without interrupting polling.
func (r *Runtime) UpdateConfig(bot *model.UserBot) {
	r.mu.Lock()
	r.bot = bot
	r.mu.Unlock()
}

func (r *Runtime) snapshot() *model.UserBot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bot
}

// Run polls updates until ctx is cancelled. Consecutive poll failures back
// off exponentially; after maxPollFailures the runtime gives up and the
// supervisor marks the bot errored.
func (r *Runtime) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = allowedUserBotUpdates

	r.log.Info().Str("username", r.client.Username()).Msg("runtime started")
	failures := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := r.client.API().GetUpdates(u)
		if err != nil {
			failures++
			if failures >= maxPollFailures {
				return fmt.Errorf("polling failed %d times: %w", failures, err)
			}
			delay := pollRetryBase << (failures - 1)
			if delay > pollRetryCap {
				delay = pollRetryCap
			}
			r.log.Warn().Err(err).Int("attempt", failures).Dur("retry_in", delay).Msg("poll failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		failures = 0
		for _, upd := range updates {
			if upd.UpdateID >= u.Offset {
				u.Offset = upd.UpdateID + 1
			}
			r.handleUpdate(ctx, upd)
		}
	}
}

func (r *Runtime) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.ChatJoinRequest != nil:
		r.handleJoinRequest(ctx, upd.ChatJoinRequest)
	case upd.ChatMember != nil:
		r.handleChatMember(ctx, upd.ChatMember)
	case upd.MyChatMember != nil:
		r.handleMyChatMember(ctx, upd.MyChatMember)
	case upd.CallbackQuery != nil:
		// User bots only carry URL buttons; just stop the spinner.
		_, _ = r.client.API().Request(tgbotapi.NewCallback(upd.CallbackQuery.ID, ""))
	case upd.Message != nil:
		r.handleMessage(ctx, upd.Message)
	}
}

// handleJoinRequest approves and welcomes. This is the only welcome path
// for channels; groups welcome through chat_member instead.
func (r *Runtime) handleJoinRequest(ctx context.Context, req *tgbotapi.ChatJoinRequest) {
	_, err := r.client.API().Request(tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: req.Chat.ID},
		UserID:     req.From.ID,
	})
	if err != nil {
		r.log.Warn().Err(err).Int64("user_id", req.From.ID).Msg("approve join request failed")
		return
	}
	r.welcomeNewcomer(ctx, &req.From)
}

func (r *Runtime) handleChatMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	if upd.Chat.IsChannel() {
		return
	}
	user := upd.NewChatMember.User
	if user == nil || user.IsBot {
		return
	}
	oldIn := isMemberStatus(upd.OldChatMember.Status)
	newIn := isMemberStatus(upd.NewChatMember.Status)
	switch {
	case !oldIn && newIn:
		r.welcomeNewcomer(ctx, user)
	case oldIn && !newIn:
		r.farewell(ctx, user.ID)
	}
}

// handleMyChatMember sees the bot's own membership change. A kicked status
// in a private chat means the user blocked the bot.
func (r *Runtime) handleMyChatMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	if !upd.Chat.IsPrivate() {
		return
	}
	if upd.NewChatMember.Status == "kicked" {
		bot := r.snapshot()
		if err := r.deps.Subs.Leave(ctx, bot.BotID, upd.From.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			r.log.Warn().Err(err).Int64("user_id", upd.From.ID).Msg("deactivate on block failed")
		}
	}
}

func isMemberStatus(s string) bool {
	switch s {
	case "member", "administrator", "creator", "restricted":
		return true
	}
	return false
}

// welcomeNewcomer persists the subscriber and sends the welcome message to
// the user's private chat with the confirmation button attached.
func (r *Runtime) welcomeNewcomer(ctx context.Context, user *tgbotapi.User) {
	bot := r.snapshot()
	sub, _, err := r.deps.Subs.Join(ctx, bot.BotID, user.ID, user.ID, user.FirstName, user.LastName, user.UserName)
	if err != nil {
		r.log.Error().Err(err).Int64("user_id", user.ID).Msg("join failed")
		return
	}
	r.sendWelcome(bot, sub)
}

func (r *Runtime) sendWelcome(bot *model.UserBot, sub *model.Subscriber) {
	if bot.WelcomeMessage == "" {
		return
	}
	msg := tgbotapi.NewMessage(sub.ChatID, sub.RenderSubstitutions(bot.WelcomeMessage))
	msg.ParseMode = tgbotapi.ModeHTML
	if bot.WelcomeButtonText != "" {
		msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(bot.WelcomeButtonText)),
		)
	}
	if _, err := r.client.API().Send(msg); err != nil {
		r.log.Debug().Err(err).Int64("chat_id", sub.ChatID).Msg("welcome send failed")
	}
}

func (r *Runtime) farewell(ctx context.Context, userID int64) {
	bot := r.snapshot()
	if err := r.deps.Subs.Leave(ctx, bot.BotID, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("leave failed")
		return
	}
	if bot.GoodbyeMessage == "" {
		return
	}
	req := adapter.SendRequest{ChatID: userID, Text: bot.GoodbyeMessage}
	if bot.GoodbyeButtonText != "" && bot.GoodbyeButtonURL != "" {
		req.Buttons = [][]adapter.InlineButton{{{Text: bot.GoodbyeButtonText, URL: bot.GoodbyeButtonURL}}}
	}
	// Best effort: the user may never have opened the private chat.
	if _, err := r.client.Send(ctx, req); err != nil {
		r.log.Debug().Err(err).Int64("user_id", userID).Msg("goodbye send failed")
	}
}

func (r *Runtime) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}
	bot := r.snapshot()

	if msg.From.ID == bot.OwnerUserID {
		r.handleOwnerMessage(ctx, bot, msg)
		return
	}

	switch {
	case msg.IsCommand():
		r.handleSubscriberCommand(ctx, bot, msg)
	case bot.WelcomeButtonText != "" && strings.TrimSpace(msg.Text) == bot.WelcomeButtonText:
		r.confirmSubscriber(ctx, bot, msg)
	default:
		r.aiTurn(ctx, bot, msg)
	}
}

func (r *Runtime) handleSubscriberCommand(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		user := msg.From
		sub, _, err := r.deps.Subs.Join(ctx, bot.BotID, user.ID, msg.Chat.ID, user.FirstName, user.LastName, user.UserName)
		if err != nil {
			r.log.Error().Err(err).Int64("user_id", user.ID).Msg("join failed")
			return
		}
		r.sendWelcome(bot, sub)
	case "exit":
		if err := r.deps.Conversations.Reset(ctx, bot.BotID, msg.From.ID); err != nil {
			r.log.Warn().Err(err).Msg("conversation reset failed")
		}
		r.reply(ctx, msg.Chat.ID, "Диалог с ассистентом сброшен.")
	default:
		r.reply(ctx, msg.Chat.ID, "Неизвестная команда.")
	}
}

// confirmSubscriber fires on the welcome-button tap: the subscriber is
// confirmed and the funnel timeline materialises from this moment.
func (r *Runtime) confirmSubscriber(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message) {
	if _, err := r.deps.Subs.Confirm(ctx, bot.BotID, msg.From.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			user := msg.From
			if _, _, err := r.deps.Subs.Join(ctx, bot.BotID, user.ID, msg.Chat.ID, user.FirstName, user.LastName, user.UserName); err == nil {
				_, err = r.deps.Subs.Confirm(ctx, bot.BotID, user.ID)
			}
			if err != nil {
				r.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("confirm failed")
				return
			}
		} else {
			r.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("confirm failed")
			return
		}
	}
	text := bot.ConfirmationMessage
	if text == "" {
		text = "Спасибо, подписка подтверждена!"
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	if _, err := r.client.API().Send(out); err != nil {
		r.log.Debug().Err(err).Msg("confirmation send failed")
	}
}

func (r *Runtime) aiTurn(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message) {
	if !bot.AIEnabled || msg.Text == "" {
		return
	}
	key := redisinfra.UserCommandKey(bot.BotID, msg.From.ID, "ai")
	if ok, err := r.deps.Limiter.Allow(ctx, key, aiRateLimit, aiRateLimitWindow); err == nil && !ok {
		r.reply(ctx, msg.Chat.ID, "Слишком много сообщений подряд. Подождите минуту.")
		return
	}
	_, _ = r.client.API().Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping))

	answer, err := r.deps.Conversations.Turn(ctx, bot, msg.From.ID, msg.Text)
	if err != nil {
		r.reply(ctx, msg.Chat.ID, turnErrorText(bot, err))
		return
	}
	r.reply(ctx, msg.Chat.ID, answer)
}

func turnErrorText(bot *model.UserBot, err error) string {
	switch {
	case errors.Is(err, domain.ErrSubscriptionExpired), errors.Is(err, domain.ErrAccessDenied):
		return fmt.Sprintf("Подписка владельца бота @%s истекла, ассистент временно недоступен.", bot.BotUsername)
	case errors.Is(err, domain.ErrTokensExhausted):
		return "Лимит токенов этого бота исчерпан. Попробуйте позже."
	case errors.Is(err, domain.ErrAIBadRequest):
		return "Техническая ошибка при обращении к ассистенту."
	default:
		return "Не получилось получить ответ. Попробуйте ещё раз позже."
	}
}

func (r *Runtime) reply(ctx context.Context, chatID int64, text string) {
	if _, err := r.client.Send(ctx, adapter.SendRequest{ChatID: chatID, Text: text}); err != nil {
		r.log.Debug().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}
