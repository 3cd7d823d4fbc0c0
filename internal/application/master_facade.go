package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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

// Master-bot wizards are keyed under this scope instead of a bot id.
const masterWizardScope = "master"

// stepFileID arms the super-admin file-id echo for the next media message.
const stepFileID redisinfra.WizardStep = "file_id"

// stepAdminBroadcast collects the text for a platform-wide mailing.
const stepAdminBroadcast redisinfra.WizardStep = "admin_broadcast"

const referralPrefix = "REF_"

// aiWizardPayload carries the target bot between AI-setup wizard turns.
type aiWizardPayload struct {
	BotID string `json:"bot_id"`
}

// MasterFacade is the whole master-bot surface: registration, bot
// management, pricing, referrals and the super-admin console.
type MasterFacade struct {
	client   *infratg.Client
	users    usecase.UserUseCase
	bots     usecase.BotUseCase
	payments usecase.PaymentUseCase
	stats    usecase.StatsUseCase
	admin    usecase.AdminBroadcastUseCase
	wizards  *redisinfra.WizardStateRepo

	adminChatID  int64
	trialEnabled bool
	trialDays    int

	log *zerolog.Logger
}

func NewMasterFacade(
	client *infratg.Client,
	users usecase.UserUseCase,
	bots usecase.BotUseCase,
	payments usecase.PaymentUseCase,
	stats usecase.StatsUseCase,
	admin usecase.AdminBroadcastUseCase,
	wizards *redisinfra.WizardStateRepo,
	adminChatID int64,
	trialEnabled bool,
	trialDays int,
	logger *zerolog.Logger,
) *MasterFacade {
	compLog := logger.With().Str("component", "MasterFacade").Logger()
	return &MasterFacade{
		client:       client,
		users:        users,
		bots:         bots,
		payments:     payments,
		stats:        stats,
		admin:        admin,
		wizards:      wizards,
		adminChatID:  adminChatID,
		trialEnabled: trialEnabled,
		trialDays:    trialDays,
		log:          &compLog,
	}
}

var _ usecase.OwnerNotifier = (*MasterFacade)(nil)

// NotifyOwner delivers platform notices (token warnings, referral credits,
// expiry) through the master bot.
func (f *MasterFacade) NotifyOwner(ctx context.Context, ownerUserID int64, text string) error {
	chatID := ownerUserID
	if u, err := f.users.Get(ctx, ownerUserID); err == nil && u.AdminChatID != 0 {
		chatID = u.AdminChatID
	}
	_, err := f.client.Send(ctx, adapter.SendRequest{ChatID: chatID, Text: text})
	return err
}

// HandleUpdate routes one master-bot update.
func (f *MasterFacade) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		f.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		f.handleMessage(ctx, upd.Message)
	}
}

func (f *MasterFacade) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}
	if msg.IsCommand() {
		f.handleCommand(ctx, msg)
		return
	}

	state, err := f.wizards.Get(ctx, masterWizardScope, msg.From.ID)
	if err != nil {
		f.log.Error().Err(err).Msg("wizard state load failed")
		return
	}
	if state == nil {
		f.send(ctx, msg.Chat.ID, "Выберите действие в меню: /start", nil)
		return
	}

	switch state.Step {
	case redisinfra.StepMasterBotToken:
		f.finishCreateBot(ctx, msg)
	case redisinfra.StepAIToken:
		f.finishConfigureAI(ctx, msg, state)
	case stepFileID:
		f.echoFileID(ctx, msg)
	case stepAdminBroadcast:
		f.finishAdminBroadcast(ctx, msg)
	default:
		_ = f.wizards.Clear(ctx, masterWizardScope, msg.From.ID)
	}
}

func (f *MasterFacade) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		f.handleStart(ctx, msg)
	case "help":
		f.send(ctx, msg.Chat.ID, masterHelpText, nil)
	case "cancel":
		_ = f.wizards.Clear(ctx, masterWizardScope, msg.From.ID)
		f.send(ctx, msg.Chat.ID, "Действие отменено.", nil)
	case "stats":
		if !f.isAdmin(msg.From.ID) {
			return
		}
		f.sendStats(ctx, msg.Chat.ID)
	case "file_id":
		if !f.isAdmin(msg.From.ID) {
			return
		}
		_ = f.wizards.Set(ctx, masterWizardScope, msg.From.ID, &redisinfra.WizardState{Step: stepFileID})
		f.send(ctx, msg.Chat.ID, "Пришлите медиа, верну его file_id.", nil)
	default:
		f.send(ctx, msg.Chat.ID, "Неизвестная команда. /help — справка.", nil)
	}
}

func (f *MasterFacade) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	code := ""
	if args := strings.TrimSpace(msg.CommandArguments()); strings.HasPrefix(args, referralPrefix) {
		code = strings.TrimPrefix(args, referralPrefix)
	}
	user, created, err := f.users.RegisterOrFetch(ctx, msg.From.ID, msg.Chat.ID, code)
	if err != nil {
		f.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("register failed")
		f.send(ctx, msg.Chat.ID, "Не удалось зарегистрировать вас. Попробуйте позже.", nil)
		return
	}
	greeting := "С возвращением! Чем займёмся?"
	if created {
		greeting = "Добро пожаловать! Здесь вы создаёте собственных Telegram-ботов: воронки сообщений, рассылки и ИИ-ассистент — без кода."
		if f.trialEnabled {
			greeting += fmt.Sprintf("\n\nПробный период на %d дн. уже активирован — создайте первого бота.", f.trialDays)
		}
	}
	f.send(ctx, msg.Chat.ID, greeting, f.mainMenu(user))
}

const masterHelpText = `Что умеет платформа:
— хостинг ваших Telegram-ботов (токен от @BotFather)
— воронка отложенных сообщений для новых подписчиков
— массовые рассылки с медиа и кнопками
— ИИ-ассистент (OpenAI, ChatForYou, ProTalk)

/start — главное меню
/cancel — отменить текущее действие

Настройка воронки и рассылок — внутри вашего бота, командой /help там.`

func (f *MasterFacade) mainMenu(user *model.User) [][]adapter.InlineButton {
	var rows [][]adapter.InlineButton
	if f.trialEnabled && user.Status == model.SubscriptionFree && user.TrialStartedAt == nil {
		rows = append(rows, []adapter.InlineButton{{Text: "🎁 Попробовать бесплатно", Data: "trial"}})
	}
	rows = append(rows,
		[]adapter.InlineButton{{Text: "🤖 Мои боты", Data: "my_bots"}, {Text: "➕ Создать бота", Data: "create_bot"}},
		[]adapter.InlineButton{{Text: "💳 Тарифы и оплата", Data: "pricing"}},
		[]adapter.InlineButton{{Text: "🤝 Партнёрская программа", Data: "referral"}},
	)
	return rows
}

func (f *MasterFacade) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	_, _ = f.client.API().Request(tgbotapi.NewCallback(cb.ID, ""))
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID

	action, arg := cb.Data, ""
	if i := strings.IndexByte(cb.Data, ':'); i >= 0 {
		action, arg = cb.Data[:i], cb.Data[i+1:]
	}

	switch action {
	case "menu":
		user, err := f.users.Get(ctx, userID)
		if err != nil {
			return
		}
		f.send(ctx, chatID, "Главное меню:", f.mainMenu(user))
	case "trial":
		f.startTrial(ctx, chatID, userID)
	case "my_bots":
		f.showBots(ctx, chatID, userID)
	case "create_bot":
		_ = f.wizards.Set(ctx, masterWizardScope, userID, &redisinfra.WizardState{Step: redisinfra.StepMasterBotToken})
		f.send(ctx, chatID, "Пришлите токен бота от @BotFather. /cancel — отмена.", nil)
	case "bot":
		f.showBotCard(ctx, chatID, userID, arg)
	case "bot_toggle":
		f.toggleBot(ctx, chatID, userID, arg)
	case "bot_restart":
		if err := f.bots.Restart(ctx, userID, arg); err != nil {
			f.send(ctx, chatID, "Не удалось перезапустить бота.", nil)
			return
		}
		f.showBotCard(ctx, chatID, userID, arg)
	case "bot_del":
		f.deleteBot(ctx, chatID, userID, arg)
	case "bot_ai":
		payload, _ := json.Marshal(aiWizardPayload{BotID: arg})
		_ = f.wizards.Set(ctx, masterWizardScope, userID, &redisinfra.WizardState{Step: redisinfra.StepAIToken, Payload: payload})
		f.send(ctx, chatID, "Пришлите ключ ИИ-провайдера. Для OpenAI c ассистентом: «ключ | assistant_id». Провайдер определится автоматически.", nil)
	case "bot_ai_off":
		if err := f.bots.DisableAI(ctx, userID, arg); err != nil {
			f.send(ctx, chatID, "Не удалось отключить ассистента.", nil)
			return
		}
		f.showBotCard(ctx, chatID, userID, arg)
	case "bot_tokens":
		f.sendInvoice(ctx, chatID, userID, adapter.PaymentTokens, arg)
	case "pricing":
		f.showPricing(ctx, chatID)
	case "pay_sub":
		f.sendInvoice(ctx, chatID, userID, adapter.PaymentSubscription, "")
	case "referral":
		f.showReferral(ctx, chatID, userID)
	case "referral_history":
		f.showReferralHistory(ctx, chatID, userID)
	case "check_payment":
		f.checkPayment(ctx, chatID, userID)
	case "admin_broadcast":
		if !f.isAdmin(userID) {
			return
		}
		_ = f.wizards.Set(ctx, masterWizardScope, userID, &redisinfra.WizardState{Step: stepAdminBroadcast})
		f.send(ctx, chatID, "Пришлите текст рассылки всем пользователям платформы. /cancel — отмена.", nil)
	case "admin_history":
		if !f.isAdmin(userID) {
			return
		}
		f.showAdminHistory(ctx, chatID)
	}
}

func (f *MasterFacade) startTrial(ctx context.Context, chatID, userID int64) {
	user, err := f.users.StartTrial(ctx, userID)
	switch {
	case err == nil:
		f.send(ctx, chatID, fmt.Sprintf("Пробный период на %d дн. активирован. Создайте первого бота!", f.trialDays), f.mainMenu(user))
	case errors.Is(err, domain.ErrTrialExpired):
		f.send(ctx, chatID, "Пробный период уже был использован. Оформите подписку.", [][]adapter.InlineButton{{{Text: "💳 Тарифы", Data: "pricing"}}})
	default:
		f.send(ctx, chatID, "Пробный период сейчас недоступен.", nil)
	}
}

func (f *MasterFacade) showBots(ctx context.Context, chatID, userID int64) {
	list, err := f.bots.ListByOwner(ctx, userID)
	if err != nil {
		f.send(ctx, chatID, "Не удалось загрузить ботов.", nil)
		return
	}
	if len(list) == 0 {
		f.send(ctx, chatID, "У вас пока нет ботов.", [][]adapter.InlineButton{
			{{Text: "➕ Создать бота", Data: "create_bot"}},
			{{Text: "⬅️ Меню", Data: "menu"}},
		})
		return
	}
	rows := make([][]adapter.InlineButton, 0, len(list)+1)
	for _, b := range list {
		label := "@" + b.BotUsername
		if !b.IsRunning {
			label += " ⏸"
		}
		if b.Status == model.BotStatusError {
			label += " ⚠️"
		}
		rows = append(rows, []adapter.InlineButton{{Text: label, Data: "bot:" + b.BotID}})
	}
	rows = append(rows, []adapter.InlineButton{{Text: "⬅️ Меню", Data: "menu"}})
	f.send(ctx, chatID, "Ваши боты:", rows)
}

func (f *MasterFacade) showBotCard(ctx context.Context, chatID, userID int64, botID string) {
	bot, err := f.bots.GetOwned(ctx, userID, botID)
	if err != nil {
		f.send(ctx, chatID, "Бот не найден.", nil)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Бот @%s\n", bot.BotUsername)
	if bot.IsRunning {
		sb.WriteString("Состояние: работает\n")
	} else if bot.Status == model.BotStatusError {
		sb.WriteString("Состояние: ошибка запуска\n")
	} else {
		sb.WriteString("Состояние: остановлен\n")
	}
	if bot.AIEnabled {
		fmt.Fprintf(&sb, "Ассистент: %s\n", bot.AIProvider)
		if remaining, limited := bot.TokensRemaining(); limited {
			fmt.Fprintf(&sb, "Осталось токенов: %d\n", remaining)
		} else {
			sb.WriteString("Токены: без лимита\n")
		}
	} else {
		sb.WriteString("Ассистент: выключен\n")
	}

	toggle := adapter.InlineButton{Text: "⏸ Остановить", Data: "bot_toggle:" + bot.BotID}
	if !bot.IsRunning {
		toggle = adapter.InlineButton{Text: "▶️ Запустить", Data: "bot_toggle:" + bot.BotID}
	}
	first := []adapter.InlineButton{toggle}
	if bot.IsRunning {
		first = append(first, adapter.InlineButton{Text: "🔄 Перезапустить", Data: "bot_restart:" + bot.BotID})
	}
	rows := [][]adapter.InlineButton{first}
	if bot.AIEnabled {
		rows = append(rows, []adapter.InlineButton{
			{Text: "🔁 Сменить ключ ИИ", Data: "bot_ai:" + bot.BotID},
			{Text: "🚫 Отключить ИИ", Data: "bot_ai_off:" + bot.BotID},
		})
		rows = append(rows, []adapter.InlineButton{{Text: "🪙 Купить токены", Data: "bot_tokens:" + bot.BotID}})
	} else {
		rows = append(rows, []adapter.InlineButton{{Text: "🧠 Подключить ИИ", Data: "bot_ai:" + bot.BotID}})
	}
	rows = append(rows,
		[]adapter.InlineButton{{Text: "🗑 Удалить", Data: "bot_del:" + bot.BotID}},
		[]adapter.InlineButton{{Text: "⬅️ К списку", Data: "my_bots"}},
	)
	f.send(ctx, chatID, sb.String(), rows)
}

func (f *MasterFacade) toggleBot(ctx context.Context, chatID, userID int64, botID string) {
	bot, err := f.bots.GetOwned(ctx, userID, botID)
	if err != nil {
		f.send(ctx, chatID, "Бот не найден.", nil)
		return
	}
	if err := f.bots.SetRunning(ctx, userID, botID, !bot.IsRunning); err != nil {
		if errors.Is(err, domain.ErrSubscriptionExpired) || errors.Is(err, domain.ErrAccessDenied) {
			f.send(ctx, chatID, "Для запуска нужна активная подписка.", [][]adapter.InlineButton{{{Text: "💳 Тарифы", Data: "pricing"}}})
			return
		}
		f.send(ctx, chatID, "Не удалось изменить состояние бота.", nil)
		return
	}
	f.showBotCard(ctx, chatID, userID, botID)
}

func (f *MasterFacade) deleteBot(ctx context.Context, chatID, userID int64, botID string) {
	if err := f.bots.Delete(ctx, userID, botID); err != nil {
		f.send(ctx, chatID, "Не удалось удалить бота.", nil)
		return
	}
	f.send(ctx, chatID, "Бот удалён вместе с воронкой и подписчиками.", [][]adapter.InlineButton{{{Text: "⬅️ К списку", Data: "my_bots"}}})
}

func (f *MasterFacade) finishCreateBot(ctx context.Context, msg *tgbotapi.Message) {
	token := strings.TrimSpace(msg.Text)
	bot, err := f.bots.Create(ctx, msg.From.ID, token)
	switch {
	case err == nil:
		_ = f.wizards.Clear(ctx, masterWizardScope, msg.From.ID)
		f.send(ctx, msg.Chat.ID, fmt.Sprintf("Бот @%s создан и запущен. Откройте его и отправьте /help для настройки воронки и рассылок.", bot.BotUsername),
			[][]adapter.InlineButton{{{Text: "Открыть карточку", Data: "bot:" + bot.BotID}}})
	case errors.Is(err, domain.ErrAccessDenied), errors.Is(err, domain.ErrSubscriptionExpired):
		_ = f.wizards.Clear(ctx, masterWizardScope, msg.From.ID)
		f.send(ctx, msg.Chat.ID, "Для создания бота нужна активная подписка или пробный период.", [][]adapter.InlineButton{{{Text: "💳 Тарифы", Data: "pricing"}}})
	case errors.Is(err, domain.ErrInvalidArgument):
		f.send(ctx, msg.Chat.ID, "Токен не прошёл проверку. Пришлите токен из @BotFather ещё раз или /cancel.", nil)
	default:
		f.log.Error().Err(err).Msg("create bot failed")
		f.send(ctx, msg.Chat.ID, "Не удалось создать бота. Попробуйте позже.", nil)
	}
}

func (f *MasterFacade) finishConfigureAI(ctx context.Context, msg *tgbotapi.Message, state *redisinfra.WizardState) {
	var payload aiWizardPayload
	if err := json.Unmarshal(state.Payload, &payload); err != nil || payload.BotID == "" {
		_ = f.wizards.Clear(ctx, masterWizardScope, msg.From.ID)
		return
	}
	apiKey, assistantID := strings.TrimSpace(msg.Text), ""
	if parts := strings.SplitN(apiKey, "|", 2); len(parts) == 2 {
		apiKey, assistantID = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}

	bot, err := f.bots.ConfigureAI(ctx, msg.From.ID, payload.BotID, apiKey, assistantID)
	switch {
	case err == nil:
		_ = f.wizards.Clear(ctx, masterWizardScope, msg.From.ID)
		f.send(ctx, msg.Chat.ID, fmt.Sprintf("Ассистент подключён, провайдер: %s. Системный промпт задаётся командой /ai_prompt внутри бота.", bot.AIProvider),
			[][]adapter.InlineButton{{{Text: "Открыть карточку", Data: "bot:" + bot.BotID}}})
	case errors.Is(err, domain.ErrAIUnauthorized):
		f.send(ctx, msg.Chat.ID, "Ни один провайдер не принял этот ключ. Проверьте его и пришлите снова, или /cancel.", nil)
	default:
		f.log.Error().Err(err).Msg("configure ai failed")
		f.send(ctx, msg.Chat.ID, "Не удалось проверить ключ. Попробуйте позже.", nil)
	}
}

func (f *MasterFacade) echoFileID(ctx context.Context, msg *tgbotapi.Message) {
	_ = f.wizards.Clear(ctx, masterWizardScope, msg.From.ID)
	fileID, mediaType, ok := fileIDOf(msg)
	if !ok {
		f.send(ctx, msg.Chat.ID, "В сообщении нет медиа.", nil)
		return
	}
	f.send(ctx, msg.Chat.ID, fmt.Sprintf("%s\n<code>%s</code>", mediaType, fileID), nil)
}

func fileIDOf(msg *tgbotapi.Message) (string, model.MediaType, bool) {
	switch {
	case len(msg.Photo) > 0:
		return msg.Photo[len(msg.Photo)-1].FileID, model.MediaPhoto, true
	case msg.Video != nil:
		return msg.Video.FileID, model.MediaVideo, true
	case msg.Document != nil:
		return msg.Document.FileID, model.MediaDocument, true
	case msg.Audio != nil:
		return msg.Audio.FileID, model.MediaAudio, true
	case msg.Voice != nil:
		return msg.Voice.FileID, model.MediaVoice, true
	case msg.VideoNote != nil:
		return msg.VideoNote.FileID, model.MediaVideoNote, true
	case msg.Animation != nil:
		return msg.Animation.FileID, model.MediaAnimation, true
	case msg.Sticker != nil:
		return msg.Sticker.FileID, model.MediaSticker, true
	}
	return "", model.MediaNone, false
}

func (f *MasterFacade) showPricing(ctx context.Context, chatID int64) {
	text := `Тарифы:
— Подписка на 30 дней: доступ ко всем функциям платформы, любое число ботов. Продления суммируются.
— Пакет токенов для ИИ-ассистента: зачисляется на выбранного бота.

15% от каждого платежа приглашённых вами пользователей возвращается вам по партнёрской программе.`
	f.send(ctx, chatID, text, [][]adapter.InlineButton{
		{{Text: "Оплатить подписку", Data: "pay_sub"}},
		{{Text: "⬅️ Меню", Data: "menu"}},
	})
}

func (f *MasterFacade) sendInvoice(ctx context.Context, chatID, userID int64, kind adapter.PaymentKind, botID string) {
	url, err := f.payments.InvoiceURL(ctx, userID, kind, botID)
	if err != nil {
		f.log.Error().Err(err).Msg("invoice failed")
		f.send(ctx, chatID, "Не удалось сформировать счёт. Попробуйте позже.", nil)
		return
	}
	label := "Оплатить подписку"
	if kind == adapter.PaymentTokens {
		label = "Оплатить токены"
	}
	f.send(ctx, chatID, "Счёт сформирован. После оплаты доступ включится автоматически.",
		[][]adapter.InlineButton{
			{{Text: label, URL: url}},
			{{Text: "🔄 Проверить оплату", Data: "check_payment"}},
		})
}

// checkPayment reflects the webhook's verdict; crediting itself happens
// only on the Robokassa result callback.
func (f *MasterFacade) checkPayment(ctx context.Context, chatID, userID int64) {
	user, err := f.users.Get(ctx, userID)
	if err != nil {
		f.send(ctx, chatID, "Не удалось загрузить данные.", nil)
		return
	}
	if user.HasAccess(time.Now(), f.trialDays) {
		f.send(ctx, chatID, "Оплата получена, доступ активен.", f.mainMenu(user))
		return
	}
	f.send(ctx, chatID, "Оплата ещё не поступила. Зачисление обычно занимает до минуты, попробуйте ещё раз.",
		[][]adapter.InlineButton{{{Text: "🔄 Проверить оплату", Data: "check_payment"}}})
}

func (f *MasterFacade) showReferral(ctx context.Context, chatID, userID int64) {
	user, err := f.users.Get(ctx, userID)
	if err != nil {
		f.send(ctx, chatID, "Не удалось загрузить данные.", nil)
		return
	}
	link := f.users.ReferralLink(f.client.Username(), user)
	text := fmt.Sprintf(`Партнёрская программа: 15%% с каждого платежа приглашённых.

Ваша ссылка:
%s

Приглашено: %d
Начислено: %.2f ₽`, link, user.TotalReferrals, user.ReferralEarnings)
	f.send(ctx, chatID, text, [][]adapter.InlineButton{
		{{Text: "📋 История начислений", Data: "referral_history"}},
		{{Text: "⬅️ Меню", Data: "menu"}},
	})
}

func (f *MasterFacade) showReferralHistory(ctx context.Context, chatID, userID int64) {
	list, err := f.users.ReferralHistory(ctx, userID, 10)
	if err != nil {
		f.send(ctx, chatID, "Не удалось загрузить историю.", nil)
		return
	}
	if len(list) == 0 {
		f.send(ctx, chatID, "Начислений пока нет. Делитесь ссылкой: 15% с каждого платежа приглашённых ваши.",
			[][]adapter.InlineButton{{{Text: "⬅️ Меню", Data: "menu"}}})
		return
	}
	var sb strings.Builder
	sb.WriteString("Последние начисления:\n")
	for _, t := range list {
		kind := "подписка"
		if t.Type == model.ReferralTokens {
			kind = "токены"
		}
		fmt.Fprintf(&sb, "%s: +%.2f ₽ (%s)\n", t.CreatedAt.Format("02.01.2006"), t.CommissionAmount, kind)
	}
	f.send(ctx, chatID, sb.String(), [][]adapter.InlineButton{{{Text: "⬅️ Меню", Data: "menu"}}})
}

func (f *MasterFacade) sendStats(ctx context.Context, chatID int64) {
	st, err := f.stats.Platform(ctx)
	if err != nil {
		f.send(ctx, chatID, "Не удалось собрать статистику.", nil)
		return
	}
	f.send(ctx, chatID, fmt.Sprintf("Пользователи: %d\nНа пробном периоде: %d\nС подпиской: %d\nБотов: %d",
		st.Users, st.TrialUsers, st.PaidUsers, st.Bots),
		[][]adapter.InlineButton{
			{{Text: "📣 Рассылка всем", Data: "admin_broadcast"}},
			{{Text: "🕓 Прошлые рассылки", Data: "admin_history"}},
		})
}

// finishAdminBroadcast launches the mailing in the background: at the
// platform send rate a big audience takes minutes and must not hold an
// update worker.
func (f *MasterFacade) finishAdminBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	if !f.isAdmin(msg.From.ID) {
		_ = f.wizards.Clear(ctx, masterWizardScope, msg.From.ID)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		f.send(ctx, msg.Chat.ID, "Пришлите текст сообщения или /cancel.", nil)
		return
	}
	_ = f.wizards.Clear(ctx, masterWizardScope, msg.From.ID)
	f.send(ctx, msg.Chat.ID, "Рассылка запущена.", nil)

	chatID, adminID := msg.Chat.ID, msg.From.ID
	go func() {
		bg := context.Background()
		rec, err := f.admin.SendToAll(bg, adminID, text)
		if err != nil {
			f.log.Error().Err(err).Msg("admin broadcast failed")
			f.send(bg, chatID, "Рассылка прервана ошибкой.", nil)
			return
		}
		f.send(bg, chatID, fmt.Sprintf("Рассылка завершена: отправлено %d, ошибок %d.", rec.Sent, rec.Failed), nil)
	}()
}

func (f *MasterFacade) showAdminHistory(ctx context.Context, chatID int64) {
	list, err := f.admin.History(ctx, 5)
	if err != nil {
		f.send(ctx, chatID, "Не удалось загрузить историю рассылок.", nil)
		return
	}
	if len(list) == 0 {
		f.send(ctx, chatID, "Рассылок ещё не было.", nil)
		return
	}
	var sb strings.Builder
	sb.WriteString("Последние рассылки:\n")
	for _, b := range list {
		fmt.Fprintf(&sb, "%s: %d/%d доставлено, «%s»\n",
			b.CreatedAt.Format("02.01 15:04"), b.Sent, b.Total, shortText(b.MessageText))
	}
	f.send(ctx, chatID, sb.String(), nil)
}

func shortText(s string) string {
	r := []rune(s)
	if len(r) <= 40 {
		return s
	}
	return string(r[:40]) + "…"
}

func (f *MasterFacade) isAdmin(userID int64) bool {
	return f.adminChatID != 0 && userID == f.adminChatID
}

func (f *MasterFacade) send(ctx context.Context, chatID int64, text string, buttons [][]adapter.InlineButton) {
	if _, err := f.client.Send(ctx, adapter.SendRequest{ChatID: chatID, Text: text, Buttons: buttons}); err != nil {
		f.log.Debug().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}
