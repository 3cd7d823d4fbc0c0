package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	redisinfra "telegram-bot-hosting/internal/infra/redis"
)

const scheduleLayout = "02.01.2006 15:04"

// funnelDraft accumulates a funnel step across wizard turns.
type funnelDraft struct {
	Text        string                `json:"text"`
	DelayHours  float64               `json:"delay_hours"`
	MediaFileID string                `json:"media_file_id,omitempty"`
	MediaType   model.MediaType       `json:"media_type,omitempty"`
	Buttons     []model.MessageButton `json:"buttons,omitempty"`
}

// broadcastDraft accumulates a mass broadcast across wizard turns.
type broadcastDraft struct {
	Text        string          `json:"text"`
	MediaFileID string          `json:"media_file_id,omitempty"`
	MediaType   model.MediaType `json:"media_type,omitempty"`
	ButtonText  string          `json:"button_text,omitempty"`
	ButtonURL   string          `json:"button_url,omitempty"`
}

type welcomeDraft struct {
	Text string `json:"text"`
}

// editStepDraft pins the step being edited across wizard turns.
type editStepDraft struct {
	MessageID string `json:"message_id"`
}

func (r *Runtime) handleOwnerMessage(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		r.handleOwnerCommand(ctx, bot, msg)
		return
	}
	state, err := r.deps.Wizards.Get(ctx, bot.BotID, msg.From.ID)
	if err != nil {
		r.log.Error().Err(err).Msg("wizard state load failed")
		return
	}
	if state != nil {
		r.handleWizardInput(ctx, bot, msg, state)
		return
	}
	if bot.AIEnabled {
		r.aiTurn(ctx, bot, msg)
	}
}

func (r *Runtime) handleOwnerCommand(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.reply(ctx, chatID, ownerHelpText)
	case "cancel":
		_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
		r.reply(ctx, chatID, "Действие отменено.")
	case "funnel":
		r.showFunnel(ctx, bot, chatID)
	case "funnel_on":
		r.setFunnelEnabled(ctx, bot, chatID, true)
	case "funnel_off":
		r.setFunnelEnabled(ctx, bot, chatID, false)
	case "add_step":
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepFunnelText, nil)
		r.reply(ctx, chatID, "Пришлите текст нового сообщения воронки (HTML разрешён). /cancel — отмена.")
	case "del_step":
		r.deleteStep(ctx, bot, chatID, msg.CommandArguments())
	case "edit_step":
		r.editStep(ctx, bot, chatID, msg.From.ID, msg.CommandArguments())
	case "welcome":
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepWelcomeText, nil)
		r.reply(ctx, chatID, "Пришлите новый текст приветствия. /cancel — отмена.")
	case "confirmation":
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepConfirmationText, nil)
		r.reply(ctx, chatID, "Пришлите текст после подтверждения подписки. /cancel — отмена.")
	case "goodbye":
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepGoodbyeText, nil)
		r.reply(ctx, chatID, "Пришлите прощальный текст. /cancel — отмена.")
	case "broadcast":
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepBroadcastText, nil)
		r.reply(ctx, chatID, "Пришлите текст рассылки (HTML разрешён). /cancel — отмена.")
	case "broadcasts":
		r.showBroadcasts(ctx, bot, chatID)
	case "ai_prompt":
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepAISystemPrompt, nil)
		r.reply(ctx, chatID, "Пришлите системный промпт ассистента. /cancel — отмена.")
	case "subscribers":
		n, err := r.deps.Subs.CountActive(ctx, bot.BotID)
		if err != nil {
			r.reply(ctx, chatID, "Не удалось посчитать подписчиков.")
			return
		}
		r.reply(ctx, chatID, fmt.Sprintf("Активных подписчиков: %d", n))
	case "exit":
		_ = r.deps.Conversations.Reset(ctx, bot.BotID, msg.From.ID)
		r.reply(ctx, chatID, "Диалог с ассистентом сброшен.")
	default:
		r.reply(ctx, chatID, "Неизвестная команда. /help — список команд.")
	}
}

const ownerHelpText = `Панель управления ботом:
/funnel — шаги воронки
/add_step — добавить шаг
/edit_step N — изменить задержку шага N
/del_step N — удалить шаг N
/funnel_on, /funnel_off — включить/выключить воронку
/welcome — текст приветствия
/confirmation — текст после подтверждения
/goodbye — прощальный текст
/broadcast — новая рассылка
/broadcasts — история рассылок
/ai_prompt — системный промпт ассистента
/subscribers — число подписчиков
/exit — сбросить диалог с ассистентом
/cancel — отменить текущее действие`

func (r *Runtime) showFunnel(ctx context.Context, bot *model.UserBot, chatID int64) {
	seq, err := r.deps.Funnel.GetOrCreateSequence(ctx, bot.BotID)
	if err != nil {
		r.reply(ctx, chatID, "Не удалось загрузить воронку.")
		return
	}
	steps, err := r.deps.Funnel.ListSteps(ctx, bot.BotID)
	if err != nil {
		r.reply(ctx, chatID, "Не удалось загрузить воронку.")
		return
	}
	var sb strings.Builder
	if seq.IsEnabled {
		sb.WriteString("Воронка включена.\n")
	} else {
		sb.WriteString("Воронка выключена.\n")
	}
	if len(steps) == 0 {
		sb.WriteString("Шагов пока нет. /add_step — добавить первый.")
	}
	for _, s := range steps {
		sb.WriteString(fmt.Sprintf("\n#%d через %.1f ч: %s", s.MessageNumber, s.DelayHours(), excerpt(s.MessageText, 60)))
	}
	r.reply(ctx, chatID, sb.String())
}

func (r *Runtime) setFunnelEnabled(ctx context.Context, bot *model.UserBot, chatID int64, on bool) {
	if err := r.deps.Funnel.SetEnabled(ctx, bot.BotID, on); err != nil {
		r.reply(ctx, chatID, "Не удалось изменить состояние воронки.")
		return
	}
	if on {
		r.reply(ctx, chatID, "Воронка включена.")
	} else {
		r.reply(ctx, chatID, "Воронка выключена.")
	}
}

func (r *Runtime) deleteStep(ctx context.Context, bot *model.UserBot, chatID int64, arg string) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		r.reply(ctx, chatID, "Укажите номер шага: /del_step 2")
		return
	}
	steps, err := r.deps.Funnel.ListSteps(ctx, bot.BotID)
	if err != nil {
		r.reply(ctx, chatID, "Не удалось загрузить воронку.")
		return
	}
	for _, s := range steps {
		if s.MessageNumber == n {
			if err := r.deps.Funnel.DeleteStep(ctx, bot.BotID, s.MessageID); err != nil {
				r.reply(ctx, chatID, "Не удалось удалить шаг.")
				return
			}
			r.reply(ctx, chatID, fmt.Sprintf("Шаг #%d удалён, неотправленные доставки отменены.", n))
			return
		}
	}
	r.reply(ctx, chatID, fmt.Sprintf("Шаг #%d не найден.", n))
}

func (r *Runtime) editStep(ctx context.Context, bot *model.UserBot, chatID, userID int64, arg string) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		r.reply(ctx, chatID, "Укажите номер шага: /edit_step 2")
		return
	}
	steps, err := r.deps.Funnel.ListSteps(ctx, bot.BotID)
	if err != nil {
		r.reply(ctx, chatID, "Не удалось загрузить воронку.")
		return
	}
	for _, s := range steps {
		if s.MessageNumber == n {
			r.startWizard(ctx, bot, userID, redisinfra.StepEditStepDelay, editStepDraft{MessageID: s.MessageID})
			r.reply(ctx, chatID, fmt.Sprintf("Шаг #%d сейчас уходит через %.1f ч. Пришлите новую задержку в часах. /cancel — отмена.", n, s.DelayHours()))
			return
		}
	}
	r.reply(ctx, chatID, fmt.Sprintf("Шаг #%d не найден.", n))
}

func (r *Runtime) editStepWizard(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message, state *redisinfra.WizardState) {
	chatID := msg.Chat.ID
	var draft editStepDraft
	if err := json.Unmarshal(state.Payload, &draft); err != nil || draft.MessageID == "" {
		_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
		return
	}
	hours, err := parseDelayHours(msg.Text)
	if err != nil {
		r.reply(ctx, chatID, "Введите число часов от 0 до 8760.")
		return
	}
	steps, err := r.deps.Funnel.ListSteps(ctx, bot.BotID)
	if err != nil {
		r.reply(ctx, chatID, "Не удалось загрузить воронку.")
		return
	}
	var step *model.BroadcastMessage
	for _, s := range steps {
		if s.MessageID == draft.MessageID {
			step = s
			break
		}
	}
	if step == nil {
		_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
		r.reply(ctx, chatID, "Этот шаг уже удалён.")
		return
	}
	if err := step.SetDelayHours(hours); err != nil {
		r.reply(ctx, chatID, "Недопустимая задержка.")
		return
	}
	if err := r.deps.Funnel.UpdateStep(ctx, bot.BotID, step); err != nil {
		r.log.Error().Err(err).Msg("update funnel step failed")
		r.reply(ctx, chatID, "Не удалось сохранить шаг.")
		return
	}
	_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
	r.reply(ctx, chatID, fmt.Sprintf("Шаг #%d обновлён: отправка через %.1f ч. Неотправленные доставки передвинуты.", step.MessageNumber, step.DelayHours()))
}

func (r *Runtime) showBroadcasts(ctx context.Context, bot *model.UserBot, chatID int64) {
	list, err := r.deps.Broadcasts.List(ctx, bot.BotID, 10)
	if err != nil {
		r.reply(ctx, chatID, "Не удалось загрузить рассылки.")
		return
	}
	if len(list) == 0 {
		r.reply(ctx, chatID, "Рассылок пока не было. /broadcast — создать.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Последние рассылки:\n")
	for _, b := range list {
		line := fmt.Sprintf("\n%s — %s", b.CreatedAt.Format("02.01 15:04"), b.Status)
		if b.Status == model.BroadcastCompleted || b.Status == model.BroadcastSending {
			if st, err := r.deps.Broadcasts.Stats(ctx, b.ID); err == nil {
				line += fmt.Sprintf(" (отправлено %d, заблокировано %d, ошибок %d)", st.Sent, st.Blocked, st.Failed)
			}
		}
		sb.WriteString(line)
	}
	r.reply(ctx, chatID, sb.String())
}

func (r *Runtime) startWizard(ctx context.Context, bot *model.UserBot, userID int64, step redisinfra.WizardStep, payload interface{}) {
	state := &redisinfra.WizardState{Step: step}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			r.log.Error().Err(err).Msg("wizard payload marshal failed")
			return
		}
		state.Payload = raw
	}
	if err := r.deps.Wizards.Set(ctx, bot.BotID, userID, state); err != nil {
		r.log.Error().Err(err).Msg("wizard state save failed")
	}
}

func (r *Runtime) handleWizardInput(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message, state *redisinfra.WizardState) {
	switch state.Step {
	case redisinfra.StepFunnelText, redisinfra.StepFunnelDelay, redisinfra.StepFunnelMedia, redisinfra.StepFunnelButtons:
		r.funnelWizard(ctx, bot, msg, state)
	case redisinfra.StepBroadcastText, redisinfra.StepBroadcastMedia, redisinfra.StepBroadcastButton, redisinfra.StepBroadcastSchedule:
		r.broadcastWizard(ctx, bot, msg, state)
	case redisinfra.StepEditStepDelay:
		r.editStepWizard(ctx, bot, msg, state)
	case redisinfra.StepWelcomeText, redisinfra.StepWelcomeButton:
		r.welcomeWizard(ctx, bot, msg, state)
	case redisinfra.StepConfirmationText:
		r.saveBotText(ctx, bot, msg, func(b *model.UserBot, text string) { b.ConfirmationMessage = text },
			"Текст подтверждения сохранён.")
	case redisinfra.StepGoodbyeText:
		r.saveBotText(ctx, bot, msg, func(b *model.UserBot, text string) { b.GoodbyeMessage = text },
			"Прощальный текст сохранён.")
	case redisinfra.StepAISystemPrompt:
		r.saveBotText(ctx, bot, msg, func(b *model.UserBot, text string) { b.AISystemPrompt = text },
			"Системный промпт сохранён.")
	default:
		_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
	}
}

func (r *Runtime) funnelWizard(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message, state *redisinfra.WizardState) {
	chatID := msg.Chat.ID
	var draft funnelDraft
	if len(state.Payload) > 0 {
		if err := json.Unmarshal(state.Payload, &draft); err != nil {
			_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
			return
		}
	}

	switch state.Step {
	case redisinfra.StepFunnelText:
		if msg.Text == "" {
			r.reply(ctx, chatID, "Нужен текст сообщения.")
			return
		}
		draft.Text = msg.Text
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepFunnelDelay, draft)
		r.reply(ctx, chatID, "Через сколько часов после подписки отправлять? Например: 1.5")
	case redisinfra.StepFunnelDelay:
		hours, err := parseDelayHours(msg.Text)
		if err != nil {
			r.reply(ctx, chatID, "Введите число часов от 0 до 8760.")
			return
		}
		draft.DelayHours = hours
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepFunnelMedia, draft)
		r.reply(ctx, chatID, "Пришлите медиа для шага (фото, видео, документ...) или «-», чтобы пропустить.")
	case redisinfra.StepFunnelMedia:
		if strings.TrimSpace(msg.Text) != "-" {
			fileID, mt, ok := mediaFromMessage(msg)
			if !ok {
				r.reply(ctx, chatID, "Не вижу медиа. Пришлите файл или «-».")
				return
			}
			draft.MediaFileID = fileID
			draft.MediaType = mt
		}
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepFunnelButtons, draft)
		r.reply(ctx, chatID, "Кнопки: по одной на строку в формате «Текст | https://ссылка», либо «-».")
	case redisinfra.StepFunnelButtons:
		if strings.TrimSpace(msg.Text) != "-" {
			buttons, err := parseButtons(msg.Text)
			if err != nil {
				r.reply(ctx, chatID, "Неверный формат. Пример: Подробнее | https://example.com")
				return
			}
			draft.Buttons = buttons
		}
		r.finishFunnelStep(ctx, bot, msg, &draft)
	}
}

func (r *Runtime) finishFunnelStep(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message, draft *funnelDraft) {
	step := &model.BroadcastMessage{
		MessageText: draft.Text,
		MediaFileID: draft.MediaFileID,
		MediaType:   draft.MediaType,
		Buttons:     draft.Buttons,
	}
	if step.MediaType == "" {
		step.MediaType = model.MediaNone
	}
	if err := step.SetDelayHours(draft.DelayHours); err != nil {
		r.reply(ctx, msg.Chat.ID, "Недопустимая задержка.")
		return
	}
	created, err := r.deps.Funnel.CreateStep(ctx, bot.BotID, step)
	if err != nil {
		r.log.Error().Err(err).Msg("create funnel step failed")
		r.reply(ctx, msg.Chat.ID, "Не удалось сохранить шаг.")
		return
	}
	_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
	r.reply(ctx, msg.Chat.ID, fmt.Sprintf("Шаг #%d сохранён: отправка через %.1f ч после подписки.", created.MessageNumber, created.DelayHours()))
}

func (r *Runtime) broadcastWizard(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message, state *redisinfra.WizardState) {
	chatID := msg.Chat.ID
	var draft broadcastDraft
	if len(state.Payload) > 0 {
		if err := json.Unmarshal(state.Payload, &draft); err != nil {
			_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
			return
		}
	}

	switch state.Step {
	case redisinfra.StepBroadcastText:
		if msg.Text == "" {
			r.reply(ctx, chatID, "Нужен текст рассылки.")
			return
		}
		if len(msg.Text) > model.MaxMessageLength {
			r.reply(ctx, chatID, "Текст длиннее 4096 символов.")
			return
		}
		draft.Text = msg.Text
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepBroadcastMedia, draft)
		r.reply(ctx, chatID, "Пришлите медиа или «-», чтобы пропустить.")
	case redisinfra.StepBroadcastMedia:
		if strings.TrimSpace(msg.Text) != "-" {
			fileID, mt, ok := mediaFromMessage(msg)
			if !ok {
				r.reply(ctx, chatID, "Не вижу медиа. Пришлите файл или «-».")
				return
			}
			draft.MediaFileID = fileID
			draft.MediaType = mt
		}
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepBroadcastButton, draft)
		r.reply(ctx, chatID, "Кнопка в формате «Текст | https://ссылка», либо «-».")
	case redisinfra.StepBroadcastButton:
		if strings.TrimSpace(msg.Text) != "-" {
			buttons, err := parseButtons(msg.Text)
			if err != nil || len(buttons) != 1 {
				r.reply(ctx, chatID, "Нужна одна кнопка: Текст | https://ссылка")
				return
			}
			draft.ButtonText = buttons[0].ButtonText
			draft.ButtonURL = buttons[0].ButtonURL
		}
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepBroadcastSchedule, draft)
		r.reply(ctx, chatID, "Когда отправить? «now» — сразу, либо дата в формате 31.12.2026 15:00 (минимум через 5 минут).")
	case redisinfra.StepBroadcastSchedule:
		r.finishBroadcast(ctx, bot, msg, &draft)
	}
}

func (r *Runtime) finishBroadcast(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message, draft *broadcastDraft) {
	chatID := msg.Chat.ID
	when := strings.TrimSpace(strings.ToLower(msg.Text))

	b, err := model.NewDraftBroadcast(bot.BotID, msg.From.ID, "", draft.Text)
	if err != nil {
		r.reply(ctx, chatID, "Не удалось создать рассылку.")
		return
	}
	b.MediaFileID = draft.MediaFileID
	if draft.MediaType != "" {
		b.MediaType = draft.MediaType
	}
	b.ButtonText = draft.ButtonText
	b.ButtonURL = draft.ButtonURL

	if err := r.deps.Broadcasts.CreateDraft(ctx, b); err != nil {
		r.log.Error().Err(err).Msg("create broadcast failed")
		r.reply(ctx, chatID, "Не удалось создать рассылку.")
		return
	}

	if when == "now" {
		n, err := r.deps.Broadcasts.SendNow(ctx, b.ID)
		if err != nil {
			r.reply(ctx, chatID, "Не удалось запустить рассылку.")
			return
		}
		_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
		r.reply(ctx, chatID, fmt.Sprintf("Рассылка запущена: %d получателей.", n))
		return
	}

	at, err := time.ParseInLocation(scheduleLayout, strings.TrimSpace(msg.Text), time.Local)
	if err != nil {
		r.reply(ctx, chatID, "Не понял дату. Формат: 31.12.2026 15:00, либо «now».")
		return
	}
	if err := r.deps.Broadcasts.Schedule(ctx, b.ID, at); err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			r.reply(ctx, chatID, "Время должно быть минимум через 5 минут.")
		} else {
			r.reply(ctx, chatID, "Не удалось запланировать рассылку.")
		}
		return
	}
	_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
	r.reply(ctx, chatID, fmt.Sprintf("Рассылка запланирована на %s.", at.Format(scheduleLayout)))
}

func (r *Runtime) welcomeWizard(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message, state *redisinfra.WizardState) {
	chatID := msg.Chat.ID
	switch state.Step {
	case redisinfra.StepWelcomeText:
		if msg.Text == "" {
			r.reply(ctx, chatID, "Нужен текст приветствия.")
			return
		}
		r.startWizard(ctx, bot, msg.From.ID, redisinfra.StepWelcomeButton, welcomeDraft{Text: msg.Text})
		r.reply(ctx, chatID, "Текст кнопки подтверждения, либо «-» без кнопки.")
	case redisinfra.StepWelcomeButton:
		var draft welcomeDraft
		if err := json.Unmarshal(state.Payload, &draft); err != nil {
			_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
			return
		}
		fresh, err := r.deps.Bots.Get(ctx, bot.BotID)
		if err != nil {
			r.reply(ctx, chatID, "Не удалось сохранить приветствие.")
			return
		}
		fresh.WelcomeMessage = draft.Text
		if strings.TrimSpace(msg.Text) == "-" {
			fresh.WelcomeButtonText = ""
		} else {
			fresh.WelcomeButtonText = strings.TrimSpace(msg.Text)
		}
		if err := r.deps.Bots.Update(ctx, fresh); err != nil {
			r.reply(ctx, chatID, "Не удалось сохранить приветствие.")
			return
		}
		r.UpdateConfig(fresh)
		_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
		r.reply(ctx, chatID, "Приветствие обновлено.")
	}
}

// saveBotText finishes the single-step text wizards.
func (r *Runtime) saveBotText(ctx context.Context, bot *model.UserBot, msg *tgbotapi.Message, apply func(*model.UserBot, string), done string) {
	if msg.Text == "" {
		r.reply(ctx, msg.Chat.ID, "Нужен текст.")
		return
	}
	fresh, err := r.deps.Bots.Get(ctx, bot.BotID)
	if err != nil {
		r.reply(ctx, msg.Chat.ID, "Не удалось сохранить.")
		return
	}
	apply(fresh, msg.Text)
	if err := r.deps.Bots.Update(ctx, fresh); err != nil {
		r.reply(ctx, msg.Chat.ID, "Не удалось сохранить.")
		return
	}
	r.UpdateConfig(fresh)
	_ = r.deps.Wizards.Clear(ctx, bot.BotID, msg.From.ID)
	r.reply(ctx, msg.Chat.ID, done)
}

// mediaFromMessage extracts the strongest media attachment of a message.
func mediaFromMessage(msg *tgbotapi.Message) (string, model.MediaType, bool) {
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

// parseDelayHours reads the wizard delay input, accepting the comma
// decimal separator.
func parseDelayHours(input string) (float64, error) {
	hours, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(input), ",", "."), 64)
	if err != nil || hours < 0 || hours > model.MaxDelayHours {
		return 0, domain.ErrInvalidArgument
	}
	return hours, nil
}

// parseButtons reads "Text | URL" lines.
func parseButtons(input string) ([]model.MessageButton, error) {
	var out []model.MessageButton
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			return nil, domain.ErrInvalidArgument
		}
		text := strings.TrimSpace(parts[0])
		url := strings.TrimSpace(parts[1])
		if text == "" || !strings.HasPrefix(url, "http") {
			return nil, domain.ErrInvalidArgument
		}
		out = append(out, model.MessageButton{Position: len(out), ButtonText: text, ButtonURL: url})
	}
	if len(out) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return out, nil
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
