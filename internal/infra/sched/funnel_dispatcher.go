package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/metrics"
)

// FunnelDispatcher delivers due funnel rows. Each tick claims a batch with
// the claim-token query, so several replicas can run side by side.
type FunnelDispatcher struct {
	scheduled repository.ScheduledMessageRepository
	funnel    repository.FunnelRepository
	subs      repository.SubscriberRepository
	senders   SenderResolver

	interval time.Duration
	batch    int
	sendGap  time.Duration
	log      *zerolog.Logger

	mu       sync.Mutex
	lastSend map[string]time.Time
}

func NewFunnelDispatcher(
	scheduled repository.ScheduledMessageRepository,
	funnel repository.FunnelRepository,
	subs repository.SubscriberRepository,
	senders SenderResolver,
	interval time.Duration,
	batch int,
	sendGap time.Duration,
	logger *zerolog.Logger,
) *FunnelDispatcher {
	compLog := logger.With().Str("component", "FunnelDispatcher").Logger()
	return &FunnelDispatcher{
		scheduled: scheduled,
		funnel:    funnel,
		subs:      subs,
		senders:   senders,
		interval:  interval,
		batch:     batch,
		sendGap:   sendGap,
		log:       &compLog,
		lastSend:  map[string]time.Time{},
	}
}

func (d *FunnelDispatcher) Run(ctx context.Context) error {
	d.log.Info().Dur("interval", d.interval).Int("batch", d.batch).Msg("starting funnel dispatcher")
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("stopping funnel dispatcher")
			return ctx.Err()
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *FunnelDispatcher) tick(ctx context.Context) {
	rows, err := d.scheduled.ClaimDue(ctx, repository.NoTX, time.Now(), d.batch)
	if err != nil {
		d.log.Error().Err(err).Msg("claim failed")
		return
	}
	metrics.ObserveBatch("funnel", len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		d.deliver(ctx, row)
	}
}

func (d *FunnelDispatcher) deliver(ctx context.Context, row *model.ScheduledMessage) {
	sender, ok := d.senders.SenderFor(row.BotID)
	if !ok {
		// Bot stopped between materialisation and delivery.
		d.fail(ctx, row, model.FailReasonBotUnavailable)
		return
	}

	// The enabled flag is re-read at dispatch time: claim filtering races
	// with funnel_off. A disabled sequence leaves the row pending so that
	// re-enabling resumes exactly where it stopped.
	seq, err := d.funnel.FindSequenceByBot(ctx, repository.NoTX, row.BotID)
	if err == nil && !seq.IsEnabled {
		d.release(ctx, row)
		return
	}

	// Inactive subscribers are still attempted: a block surfaces as a
	// Forbidden response and lands in the blocked bucket.
	sub, err := d.subs.Find(ctx, repository.NoTX, row.BotID, row.SubscriberID)
	if err != nil || !sub.FunnelEnabled {
		d.fail(ctx, row, "inactive")
		return
	}

	msg, err := d.funnel.FindMessage(ctx, repository.NoTX, row.MessageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			d.fail(ctx, row, "message deleted")
			return
		}
		d.log.Error().Err(err).Str("id", row.ID).Msg("load step failed")
		return
	}

	d.waitSendGap(ctx, row.BotID)
	err = d.send(ctx, sender, sub, msg)
	if fw, isFlood := adapter.AsFloodWait(err); isFlood {
		d.log.Warn().Dur("retry_after", fw.RetryAfter).Str("bot_id", row.BotID).Msg("flood wait")
		select {
		case <-time.After(fw.RetryAfter):
		case <-ctx.Done():
			return
		}
		err = d.send(ctx, sender, sub, msg)
	}

	switch {
	case err == nil:
		if err := d.scheduled.MarkSent(ctx, repository.NoTX, row.ID); err != nil {
			d.log.Error().Err(err).Str("id", row.ID).Msg("mark sent failed")
			return
		}
		metrics.IncDelivery("funnel", "sent")
		_ = d.subs.SetLastBroadcastMessage(ctx, repository.NoTX, row.BotID, row.SubscriberID, msg.MessageNumber)
	case errors.Is(err, adapter.ErrRecipientBlocked):
		d.fail(ctx, row, model.FailReasonBlocked)
		_ = d.subs.SetActive(ctx, repository.NoTX, row.BotID, row.SubscriberID, false)
	default:
		// Any other send exception is terminal for the row; retrying a
		// malformed message every tick would never converge.
		d.log.Warn().Err(err).Str("id", row.ID).Msg("send failed")
		d.fail(ctx, row, err.Error())
	}
}

// release puts a claimed row back to plain pending.
func (d *FunnelDispatcher) release(ctx context.Context, row *model.ScheduledMessage) {
	if err := d.scheduled.ReleaseClaim(ctx, repository.NoTX, row.ID); err != nil {
		d.log.Error().Err(err).Str("id", row.ID).Msg("release failed")
	}
}

// send delivers one funnel step. Media without caption support goes out as
// two messages: text first, media after.
func (d *FunnelDispatcher) send(ctx context.Context, sender adapter.Sender, sub *model.Subscriber, msg *model.BroadcastMessage) error {
	text := sub.RenderSubstitutions(msg.MessageText)
	buttons := stepButtons(msg)

	if msg.MediaFileID != "" && !msg.MediaType.SupportsCaption() && text != "" {
		if _, err := sender.Send(ctx, adapter.SendRequest{ChatID: sub.ChatID, Text: text}); err != nil {
			return err
		}
		_, err := sender.Send(ctx, adapter.SendRequest{
			ChatID:      sub.ChatID,
			MediaFileID: msg.MediaFileID,
			MediaType:   msg.MediaType,
			Buttons:     buttons,
		})
		return err
	}

	_, err := sender.Send(ctx, adapter.SendRequest{
		ChatID:      sub.ChatID,
		Text:        text,
		MediaFileID: msg.MediaFileID,
		MediaType:   msg.MediaType,
		Buttons:     buttons,
	})
	return err
}

func stepButtons(msg *model.BroadcastMessage) [][]adapter.InlineButton {
	if len(msg.Buttons) == 0 {
		return nil
	}
	rows := make([][]adapter.InlineButton, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		rows = append(rows, []adapter.InlineButton{{Text: b.ButtonText, URL: b.ButtonURL}})
	}
	return rows
}

func (d *FunnelDispatcher) fail(ctx context.Context, row *model.ScheduledMessage, reason string) {
	if err := d.scheduled.MarkFailed(ctx, repository.NoTX, row.ID, reason); err != nil {
		d.log.Error().Err(err).Str("id", row.ID).Msg("mark failed failed")
		return
	}
	metrics.IncDelivery("funnel", "failed")
}

// waitSendGap spaces consecutive sends of one bot.
func (d *FunnelDispatcher) waitSendGap(ctx context.Context, botID string) {
	d.mu.Lock()
	last := d.lastSend[botID]
	now := time.Now()
	wait := d.sendGap - now.Sub(last)
	if wait < 0 {
		wait = 0
	}
	d.lastSend[botID] = now.Add(wait)
	d.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
}
