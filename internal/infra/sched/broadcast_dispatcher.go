package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/metrics"
	"telegram-bot-hosting/internal/usecase"
)

// BroadcastDispatcher promotes due scheduled broadcasts and drains their
// delivery queues under a global rate cap.
type BroadcastDispatcher struct {
	broadcasts repository.BroadcastRepository
	uc         usecase.BroadcastUseCase
	senders    SenderResolver

	interval time.Duration
	batch    int
	limiter  *rate.Limiter
	log      *zerolog.Logger
}

func NewBroadcastDispatcher(
	broadcasts repository.BroadcastRepository,
	uc usecase.BroadcastUseCase,
	senders SenderResolver,
	interval time.Duration,
	batch int,
	messagesPerSecond float64,
	logger *zerolog.Logger,
) *BroadcastDispatcher {
	compLog := logger.With().Str("component", "BroadcastDispatcher").Logger()
	return &BroadcastDispatcher{
		broadcasts: broadcasts,
		uc:         uc,
		senders:    senders,
		interval:   interval,
		batch:      batch,
		limiter:    rate.NewLimiter(rate.Limit(messagesPerSecond), 1),
		log:        &compLog,
	}
}

func (d *BroadcastDispatcher) Run(ctx context.Context) error {
	d.log.Info().Dur("interval", d.interval).Int("batch", d.batch).Msg("starting broadcast dispatcher")
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("stopping broadcast dispatcher")
			return ctx.Err()
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *BroadcastDispatcher) tick(ctx context.Context) {
	if n, err := d.uc.PromoteDue(ctx, time.Now()); err != nil {
		d.log.Error().Err(err).Msg("promote failed")
	} else if n > 0 {
		d.log.Info().Int("promoted", n).Msg("scheduled broadcasts started")
	}

	rows, err := d.broadcasts.ClaimDueDeliveries(ctx, repository.NoTX, d.batch)
	if err != nil {
		d.log.Error().Err(err).Msg("claim failed")
		return
	}
	metrics.ObserveBatch("broadcast", len(rows))
	if len(rows) == 0 {
		return
	}

	// The batch usually belongs to few broadcasts; fetch each once.
	cache := map[string]*model.MassBroadcast{}
	touched := map[string]struct{}{}
	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		b, ok := cache[row.BroadcastID]
		if !ok {
			b, err = d.uc.Get(ctx, row.BroadcastID)
			if err != nil {
				d.log.Error().Err(err).Str("broadcast_id", row.BroadcastID).Msg("load broadcast failed")
				continue
			}
			cache[row.BroadcastID] = b
		}
		touched[row.BroadcastID] = struct{}{}
		d.deliver(ctx, b, row)
	}

	for id := range touched {
		if _, err := d.uc.FinishIfDone(ctx, id); err != nil {
			d.log.Error().Err(err).Str("broadcast_id", id).Msg("finish check failed")
		}
	}
}

func (d *BroadcastDispatcher) deliver(ctx context.Context, b *model.MassBroadcast, row *model.BroadcastDelivery) {
	sender, ok := d.senders.SenderFor(b.BotID)
	if !ok {
		d.mark(ctx, row, model.DeliveryFailed, nil, model.FailReasonBotUnavailable)
		return
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	res, err := d.send(ctx, sender, b, row)
	if fw, isFlood := adapter.AsFloodWait(err); isFlood {
		d.log.Warn().Dur("retry_after", fw.RetryAfter).Str("bot_id", b.BotID).Msg("flood wait")
		select {
		case <-time.After(fw.RetryAfter):
		case <-ctx.Done():
			return
		}
		res, err = d.send(ctx, sender, b, row)
	}

	switch {
	case err == nil:
		d.mark(ctx, row, model.DeliverySent, &res.MessageID, "")
	case errors.Is(err, adapter.ErrRecipientBlocked):
		d.mark(ctx, row, model.DeliveryBlocked, nil, model.FailReasonBlocked)
	default:
		d.mark(ctx, row, model.DeliveryFailed, nil, err.Error())
	}
}

// send delivers one broadcast. Media without caption support goes out as
// two messages: text first, then the media carrying the button.
func (d *BroadcastDispatcher) send(ctx context.Context, sender adapter.Sender, b *model.MassBroadcast, row *model.BroadcastDelivery) (adapter.SendResult, error) {
	var buttons [][]adapter.InlineButton
	if b.ButtonText != "" && b.ButtonURL != "" {
		buttons = [][]adapter.InlineButton{{{Text: b.ButtonText, URL: b.ButtonURL}}}
	}

	if b.MediaFileID != "" && !b.MediaType.SupportsCaption() && b.MessageText != "" {
		if _, err := sender.Send(ctx, adapter.SendRequest{ChatID: row.UserID, Text: b.MessageText}); err != nil {
			return adapter.SendResult{}, err
		}
		return sender.Send(ctx, adapter.SendRequest{
			ChatID:      row.UserID,
			MediaFileID: b.MediaFileID,
			MediaType:   b.MediaType,
			Buttons:     buttons,
		})
	}

	return sender.Send(ctx, adapter.SendRequest{
		ChatID:      row.UserID,
		Text:        b.MessageText,
		MediaFileID: b.MediaFileID,
		MediaType:   b.MediaType,
		Buttons:     buttons,
	})
}

func (d *BroadcastDispatcher) mark(ctx context.Context, row *model.BroadcastDelivery, status model.DeliveryStatus, msgID *int, errMsg string) {
	if err := d.broadcasts.MarkDelivery(ctx, repository.NoTX, row.ID, status, msgID, errMsg); err != nil {
		d.log.Error().Err(err).Str("id", row.ID).Msg("mark delivery failed")
		return
	}
	metrics.IncDelivery("broadcast", string(status))
}
