package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/logging"
)

var _ FunnelUseCase = (*funnelUC)(nil)

// FunnelUseCase manages per-bot delayed message sequences and materialises
// them into scheduled deliveries when a subscriber enters the funnel.
type FunnelUseCase interface {
	GetOrCreateSequence(ctx context.Context, botID string) (*model.BroadcastSequence, error)
	SetEnabled(ctx context.Context, botID string, enabled bool) error
	ListSteps(ctx context.Context, botID string) ([]*model.BroadcastMessage, error)

	// CreateStep validates and inserts a step. A taken message number slides
	// to the next free one; existing steps never shift.
	CreateStep(ctx context.Context, botID string, step *model.BroadcastMessage) (*model.BroadcastMessage, error)
	// UpdateStep saves edits. A delay change re-anchors pending deliveries
	// relative to each subscriber's activation time.
	UpdateStep(ctx context.Context, botID string, step *model.BroadcastMessage) error
	// DeleteStep removes the step and cancels its pending deliveries.
	DeleteStep(ctx context.Context, botID, messageID string) error

	// Enter materialises the whole sequence for one subscriber. Re-entry is
	// a no-op thanks to the (bot, subscriber, message) uniqueness.
	Enter(ctx context.Context, botID string, subscriberID int64, now time.Time) (int, error)
}

type funnelUC struct {
	funnel    repository.FunnelRepository
	scheduled repository.ScheduledMessageRepository
	subs      repository.SubscriberRepository
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

func NewFunnelUseCase(funnel repository.FunnelRepository, scheduled repository.ScheduledMessageRepository, subs repository.SubscriberRepository, tm repository.TransactionManager, logger *zerolog.Logger) *funnelUC {
	return &funnelUC{funnel: funnel, scheduled: scheduled, subs: subs, tm: tm, log: logger}
}

func (f *funnelUC) GetOrCreateSequence(ctx context.Context, botID string) (*model.BroadcastSequence, error) {
	seq, err := f.funnel.FindSequenceByBot(ctx, repository.NoTX, botID)
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	seq = &model.BroadcastSequence{
		SequenceID: uuid.NewString(),
		BotID:      botID,
		IsEnabled:  true,
		CreatedAt:  time.Now(),
	}
	if err := f.funnel.SaveSequence(ctx, repository.NoTX, seq); err != nil {
		return nil, err
	}
	return seq, nil
}

func (f *funnelUC) SetEnabled(ctx context.Context, botID string, enabled bool) error {
	seq, err := f.GetOrCreateSequence(ctx, botID)
	if err != nil {
		return err
	}
	return f.funnel.SetSequenceEnabled(ctx, repository.NoTX, seq.SequenceID, enabled)
}

func (f *funnelUC) ListSteps(ctx context.Context, botID string) ([]*model.BroadcastMessage, error) {
	seq, err := f.GetOrCreateSequence(ctx, botID)
	if err != nil {
		return nil, err
	}
	return f.funnel.ListMessages(ctx, repository.NoTX, seq.SequenceID)
}

func (f *funnelUC) CreateStep(ctx context.Context, botID string, step *model.BroadcastMessage) (*model.BroadcastMessage, error) {
	defer logging.TraceDuration(f.log, "FunnelUC.CreateStep")()

	if err := step.Validate(); err != nil {
		return nil, err
	}
	seq, err := f.GetOrCreateSequence(ctx, botID)
	if err != nil {
		return nil, err
	}

	err = f.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		num, err := f.funnel.NextFreeNumber(ctx, tx, seq.SequenceID, step.MessageNumber)
		if err != nil {
			return err
		}
		step.MessageID = uuid.NewString()
		step.SequenceID = seq.SequenceID
		step.MessageNumber = num
		step.IsActive = true
		step.CreatedAt = time.Now()
		return f.funnel.SaveMessage(ctx, tx, step)
	})
	if err != nil {
		return nil, err
	}
	f.log.Info().Str("bot_id", botID).Int("number", step.MessageNumber).Msg("funnel step created")
	return step, nil
}

func (f *funnelUC) UpdateStep(ctx context.Context, botID string, step *model.BroadcastMessage) error {
	defer logging.TraceDuration(f.log, "FunnelUC.UpdateStep")()

	if err := step.Validate(); err != nil {
		return err
	}
	return f.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		old, err := f.funnel.FindMessage(ctx, tx, step.MessageID)
		if err != nil {
			return err
		}
		if err := f.funnel.SaveMessage(ctx, tx, step); err != nil {
			return err
		}
		if old.DelaySeconds != step.DelaySeconds {
			n, err := f.scheduled.RescheduleByMessage(ctx, tx, step.MessageID, old.DelaySeconds, step.DelaySeconds)
			if err != nil {
				return err
			}
			f.log.Info().Str("message_id", step.MessageID).Int("rescheduled", n).Msg("pending deliveries re-anchored")
		}
		return nil
	})
}

func (f *funnelUC) DeleteStep(ctx context.Context, botID, messageID string) error {
	defer logging.TraceDuration(f.log, "FunnelUC.DeleteStep")()

	return f.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		n, err := f.scheduled.CancelByMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if n > 0 {
			f.log.Info().Str("message_id", messageID).Int("cancelled", n).Msg("pending deliveries cancelled")
		}
		return f.funnel.DeleteMessage(ctx, tx, messageID)
	})
}

func (f *funnelUC) Enter(ctx context.Context, botID string, subscriberID int64, now time.Time) (int, error) {
	defer logging.TraceDuration(f.log, "FunnelUC.Enter")()

	seq, err := f.funnel.FindSequenceByBot(ctx, repository.NoTX, botID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !seq.IsEnabled {
		return 0, nil
	}
	steps, err := f.funnel.ListMessages(ctx, repository.NoTX, seq.SequenceID)
	if err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		return 0, nil
	}

	rows := make([]*model.ScheduledMessage, 0, len(steps))
	for _, step := range steps {
		rows = append(rows, model.NewScheduledMessage(botID, subscriberID, step.MessageID, now.Add(step.Delay())))
	}

	var inserted int
	err = f.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		n, err := f.scheduled.InsertMany(ctx, tx, rows)
		if err != nil {
			return err
		}
		inserted = n
		if n == 0 {
			return nil
		}
		return f.subs.SetFunnelStarted(ctx, tx, botID, subscriberID, now)
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		f.log.Info().Str("bot_id", botID).Int64("subscriber", subscriberID).Int("steps", inserted).Msg("funnel entered")
	}
	return inserted, nil
}
