package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/usecase"
)

// ExpiryWorker flips run-out trial and paid users to expired and tells them.
type ExpiryWorker struct {
	interval  time.Duration
	users     repository.UserRepository
	notifier  usecase.OwnerNotifier
	trialDays int
	log       *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, users repository.UserRepository, notifier usecase.OwnerNotifier, trialDays int, logger *zerolog.Logger) *ExpiryWorker {
	compLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval:  interval,
		users:     users,
		notifier:  notifier,
		trialDays: trialDays,
		log:       &compLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("starting expiry worker")
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	expired, err := w.users.ListExpirable(ctx, repository.NoTX, w.trialDays, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	for _, u := range expired {
		wasTrial := u.Status == model.SubscriptionTrial
		u.Status = model.SubscriptionExpired
		if err := w.users.Save(ctx, repository.NoTX, u); err != nil {
			w.log.Error().Err(err).Int64("user_id", u.UserID).Msg("save expired failed")
			continue
		}
		text := "Ваша подписка истекла. Продлите её, чтобы боты продолжили работать."
		if wasTrial {
			text = "Пробный период завершён. Оформите подписку, чтобы боты продолжили работать."
		}
		if w.notifier != nil {
			if err := w.notifier.NotifyOwner(ctx, u.UserID, text); err != nil {
				w.log.Debug().Err(err).Int64("user_id", u.UserID).Msg("expiry notice failed")
			}
		}
	}
	if len(expired) > 0 {
		w.log.Info().Int("count", len(expired)).Msg("subscriptions expired")
	}
}
