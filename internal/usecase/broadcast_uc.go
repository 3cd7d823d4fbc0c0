package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/logging"
)

var _ BroadcastUseCase = (*broadcastUC)(nil)

// BroadcastUseCase drives the mass-broadcast lifecycle:
// draft -> scheduled -> sending -> completed/cancelled.
type BroadcastUseCase interface {
	CreateDraft(ctx context.Context, b *model.MassBroadcast) error
	// Schedule moves a draft to scheduled, enforcing the minimum lead time.
	Schedule(ctx context.Context, broadcastID string, at time.Time) error
	// SendNow materialises the audience and moves the broadcast to sending.
	SendNow(ctx context.Context, broadcastID string) (int, error)
	// Cancel stops a draft, scheduled or sending broadcast. Mid-send the
	// remaining pending deliveries are dropped; sent ones stay sent.
	Cancel(ctx context.Context, broadcastID string) error

	// PromoteDue flips due scheduled broadcasts into sending with their
	// audience materialised. Called from the dispatcher tick.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	// FinishIfDone closes a sending broadcast once no pending deliveries remain.
	FinishIfDone(ctx context.Context, broadcastID string) (bool, error)

	Get(ctx context.Context, broadcastID string) (*model.MassBroadcast, error)
	List(ctx context.Context, botID string, limit int) ([]*model.MassBroadcast, error)
	Stats(ctx context.Context, broadcastID string) (*repository.BroadcastStats, error)
}

type broadcastUC struct {
	broadcasts repository.BroadcastRepository
	subs       repository.SubscriberRepository
	tm         repository.TransactionManager
	log        *zerolog.Logger
}

func NewBroadcastUseCase(broadcasts repository.BroadcastRepository, subs repository.SubscriberRepository, tm repository.TransactionManager, logger *zerolog.Logger) *broadcastUC {
	return &broadcastUC{broadcasts: broadcasts, subs: subs, tm: tm, log: logger}
}

func (b *broadcastUC) CreateDraft(ctx context.Context, m *model.MassBroadcast) error {
	if len(m.MessageText) > model.MaxMessageLength {
		return domain.ErrInvalidArgument
	}
	return b.broadcasts.Save(ctx, repository.NoTX, m)
}

func (b *broadcastUC) Schedule(ctx context.Context, broadcastID string, at time.Time) error {
	defer logging.TraceDuration(b.log, "BroadcastUC.Schedule")()

	return b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		m, err := b.broadcasts.FindByID(ctx, tx, broadcastID)
		if err != nil {
			return err
		}
		if err := m.Schedule(at, time.Now()); err != nil {
			return err
		}
		return b.broadcasts.Save(ctx, tx, m)
	})
}

func (b *broadcastUC) SendNow(ctx context.Context, broadcastID string) (int, error) {
	defer logging.TraceDuration(b.log, "BroadcastUC.SendNow")()

	var audience int
	err := b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		m, err := b.broadcasts.FindByID(ctx, tx, broadcastID)
		if err != nil {
			return err
		}
		n, err := b.materialise(ctx, tx, m, model.BroadcastDraft)
		if err != nil {
			return err
		}
		audience = n
		return nil
	})
	return audience, err
}

// materialise inserts one pending delivery per active subscriber and flips
// the broadcast into sending. The guard on the prior status makes concurrent
// promotion attempts lose cleanly.
func (b *broadcastUC) materialise(ctx context.Context, tx repository.Tx, m *model.MassBroadcast, expect model.BroadcastStatus) (int, error) {
	if err := b.broadcasts.UpdateStatus(ctx, tx, m.ID, expect, model.BroadcastSending); err != nil {
		return 0, err
	}
	subs, err := b.subs.ListActive(ctx, tx, m.BotID)
	if err != nil {
		return 0, err
	}
	rows := make([]*model.BroadcastDelivery, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, model.NewBroadcastDelivery(m.ID, s.ChatID))
	}
	n, err := b.broadcasts.InsertDeliveries(ctx, tx, rows)
	if err != nil {
		return 0, err
	}
	b.log.Info().Str("broadcast_id", m.ID).Int("audience", n).Msg("broadcast materialised")
	return n, nil
}

func (b *broadcastUC) Cancel(ctx context.Context, broadcastID string) error {
	return b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		m, err := b.broadcasts.FindByID(ctx, tx, broadcastID)
		if err != nil {
			return err
		}
		switch m.Status {
		case model.BroadcastDraft, model.BroadcastStatusScheduled:
			return b.broadcasts.UpdateStatus(ctx, tx, broadcastID, m.Status, model.BroadcastCancelled)
		case model.BroadcastSending:
			// Mid-send cancel: already delivered messages stay out, the
			// rest of the queue is dropped in the same transaction.
			if err := b.broadcasts.UpdateStatus(ctx, tx, broadcastID, m.Status, model.BroadcastCancelled); err != nil {
				return err
			}
			n, err := b.broadcasts.CancelPendingDeliveries(ctx, tx, broadcastID)
			if err != nil {
				return err
			}
			b.log.Info().Str("broadcast_id", broadcastID).Int("dropped", n).Msg("broadcast cancelled mid-send")
			return nil
		default:
			return domain.ErrInvalidArgument
		}
	})
}

func (b *broadcastUC) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := b.broadcasts.ListDueScheduled(ctx, repository.NoTX, now, 20)
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, m := range due {
		m := m
		err := b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			_, err := b.materialise(ctx, tx, m, model.BroadcastStatusScheduled)
			return err
		})
		if err != nil {
			// Lost the race or transient failure; next tick retries.
			b.log.Warn().Err(err).Str("broadcast_id", m.ID).Msg("promotion skipped")
			continue
		}
		promoted++
	}
	return promoted, nil
}

func (b *broadcastUC) FinishIfDone(ctx context.Context, broadcastID string) (bool, error) {
	pending, err := b.broadcasts.CountPendingDeliveries(ctx, repository.NoTX, broadcastID)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}
	err = b.broadcasts.UpdateStatus(ctx, repository.NoTX, broadcastID, model.BroadcastSending, model.BroadcastCompleted)
	if err != nil {
		// Someone else finished it first.
		return false, nil
	}
	b.log.Info().Str("broadcast_id", broadcastID).Msg("broadcast completed")
	return true, nil
}

func (b *broadcastUC) Get(ctx context.Context, broadcastID string) (*model.MassBroadcast, error) {
	return b.broadcasts.FindByID(ctx, repository.NoTX, broadcastID)
}

func (b *broadcastUC) List(ctx context.Context, botID string, limit int) ([]*model.MassBroadcast, error) {
	return b.broadcasts.ListByBot(ctx, repository.NoTX, botID, limit)
}

func (b *broadcastUC) Stats(ctx context.Context, broadcastID string) (*repository.BroadcastStats, error) {
	return b.broadcasts.Stats(ctx, repository.NoTX, broadcastID)
}
