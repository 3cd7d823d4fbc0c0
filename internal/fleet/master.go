package fleet

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	infratg "telegram-bot-hosting/internal/infra/telegram"
	"telegram-bot-hosting/internal/infra/worker"
)

// UpdateHandler consumes one master-bot update. The application facade
// implements it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update)
}

// MasterRuntime polls the master bot and fans updates out to a worker pool
// so a slow payment or AI screen does not stall the queue.
type MasterRuntime struct {
	client  *infratg.Client
	handler UpdateHandler
	pool    *worker.Pool
	log     *zerolog.Logger
}

func NewMasterRuntime(client *infratg.Client, handler UpdateHandler, workers int, logger *zerolog.Logger) *MasterRuntime {
	compLog := logger.With().Str("component", "MasterRuntime").Logger()
	return &MasterRuntime{
		client:  client,
		handler: handler,
		pool:    worker.NewPool(workers, &compLog),
		log:     &compLog,
	}
}

func (m *MasterRuntime) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query"}

	m.log.Info().Str("username", m.client.Username()).Msg("master bot polling")
	updates := m.client.API().GetUpdatesChan(u)
	m.pool.Start(ctx)
	defer m.pool.Stop()

	for {
		select {
		case <-ctx.Done():
			m.client.API().StopReceivingUpdates()
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			u := upd
			if err := m.pool.Submit(func(taskCtx context.Context) error {
				m.handler.HandleUpdate(taskCtx, u)
				return nil
			}); err != nil {
				m.log.Warn().Err(err).Msg("update dropped, pool saturated")
			}
		}
	}
}
