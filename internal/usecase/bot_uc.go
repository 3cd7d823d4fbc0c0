package usecase

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/logging"
)

// TokenVerifier probes a bot token against getMe before it is persisted.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (username string, err error)
}

// FleetController lets usecases nudge the bot supervisor without waiting for
// the next reconcile tick. Nil-safe: reconcile converges anyway.
type FleetController interface {
	StartBot(ctx context.Context, bot *model.UserBot) error
	StopBot(botID string)
	// RestartBot recycles the poll loop with a fresh config snapshot.
	RestartBot(ctx context.Context, botID string) error
}

var _ BotUseCase = (*botUC)(nil)

// BotUseCase manages the lifecycle of hosted user bots.
type BotUseCase interface {
	Create(ctx context.Context, ownerUserID int64, token string) (*model.UserBot, error)
	Delete(ctx context.Context, ownerUserID int64, botID string) error
	Get(ctx context.Context, botID string) (*model.UserBot, error)
	// GetOwned fails with ErrAccessDenied when the caller does not own the bot.
	GetOwned(ctx context.Context, ownerUserID int64, botID string) (*model.UserBot, error)
	ListByOwner(ctx context.Context, ownerUserID int64) ([]*model.UserBot, error)
	Update(ctx context.Context, bot *model.UserBot) error
	SetRunning(ctx context.Context, ownerUserID int64, botID string, run bool) error
	// Restart recycles a running bot, picking up token or setting changes.
	Restart(ctx context.Context, ownerUserID int64, botID string) error

	// ConfigureAI validates the key with provider auto-detection and stores
	// the detected provider on the bot.
	ConfigureAI(ctx context.Context, ownerUserID int64, botID, apiKey, assistantID string) (*model.UserBot, error)
	DisableAI(ctx context.Context, ownerUserID int64, botID string) error
}

type botUC struct {
	bots     repository.UserBotRepository
	access   AccessUseCase
	verifier TokenVerifier
	bridge   adapter.AIBridge
	fleet    FleetController
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewBotUseCase(bots repository.UserBotRepository, access AccessUseCase, verifier TokenVerifier, bridge adapter.AIBridge, tm repository.TransactionManager, logger *zerolog.Logger) *botUC {
	return &botUC{bots: bots, access: access, verifier: verifier, bridge: bridge, tm: tm, log: logger}
}

// SetFleet attaches the supervisor after both sides exist (they reference
// each other at wiring time).
func (b *botUC) SetFleet(f FleetController) { b.fleet = f }

func (b *botUC) Create(ctx context.Context, ownerUserID int64, token string) (*model.UserBot, error) {
	defer logging.TraceDuration(b.log, "BotUC.Create")()

	if _, err := b.access.CheckSubscription(ctx, ownerUserID); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	username, err := b.verifier.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}

	bot, err := model.NewUserBot(ownerUserID, token, username)
	if err != nil {
		return nil, err
	}
	if err := b.bots.Save(ctx, repository.NoTX, bot); err != nil {
		return nil, err
	}
	b.log.Info().Str("bot_id", bot.BotID).Str("username", username).Int64("owner", ownerUserID).Msg("bot created")

	if b.fleet != nil {
		if err := b.fleet.StartBot(ctx, bot); err != nil {
			b.log.Warn().Err(err).Str("bot_id", bot.BotID).Msg("immediate start failed, reconcile will retry")
		}
	}
	return bot, nil
}

func (b *botUC) Delete(ctx context.Context, ownerUserID int64, botID string) error {
	defer logging.TraceDuration(b.log, "BotUC.Delete")()
	if _, err := b.GetOwned(ctx, ownerUserID, botID); err != nil {
		return err
	}
	if b.fleet != nil {
		b.fleet.StopBot(botID)
	}
	return b.bots.Delete(ctx, repository.NoTX, botID)
}

func (b *botUC) Get(ctx context.Context, botID string) (*model.UserBot, error) {
	return b.bots.FindByID(ctx, repository.NoTX, botID)
}

func (b *botUC) GetOwned(ctx context.Context, ownerUserID int64, botID string) (*model.UserBot, error) {
	bot, err := b.bots.FindByID(ctx, repository.NoTX, botID)
	if err != nil {
		return nil, err
	}
	if bot.OwnerUserID != ownerUserID {
		return nil, domain.ErrAccessDenied
	}
	return bot, nil
}

func (b *botUC) ListByOwner(ctx context.Context, ownerUserID int64) ([]*model.UserBot, error) {
	return b.bots.ListByOwner(ctx, repository.NoTX, ownerUserID)
}

func (b *botUC) Update(ctx context.Context, bot *model.UserBot) error {
	return b.bots.Save(ctx, repository.NoTX, bot)
}

func (b *botUC) SetRunning(ctx context.Context, ownerUserID int64, botID string, run bool) error {
	if _, err := b.GetOwned(ctx, ownerUserID, botID); err != nil {
		return err
	}
	status := model.BotStatusActive
	if !run {
		status = model.BotStatusDisabled
	}
	if err := b.bots.SetRunState(ctx, repository.NoTX, botID, status, run); err != nil {
		return err
	}
	if b.fleet != nil && !run {
		b.fleet.StopBot(botID)
	}
	return nil
}

func (b *botUC) Restart(ctx context.Context, ownerUserID int64, botID string) error {
	if _, err := b.GetOwned(ctx, ownerUserID, botID); err != nil {
		return err
	}
	if b.fleet == nil {
		return nil
	}
	return b.fleet.RestartBot(ctx, botID)
}

func (b *botUC) ConfigureAI(ctx context.Context, ownerUserID int64, botID, apiKey, assistantID string) (*model.UserBot, error) {
	defer logging.TraceDuration(b.log, "BotUC.ConfigureAI")()

	provider, err := b.bridge.Detect(ctx, apiKey, assistantID)
	if err != nil {
		return nil, err
	}

	var bot *model.UserBot
	err = b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		bt, err := b.bots.FindByID(ctx, tx, botID)
		if err != nil {
			return err
		}
		if bt.OwnerUserID != ownerUserID {
			return domain.ErrAccessDenied
		}
		bt.AIEnabled = true
		bt.AIProvider = provider
		bt.AIAssistantID = assistantID
		bt.AISettings.APIKey = apiKey
		if err := b.bots.Save(ctx, tx, bt); err != nil {
			return err
		}
		bot = bt
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Info().Str("bot_id", botID).Str("provider", string(provider)).Msg("ai configured")
	return bot, nil
}

func (b *botUC) DisableAI(ctx context.Context, ownerUserID int64, botID string) error {
	bot, err := b.GetOwned(ctx, ownerUserID, botID)
	if err != nil {
		return err
	}
	bot.AIEnabled = false
	return b.bots.Save(ctx, repository.NoTX, bot)
}
