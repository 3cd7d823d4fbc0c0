package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/logging"
)

// Compile-time check
var _ AdminBroadcastUseCase = (*adminBroadcastUC)(nil)

// adminBroadcastPage is the keyset page size for walking the users table.
const adminBroadcastPage = 500

// AdminBroadcastUseCase sends platform-wide announcements from the master
// bot and keeps their history. The audience is every registered user, so
// the per-bot broadcast pipeline does not apply here.
type AdminBroadcastUseCase interface {
	// SendToAll delivers text to every registered user at the configured
	// rate and records the finished run with its counters.
	SendToAll(ctx context.Context, adminUserID int64, text string) (*model.AdminBroadcast, error)
	// History returns recent runs, newest first.
	History(ctx context.Context, limit int) ([]*model.AdminBroadcast, error)
}

type adminBroadcastUC struct {
	users     repository.UserRepository
	history   repository.AdminBroadcastRepository
	sender    adapter.Sender
	perSecond float64
	log       *zerolog.Logger
}

func NewAdminBroadcastUseCase(users repository.UserRepository, history repository.AdminBroadcastRepository, sender adapter.Sender, perSecond float64, logger *zerolog.Logger) *adminBroadcastUC {
	return &adminBroadcastUC{users: users, history: history, sender: sender, perSecond: perSecond, log: logger}
}

func (a *adminBroadcastUC) SendToAll(ctx context.Context, adminUserID int64, text string) (*model.AdminBroadcast, error) {
	defer logging.TraceDuration(a.log, "AdminBroadcastUC.SendToAll")()

	rec, err := model.NewAdminBroadcast(adminUserID, text)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Limit(a.perSecond), 1)
	var after int64
	for {
		page, err := a.users.ListAll(ctx, repository.NoTX, after, adminBroadcastPage)
		if err != nil {
			return rec, err
		}
		for _, u := range page {
			after = u.UserID
			if err := limiter.Wait(ctx); err != nil {
				return rec, err
			}
			rec.Total++
			if err := a.sendOne(ctx, u, text); err != nil {
				rec.Failed++
			} else {
				rec.Sent++
			}
		}
		if len(page) < adminBroadcastPage {
			break
		}
	}

	if err := a.history.Save(ctx, repository.NoTX, rec); err != nil {
		a.log.Error().Err(err).Str("broadcast_id", rec.ID).Msg("admin broadcast history save failed")
	}
	a.log.Info().Int("total", rec.Total).Int("sent", rec.Sent).Int("failed", rec.Failed).Msg("admin broadcast finished")
	return rec, nil
}

func (a *adminBroadcastUC) sendOne(ctx context.Context, u *model.User, text string) error {
	chatID := u.AdminChatID
	if chatID == 0 {
		chatID = u.UserID
	}
	_, err := a.sender.Send(ctx, adapter.SendRequest{ChatID: chatID, Text: text})
	if fw, ok := adapter.AsFloodWait(err); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(fw.RetryAfter):
		}
		_, err = a.sender.Send(ctx, adapter.SendRequest{ChatID: chatID, Text: text})
	}
	if err != nil && !errors.Is(err, adapter.ErrRecipientBlocked) {
		a.log.Debug().Err(err).Int64("user_id", u.UserID).Msg("admin broadcast send failed")
	}
	return err
}

func (a *adminBroadcastUC) History(ctx context.Context, limit int) ([]*model.AdminBroadcast, error) {
	return a.history.List(ctx, repository.NoTX, limit)
}
