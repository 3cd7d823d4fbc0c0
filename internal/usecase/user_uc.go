package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/logging"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase covers registration, trial and referral attribution for the
// master bot's /start flow.
type UserUseCase interface {
	// RegisterOrFetch creates the user on first contact; when the trial is
	// enabled the new user starts in trial immediately. referralCode, when
	// present and valid, attributes the registration to the referrer once.
	RegisterOrFetch(ctx context.Context, tgID, chatID int64, referralCode string) (*model.User, bool, error)
	Get(ctx context.Context, tgID int64) (*model.User, error)
	StartTrial(ctx context.Context, tgID int64) (*model.User, error)
	ReferralLink(botUsername string, u *model.User) string
	// ReferralHistory returns the user's recent commission credits.
	ReferralHistory(ctx context.Context, tgID int64, limit int) ([]*model.ReferralTransaction, error)
	Count(ctx context.Context) (int, error)
}

type userUC struct {
	users     repository.UserRepository
	referrals repository.ReferralRepository
	tm        repository.TransactionManager
	trialOn   bool
	log       *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, referrals repository.ReferralRepository, tm repository.TransactionManager, trialEnabled bool, logger *zerolog.Logger) *userUC {
	return &userUC{users: users, referrals: referrals, tm: tm, trialOn: trialEnabled, log: logger}
}

func (u *userUC) RegisterOrFetch(ctx context.Context, tgID, chatID int64, referralCode string) (*model.User, bool, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	var user *model.User
	var created bool
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.users.FindByID(ctx, tx, tgID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil {
			if chatID != 0 && existing.AdminChatID != chatID {
				existing.AdminChatID = chatID
				if err := u.users.Save(ctx, tx, existing); err != nil {
					return err
				}
			}
			user = existing
			return nil
		}

		var referredBy *int64
		if referralCode != "" {
			ref, err := u.users.FindByReferralCode(ctx, tx, referralCode)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			// Self-referral is silently dropped.
			if ref != nil && ref.UserID != tgID {
				referredBy = &ref.UserID
			}
		}

		nu, err := model.NewUser(tgID, chatID, referredBy)
		if err != nil {
			return err
		}
		// The trial starts on first contact, not on a separate button press.
		if u.trialOn {
			nu.StartTrial(time.Now())
		}
		if err := u.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		user = nu
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		u.log.Info().Int64("user_id", tgID).Bool("referred", user.ReferredBy != nil).Msg("user registered")
	}
	return user, created, nil
}

func (u *userUC) Get(ctx context.Context, tgID int64) (*model.User, error) {
	return u.users.FindByID(ctx, repository.NoTX, tgID)
}

// StartTrial grants the one-time trial if enabled and not consumed.
func (u *userUC) StartTrial(ctx context.Context, tgID int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.StartTrial")()
	if !u.trialOn {
		return nil, domain.ErrAccessDenied
	}

	var user *model.User
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByID(ctx, tx, tgID)
		if err != nil {
			return err
		}
		if !usr.StartTrial(time.Now()) {
			return domain.ErrTrialExpired
		}
		if err := u.users.Save(ctx, tx, usr); err != nil {
			return err
		}
		user = usr
		return nil
	})
	return user, err
}

// ReferralLink builds the master bot deep link carrying the user's code.
func (u *userUC) ReferralLink(botUsername string, usr *model.User) string {
	return "https://t.me/" + botUsername + "?start=REF_" + usr.ReferralCode
}

func (u *userUC) ReferralHistory(ctx context.Context, tgID int64, limit int) ([]*model.ReferralTransaction, error) {
	return u.referrals.ListByReferrer(ctx, repository.NoTX, tgID, limit)
}

func (u *userUC) Count(ctx context.Context) (int, error) {
	return u.users.CountUsers(ctx, repository.NoTX)
}
