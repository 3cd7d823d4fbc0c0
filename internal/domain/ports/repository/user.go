package repository

import (
	"context"

	"telegram-bot-hosting/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, userID int64) (*model.User, error)
	FindByReferralCode(ctx context.Context, tx Tx, code string) (*model.User, error)
	// CreditReferralEarnings atomically adds to referral_earnings and bumps total_referrals.
	CreditReferralEarnings(ctx context.Context, tx Tx, userID int64, amount float64) error
	CountUsers(ctx context.Context, tx Tx) (int, error)
	CountByStatus(ctx context.Context, tx Tx, status model.SubscriptionStatus) (int, error)
	// ListExpirable returns trial/paid users whose access ran out before now.
	ListExpirable(ctx context.Context, tx Tx, trialDays int, limit int) ([]*model.User, error)
	// ListAll pages over every user ordered by id; afterUserID 0 starts
	// from the beginning.
	ListAll(ctx context.Context, tx Tx, afterUserID int64, limit int) ([]*model.User, error)
}
