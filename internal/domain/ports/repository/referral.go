package repository

import (
	"context"

	"telegram-bot-hosting/internal/domain/model"
)

type ReferralRepository interface {
	// Save inserts the commission row; a repeated (referrer, invoice) pair
	// returns domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, t *model.ReferralTransaction) error
	ListByReferrer(ctx context.Context, tx Tx, referrerUserID int64, limit int) ([]*model.ReferralTransaction, error)
	SumEarnings(ctx context.Context, tx Tx, referrerUserID int64) (float64, error)
}
