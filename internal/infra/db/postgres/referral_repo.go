package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

var _ repository.ReferralRepository = (*ReferralRepo)(nil)

type ReferralRepo struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) *ReferralRepo {
	return &ReferralRepo{pool: pool}
}

func (r *ReferralRepo) Save(ctx context.Context, tx repository.Tx, t *model.ReferralTransaction) error {
	const q = `
INSERT INTO referral_transactions (
  id, referrer_user_id, referred_user_id, transaction_type,
  payment_amount, commission_amount, status, invoice_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.ReferrerUserID, t.ReferredUserID, t.Type,
		t.PaymentAmount, t.CommissionAmount, t.Status, t.InvoiceID, t.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *ReferralRepo) ListByReferrer(ctx context.Context, tx repository.Tx, referrerUserID int64, limit int) ([]*model.ReferralTransaction, error) {
	const q = `
SELECT id, referrer_user_id, referred_user_id, transaction_type,
       payment_amount, commission_amount, status, invoice_id, created_at
  FROM referral_transactions
 WHERE referrer_user_id=$1
 ORDER BY created_at DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, referrerUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ReferralTransaction
	for rows.Next() {
		var t model.ReferralTransaction
		if err := rows.Scan(&t.ID, &t.ReferrerUserID, &t.ReferredUserID, &t.Type,
			&t.PaymentAmount, &t.CommissionAmount, &t.Status, &t.InvoiceID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *ReferralRepo) SumEarnings(ctx context.Context, tx repository.Tx, referrerUserID int64) (float64, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT COALESCE(SUM(commission_amount), 0) FROM referral_transactions WHERE referrer_user_id=$1;`,
		referrerUserID)
	if err != nil {
		return 0, err
	}
	var sum float64
	err = row.Scan(&sum)
	return sum, err
}
