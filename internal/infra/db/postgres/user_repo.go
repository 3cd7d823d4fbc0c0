package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `user_id, admin_chat_id, subscription_status, trial_started_at,
       subscription_expires_at, referral_code, referred_by, total_referrals,
       referral_earnings, registered_at`

func (r *UserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (
  user_id, admin_chat_id, subscription_status, trial_started_at,
  subscription_expires_at, referral_code, referred_by, total_referrals,
  referral_earnings, registered_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (user_id) DO UPDATE SET
  admin_chat_id=$2, subscription_status=$3, trial_started_at=$4,
  subscription_expires_at=$5, total_referrals=$8, referral_earnings=$9;`
	_, err := execSQL(ctx, r.pool, tx, q,
		u.UserID, u.AdminChatID, u.Status, u.TrialStartedAt,
		u.SubscriptionExpiresAt, u.ReferralCode, u.ReferredBy,
		u.TotalReferrals, u.ReferralEarnings, u.RegisteredAt)
	return err
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.UserID, &u.AdminChatID, &u.Status, &u.TrialStartedAt,
		&u.SubscriptionExpiresAt, &u.ReferralCode, &u.ReferredBy,
		&u.TotalReferrals, &u.ReferralEarnings, &u.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, tx repository.Tx, userID int64) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE user_id=$1;`, userID)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *UserRepo) FindByReferralCode(ctx context.Context, tx repository.Tx, code string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE referral_code=$1;`, code)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *UserRepo) CreditReferralEarnings(ctx context.Context, tx repository.Tx, userID int64, amount float64) error {
	const q = `
UPDATE users
   SET referral_earnings = referral_earnings + $2,
       total_referrals   = total_referrals + 1
 WHERE user_id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *UserRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.SubscriptionStatus) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users WHERE subscription_status=$1;`, status)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count by status: %w", err)
	}
	return n, nil
}

func (r *UserRepo) ListAll(ctx context.Context, tx repository.Tx, afterUserID int64, limit int) ([]*model.User, error) {
	const q = `
SELECT ` + userColumns + `
  FROM users
 WHERE user_id > $1
 ORDER BY user_id
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, afterUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) ListExpirable(ctx context.Context, tx repository.Tx, trialDays int, limit int) ([]*model.User, error) {
	const q = `
SELECT ` + userColumns + `
  FROM users
 WHERE (subscription_status = 'paid'  AND subscription_expires_at <= now())
    OR (subscription_status = 'trial' AND trial_started_at + ($1 * INTERVAL '1 day') <= now())
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, trialDays, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
