package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

var _ repository.SubscriberRepository = (*SubscriberRepo)(nil)

type SubscriberRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriberRepo(pool *pgxpool.Pool) *SubscriberRepo {
	return &SubscriberRepo{pool: pool}
}

const subscriberColumns = `bot_id, user_id, chat_id, first_name, last_name, username,
       funnel_started_at, last_broadcast_message, funnel_enabled, is_active, joined_at`

func (r *SubscriberRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscriber) error {
	const q = `
INSERT INTO subscribers (
  bot_id, user_id, chat_id, first_name, last_name, username,
  funnel_started_at, last_broadcast_message, funnel_enabled, is_active, joined_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (bot_id, user_id) DO UPDATE SET
  chat_id=$3, first_name=$4, last_name=$5, username=$6,
  funnel_enabled=$9, is_active=$10;`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.BotID, s.UserID, s.ChatID, s.FirstName, s.LastName, s.Username,
		s.FunnelStartedAt, s.LastBroadcastMessage, s.FunnelEnabled, s.IsActive, s.JoinedAt)
	return err
}

func scanSubscriber(row pgx.Row) (*model.Subscriber, error) {
	var s model.Subscriber
	err := row.Scan(&s.BotID, &s.UserID, &s.ChatID, &s.FirstName, &s.LastName, &s.Username,
		&s.FunnelStartedAt, &s.LastBroadcastMessage, &s.FunnelEnabled, &s.IsActive, &s.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SubscriberRepo) Find(ctx context.Context, tx repository.Tx, botID string, userID int64) (*model.Subscriber, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE bot_id=$1 AND user_id=$2;`, botID, userID)
	if err != nil {
		return nil, err
	}
	return scanSubscriber(row)
}

func (r *SubscriberRepo) ListActive(ctx context.Context, tx repository.Tx, botID string) ([]*model.Subscriber, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE bot_id=$1 AND is_active ORDER BY joined_at;`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SubscriberRepo) SetActive(ctx context.Context, tx repository.Tx, botID string, userID int64, active bool) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE subscribers SET is_active=$3 WHERE bot_id=$1 AND user_id=$2;`, botID, userID, active)
	return err
}

func (r *SubscriberRepo) SetFunnelStarted(ctx context.Context, tx repository.Tx, botID string, userID int64, at time.Time) error {
	_, err := execSQL(ctx, r.pool, tx, `
UPDATE subscribers SET funnel_started_at = COALESCE(funnel_started_at, $3)
 WHERE bot_id=$1 AND user_id=$2;`, botID, userID, at)
	return err
}

func (r *SubscriberRepo) SetLastBroadcastMessage(ctx context.Context, tx repository.Tx, botID string, userID int64, number int) error {
	_, err := execSQL(ctx, r.pool, tx, `
UPDATE subscribers SET last_broadcast_message = GREATEST(last_broadcast_message, $3)
 WHERE bot_id=$1 AND user_id=$2;`, botID, userID, number)
	return err
}

func (r *SubscriberRepo) CountActive(ctx context.Context, tx repository.Tx, botID string) (int, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT COUNT(*) FROM subscribers WHERE bot_id=$1 AND is_active;`, botID)
	if err != nil {
		return 0, err
	}
	var n int
	err = row.Scan(&n)
	return n, err
}
