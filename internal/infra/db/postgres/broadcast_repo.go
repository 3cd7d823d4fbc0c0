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

var _ repository.BroadcastRepository = (*BroadcastRepo)(nil)

type BroadcastRepo struct {
	pool *pgxpool.Pool
}

func NewBroadcastRepo(pool *pgxpool.Pool) *BroadcastRepo {
	return &BroadcastRepo{pool: pool}
}

const broadcastColumns = `id, bot_id, created_by, title, message_text, media_file_id, media_type,
       button_text, button_url, broadcast_type, scheduled_at, status, created_at, started_at, finished_at`

func (r *BroadcastRepo) Save(ctx context.Context, tx repository.Tx, b *model.MassBroadcast) error {
	const q = `
INSERT INTO mass_broadcasts (
  id, bot_id, created_by, title, message_text, media_file_id, media_type,
  button_text, button_url, broadcast_type, scheduled_at, status, created_at, started_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  title=$4, message_text=$5, media_file_id=$6, media_type=$7,
  button_text=$8, button_url=$9, broadcast_type=$10, scheduled_at=$11,
  status=$12, started_at=$14, finished_at=$15;`
	_, err := execSQL(ctx, r.pool, tx, q,
		b.ID, b.BotID, b.CreatedBy, b.Title, b.MessageText, b.MediaFileID, b.MediaType,
		b.ButtonText, b.ButtonURL, b.Type, b.ScheduledAt, b.Status, b.CreatedAt, b.StartedAt, b.FinishedAt)
	return err
}

func scanBroadcast(row pgx.Row) (*model.MassBroadcast, error) {
	var b model.MassBroadcast
	err := row.Scan(&b.ID, &b.BotID, &b.CreatedBy, &b.Title, &b.MessageText, &b.MediaFileID, &b.MediaType,
		&b.ButtonText, &b.ButtonURL, &b.Type, &b.ScheduledAt, &b.Status, &b.CreatedAt, &b.StartedAt, &b.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *BroadcastRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MassBroadcast, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+broadcastColumns+` FROM mass_broadcasts WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanBroadcast(row)
}

func (r *BroadcastRepo) ListByBot(ctx context.Context, tx repository.Tx, botID string, limit int) ([]*model.MassBroadcast, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+broadcastColumns+` FROM mass_broadcasts WHERE bot_id=$1 ORDER BY created_at DESC LIMIT $2;`,
		botID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBroadcasts(rows)
}

func collectBroadcasts(rows pgx.Rows) ([]*model.MassBroadcast, error) {
	var out []*model.MassBroadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateStatus is a guarded transition: it only fires when the current
// status matches expect, making replays and races harmless.
func (r *BroadcastRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, expect, next model.BroadcastStatus) error {
	set := `status=$3`
	switch next {
	case model.BroadcastSending:
		set += `, started_at=now()`
	case model.BroadcastCompleted, model.BroadcastCancelled, model.BroadcastFailed:
		set += `, finished_at=now()`
	}
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE mass_broadcasts SET `+set+` WHERE id=$1 AND status=$2;`, id, expect, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BroadcastRepo) ListDueScheduled(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.MassBroadcast, error) {
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT `+broadcastColumns+`
  FROM mass_broadcasts
 WHERE status='scheduled' AND scheduled_at <= $1
 ORDER BY scheduled_at
 LIMIT $2;`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBroadcasts(rows)
}

func (r *BroadcastRepo) InsertDeliveries(ctx context.Context, tx repository.Tx, rows []*model.BroadcastDelivery) (int, error) {
	const q = `
INSERT INTO broadcast_deliveries (id, broadcast_id, user_id, status)
VALUES ($1,$2,$3,$4)
ON CONFLICT (broadcast_id, user_id) DO NOTHING;`
	inserted := 0
	for _, d := range rows {
		tag, err := execSQL(ctx, r.pool, tx, q, d.ID, d.BroadcastID, d.UserID, d.Status)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *BroadcastRepo) ClaimDueDeliveries(ctx context.Context, tx repository.Tx, limit int) ([]*model.BroadcastDelivery, error) {
	const q = `
UPDATE broadcast_deliveries bd
   SET claimed_at = now()
  FROM (
    SELECT d.id
      FROM broadcast_deliveries d
      JOIN mass_broadcasts b ON b.id = d.broadcast_id
     WHERE d.status = 'pending'
       AND b.status = 'sending'
       AND (d.claimed_at IS NULL OR d.claimed_at < now() - INTERVAL '5 minutes')
     ORDER BY d.id
     LIMIT $1
     FOR UPDATE OF d SKIP LOCKED
  ) due
 WHERE bd.id = due.id
RETURNING bd.id, bd.broadcast_id, bd.user_id, bd.status, bd.telegram_message_id, bd.error_message, bd.attempted_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.BroadcastDelivery
	for rows.Next() {
		var d model.BroadcastDelivery
		if err := rows.Scan(&d.ID, &d.BroadcastID, &d.UserID, &d.Status, &d.TelegramMessageID, &d.ErrorMessage, &d.AttemptedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *BroadcastRepo) ReleaseDeliveryClaim(ctx context.Context, tx repository.Tx, id string) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE broadcast_deliveries SET claimed_at=NULL WHERE id=$1 AND status='pending';`, id)
	return err
}

func (r *BroadcastRepo) MarkDelivery(ctx context.Context, tx repository.Tx, id string, status model.DeliveryStatus, telegramMessageID *int, errMsg string) error {
	tag, err := execSQL(ctx, r.pool, tx, `
UPDATE broadcast_deliveries
   SET status=$2, telegram_message_id=$3, error_message=$4, attempted_at=now(), claimed_at=NULL
 WHERE id=$1 AND status='pending';`, id, status, telegramMessageID, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BroadcastRepo) CancelPendingDeliveries(ctx context.Context, tx repository.Tx, broadcastID string) (int, error) {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE broadcast_deliveries SET status='cancelled', claimed_at=NULL WHERE broadcast_id=$1 AND status='pending';`,
		broadcastID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *BroadcastRepo) CountPendingDeliveries(ctx context.Context, tx repository.Tx, broadcastID string) (int, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT COUNT(*) FROM broadcast_deliveries WHERE broadcast_id=$1 AND status='pending';`, broadcastID)
	if err != nil {
		return 0, err
	}
	var n int
	err = row.Scan(&n)
	return n, err
}

func (r *BroadcastRepo) Stats(ctx context.Context, tx repository.Tx, broadcastID string) (*repository.BroadcastStats, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status='pending'),
       COUNT(*) FILTER (WHERE status='sent'),
       COUNT(*) FILTER (WHERE status='blocked'),
       COUNT(*) FILTER (WHERE status='failed')
  FROM broadcast_deliveries WHERE broadcast_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, broadcastID)
	if err != nil {
		return nil, err
	}
	var s repository.BroadcastStats
	if err := row.Scan(&s.Total, &s.Pending, &s.Sent, &s.Blocked, &s.Failed); err != nil {
		return nil, err
	}
	return &s, nil
}
