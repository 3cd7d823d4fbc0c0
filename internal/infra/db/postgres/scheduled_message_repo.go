package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

var _ repository.ScheduledMessageRepository = (*ScheduledMessageRepo)(nil)

// claimTimeout is how long a claim is honored before another dispatcher may
// take the row over (covers dispatcher crashes mid-batch).
const claimTimeout = 5 * time.Minute

type ScheduledMessageRepo struct {
	pool *pgxpool.Pool
}

func NewScheduledMessageRepo(pool *pgxpool.Pool) *ScheduledMessageRepo {
	return &ScheduledMessageRepo{pool: pool}
}

func (r *ScheduledMessageRepo) InsertMany(ctx context.Context, tx repository.Tx, rows []*model.ScheduledMessage) (int, error) {
	const q = `
INSERT INTO scheduled_messages (id, bot_id, subscriber_id, message_id, scheduled_at, status, error_message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (bot_id, subscriber_id, message_id) DO NOTHING;`
	inserted := 0
	for _, m := range rows {
		tag, err := execSQL(ctx, r.pool, tx, q,
			m.ID, m.BotID, m.SubscriberID, m.MessageID, m.ScheduledAt, m.Status, m.ErrorMessage, m.CreatedAt)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ClaimDue marks up to limit due rows as claimed in a single statement so
// concurrent dispatchers cannot double-process. Rows stay pending; the
// claim token is claimed_at.
func (r *ScheduledMessageRepo) ClaimDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.ScheduledMessage, error) {
	const q = `
UPDATE scheduled_messages sm
   SET claimed_at = $1
  FROM (
    SELECT s.id
      FROM scheduled_messages s
      JOIN broadcast_messages bm ON bm.message_id = s.message_id
      JOIN broadcast_sequences bs ON bs.sequence_id = bm.sequence_id
     WHERE s.status = 'pending'
       AND bs.is_enabled
       AND s.scheduled_at <= $1
       AND (s.claimed_at IS NULL OR s.claimed_at < $2)
     ORDER BY s.scheduled_at, bm.message_number
     LIMIT $3
     FOR UPDATE OF s SKIP LOCKED
  ) due
 WHERE sm.id = due.id
RETURNING sm.id, sm.bot_id, sm.subscriber_id, sm.message_id, sm.scheduled_at, sm.status, sm.error_message, sm.created_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, now.Add(-claimTimeout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ScheduledMessage
	for rows.Next() {
		m, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanScheduled(row pgx.Row) (*model.ScheduledMessage, error) {
	var m model.ScheduledMessage
	err := row.Scan(&m.ID, &m.BotID, &m.SubscriberID, &m.MessageID,
		&m.ScheduledAt, &m.Status, &m.ErrorMessage, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ScheduledMessageRepo) ReleaseClaim(ctx context.Context, tx repository.Tx, id string) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE scheduled_messages SET claimed_at=NULL WHERE id=$1 AND status='pending';`, id)
	return err
}

func (r *ScheduledMessageRepo) MarkSent(ctx context.Context, tx repository.Tx, id string) error {
	return r.finish(ctx, tx, id, model.ScheduledSent, "")
}

func (r *ScheduledMessageRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, reason string) error {
	return r.finish(ctx, tx, id, model.ScheduledFailed, reason)
}

func (r *ScheduledMessageRepo) finish(ctx context.Context, tx repository.Tx, id string, status model.ScheduledStatus, reason string) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE scheduled_messages SET status=$2, error_message=$3, claimed_at=NULL WHERE id=$1 AND status='pending';`,
		id, status, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RescheduleByMessage shifts pending rows by the delay delta, which is
// equivalent to re-anchoring on the subscriber's activation moment.
func (r *ScheduledMessageRepo) RescheduleByMessage(ctx context.Context, tx repository.Tx, messageID string, oldDelaySeconds, newDelaySeconds int64) (int, error) {
	const q = `
UPDATE scheduled_messages
   SET scheduled_at = scheduled_at + (($2 - $1) * INTERVAL '1 second')
 WHERE message_id = $3 AND status = 'pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, oldDelaySeconds, newDelaySeconds, messageID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *ScheduledMessageRepo) CancelByMessage(ctx context.Context, tx repository.Tx, messageID string) (int, error) {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE scheduled_messages SET status='cancelled', claimed_at=NULL WHERE message_id=$1 AND status='pending';`,
		messageID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *ScheduledMessageRepo) ListBySubscriber(ctx context.Context, tx repository.Tx, botID string, subscriberID int64) ([]*model.ScheduledMessage, error) {
	const q = `
SELECT id, bot_id, subscriber_id, message_id, scheduled_at, status, error_message, created_at
  FROM scheduled_messages
 WHERE bot_id=$1 AND subscriber_id=$2
 ORDER BY scheduled_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, botID, subscriberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ScheduledMessage
	for rows.Next() {
		m, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ScheduledMessageRepo) CountByStatus(ctx context.Context, tx repository.Tx, botID string, status model.ScheduledStatus) (int, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT COUNT(*) FROM scheduled_messages WHERE bot_id=$1 AND status=$2;`, botID, status)
	if err != nil {
		return 0, err
	}
	var n int
	err = row.Scan(&n)
	return n, err
}
