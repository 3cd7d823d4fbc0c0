package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

var _ repository.FunnelRepository = (*FunnelRepo)(nil)

type FunnelRepo struct {
	pool *pgxpool.Pool
}

func NewFunnelRepo(pool *pgxpool.Pool) *FunnelRepo {
	return &FunnelRepo{pool: pool}
}

func (r *FunnelRepo) SaveSequence(ctx context.Context, tx repository.Tx, s *model.BroadcastSequence) error {
	const q = `
INSERT INTO broadcast_sequences (sequence_id, bot_id, is_enabled, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (bot_id) DO UPDATE SET is_enabled=$3;`
	_, err := execSQL(ctx, r.pool, tx, q, s.SequenceID, s.BotID, s.IsEnabled, s.CreatedAt)
	return err
}

func (r *FunnelRepo) FindSequenceByBot(ctx context.Context, tx repository.Tx, botID string) (*model.BroadcastSequence, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT sequence_id, bot_id, is_enabled, created_at FROM broadcast_sequences WHERE bot_id=$1;`, botID)
	if err != nil {
		return nil, err
	}
	var s model.BroadcastSequence
	if err := row.Scan(&s.SequenceID, &s.BotID, &s.IsEnabled, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *FunnelRepo) SetSequenceEnabled(ctx context.Context, tx repository.Tx, sequenceID string, enabled bool) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE broadcast_sequences SET is_enabled=$2 WHERE sequence_id=$1;`, sequenceID, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const messageColumns = `message_id, sequence_id, message_number, message_text, delay_seconds,
       media_file_id, media_type, media_file_unique_id, media_file_size, media_filename,
       is_active, utm_campaign, utm_content, created_at`

func (r *FunnelRepo) SaveMessage(ctx context.Context, tx repository.Tx, m *model.BroadcastMessage) error {
	const q = `
INSERT INTO broadcast_messages (
  message_id, sequence_id, message_number, message_text, delay_seconds,
  media_file_id, media_type, media_file_unique_id, media_file_size, media_filename,
  is_active, utm_campaign, utm_content, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (message_id) DO UPDATE SET
  message_text=$4, delay_seconds=$5, media_file_id=$6, media_type=$7,
  media_file_unique_id=$8, media_file_size=$9, media_filename=$10,
  is_active=$11, utm_campaign=$12, utm_content=$13;`
	_, err := execSQL(ctx, r.pool, tx, q,
		m.MessageID, m.SequenceID, m.MessageNumber, m.MessageText, m.DelaySeconds,
		m.MediaFileID, m.MediaType, m.MediaFileUniqueID, m.MediaFileSize, m.MediaFilename,
		m.IsActive, m.UTMCampaign, m.UTMContent, m.CreatedAt)
	if err != nil {
		return err
	}
	// Buttons are replaced wholesale; per-row diffing is not worth it at <=10 rows.
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM message_buttons WHERE message_id=$1;`, m.MessageID); err != nil {
		return err
	}
	for _, b := range m.Buttons {
		if _, err := execSQL(ctx, r.pool, tx,
			`INSERT INTO message_buttons (message_id, position, button_text, button_url) VALUES ($1,$2,$3,$4);`,
			m.MessageID, b.Position, b.ButtonText, b.ButtonURL); err != nil {
			return err
		}
	}
	return nil
}

func (r *FunnelRepo) DeleteMessage(ctx context.Context, tx repository.Tx, messageID string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM broadcast_messages WHERE message_id=$1;`, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *FunnelRepo) FindMessage(ctx context.Context, tx repository.Tx, messageID string) (*model.BroadcastMessage, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+messageColumns+` FROM broadcast_messages WHERE message_id=$1;`, messageID)
	if err != nil {
		return nil, err
	}
	m, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadButtons(ctx, tx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func scanMessage(row pgx.Row) (*model.BroadcastMessage, error) {
	var m model.BroadcastMessage
	err := row.Scan(&m.MessageID, &m.SequenceID, &m.MessageNumber, &m.MessageText, &m.DelaySeconds,
		&m.MediaFileID, &m.MediaType, &m.MediaFileUniqueID, &m.MediaFileSize, &m.MediaFilename,
		&m.IsActive, &m.UTMCampaign, &m.UTMContent, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *FunnelRepo) loadButtons(ctx context.Context, tx repository.Tx, m *model.BroadcastMessage) error {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT message_id, position, button_text, button_url FROM message_buttons WHERE message_id=$1 ORDER BY position;`,
		m.MessageID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var b model.MessageButton
		if err := rows.Scan(&b.MessageID, &b.Position, &b.ButtonText, &b.ButtonURL); err != nil {
			return err
		}
		m.Buttons = append(m.Buttons, b)
	}
	return rows.Err()
}

func (r *FunnelRepo) ListMessages(ctx context.Context, tx repository.Tx, sequenceID string) ([]*model.BroadcastMessage, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+messageColumns+` FROM broadcast_messages WHERE sequence_id=$1 AND is_active ORDER BY message_number;`,
		sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.BroadcastMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, m := range out {
		if err := r.loadButtons(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NextFreeNumber advances from the requested slot to the next unoccupied
// integer. Existing rows are never shifted, so already-materialised
// scheduled rows keep stable references.
func (r *FunnelRepo) NextFreeNumber(ctx context.Context, tx repository.Tx, sequenceID string, requested int) (int, error) {
	if requested < 1 {
		requested = 1
	}
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT message_number FROM broadcast_messages WHERE sequence_id=$1 AND message_number >= $2 ORDER BY message_number;`,
		sequenceID, requested)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	next := requested
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
		if n == next {
			next++
		} else if n > next {
			break
		}
	}
	return next, rows.Err()
}
