package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

var _ repository.AdminBroadcastRepository = (*AdminBroadcastRepo)(nil)

type AdminBroadcastRepo struct {
	pool *pgxpool.Pool
}

func NewAdminBroadcastRepo(pool *pgxpool.Pool) *AdminBroadcastRepo {
	return &AdminBroadcastRepo{pool: pool}
}

func (r *AdminBroadcastRepo) Save(ctx context.Context, tx repository.Tx, b *model.AdminBroadcast) error {
	const q = `
INSERT INTO admin_broadcasts (id, created_by, message_text, total, sent, failed, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q,
		b.ID, b.CreatedBy, b.MessageText, b.Total, b.Sent, b.Failed, b.CreatedAt)
	return err
}

func (r *AdminBroadcastRepo) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.AdminBroadcast, error) {
	const q = `
SELECT id, created_by, message_text, total, sent, failed, created_at
  FROM admin_broadcasts
 ORDER BY created_at DESC
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.AdminBroadcast
	for rows.Next() {
		var b model.AdminBroadcast
		if err := rows.Scan(&b.ID, &b.CreatedBy, &b.MessageText, &b.Total, &b.Sent, &b.Failed, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
