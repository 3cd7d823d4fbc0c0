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

var _ repository.ConversationRepository = (*ConversationRepo)(nil)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Save(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	const q = `
INSERT INTO conversations (bot_id, user_id, response_id, updated_at)
VALUES ($1,$2,$3,now())
ON CONFLICT (bot_id, user_id) DO UPDATE SET response_id=$3, updated_at=now();`
	_, err := execSQL(ctx, r.pool, tx, q, c.BotID, c.UserID, c.ResponseID)
	return err
}

func (r *ConversationRepo) Find(ctx context.Context, tx repository.Tx, botID string, userID int64) (*model.Conversation, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT bot_id, user_id, response_id, updated_at FROM conversations WHERE bot_id=$1 AND user_id=$2;`,
		botID, userID)
	if err != nil {
		return nil, err
	}
	var c model.Conversation
	if err := row.Scan(&c.BotID, &c.UserID, &c.ResponseID, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepo) Delete(ctx context.Context, tx repository.Tx, botID string, userID int64) error {
	_, err := execSQL(ctx, r.pool, tx,
		`DELETE FROM conversations WHERE bot_id=$1 AND user_id=$2;`, botID, userID)
	return err
}
