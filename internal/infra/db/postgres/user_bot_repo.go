package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

var _ repository.UserBotRepository = (*UserBotRepo)(nil)

type UserBotRepo struct {
	pool *pgxpool.Pool
}

func NewUserBotRepo(pool *pgxpool.Pool) *UserBotRepo {
	return &UserBotRepo{pool: pool}
}

const userBotColumns = `bot_id, owner_user_id, token, bot_username, status, is_running,
       welcome_message, welcome_button_text, confirmation_message,
       goodbye_message, goodbye_button_text, goodbye_button_url,
       ai_enabled, ai_assistant_id, ai_provider, ai_model, ai_system_prompt, ai_settings,
       tokens_limit_total, tokens_input_used, tokens_output_used, token_notification_sent,
       created_at, updated_at`

func (r *UserBotRepo) Save(ctx context.Context, tx repository.Tx, b *model.UserBot) error {
	b.UpdatedAt = time.Now()
	settings, err := json.Marshal(b.AISettings)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO user_bots (
  bot_id, owner_user_id, token, bot_username, status, is_running,
  welcome_message, welcome_button_text, confirmation_message,
  goodbye_message, goodbye_button_text, goodbye_button_url,
  ai_enabled, ai_assistant_id, ai_provider, ai_model, ai_system_prompt, ai_settings,
  tokens_limit_total, tokens_input_used, tokens_output_used, token_notification_sent,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
ON CONFLICT (bot_id) DO UPDATE SET
  token=$3, bot_username=$4, status=$5, is_running=$6,
  welcome_message=$7, welcome_button_text=$8, confirmation_message=$9,
  goodbye_message=$10, goodbye_button_text=$11, goodbye_button_url=$12,
  ai_enabled=$13, ai_assistant_id=$14, ai_provider=$15, ai_model=$16,
  ai_system_prompt=$17, ai_settings=$18, tokens_limit_total=$19,
  token_notification_sent=$22, updated_at=$24;`
	_, err = execSQL(ctx, r.pool, tx, q,
		b.BotID, b.OwnerUserID, b.Token, b.BotUsername, b.Status, b.IsRunning,
		b.WelcomeMessage, b.WelcomeButtonText, b.ConfirmationMessage,
		b.GoodbyeMessage, b.GoodbyeButtonText, b.GoodbyeButtonURL,
		b.AIEnabled, b.AIAssistantID, b.AIProvider, b.AIModel, b.AISystemPrompt, settings,
		b.TokensLimitTotal, b.TokensInputUsed, b.TokensOutputUsed, b.TokenNotificationSent,
		b.CreatedAt, b.UpdatedAt)
	return err
}

func (r *UserBotRepo) Delete(ctx context.Context, tx repository.Tx, botID string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM user_bots WHERE bot_id=$1;`, botID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUserBot(row pgx.Row) (*model.UserBot, error) {
	var b model.UserBot
	var settings []byte
	err := row.Scan(&b.BotID, &b.OwnerUserID, &b.Token, &b.BotUsername, &b.Status, &b.IsRunning,
		&b.WelcomeMessage, &b.WelcomeButtonText, &b.ConfirmationMessage,
		&b.GoodbyeMessage, &b.GoodbyeButtonText, &b.GoodbyeButtonURL,
		&b.AIEnabled, &b.AIAssistantID, &b.AIProvider, &b.AIModel, &b.AISystemPrompt, &settings,
		&b.TokensLimitTotal, &b.TokensInputUsed, &b.TokensOutputUsed, &b.TokenNotificationSent,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if b.AISettings, err = model.ParseAISettings(settings); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *UserBotRepo) FindByID(ctx context.Context, tx repository.Tx, botID string) (*model.UserBot, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userBotColumns+` FROM user_bots WHERE bot_id=$1;`, botID)
	if err != nil {
		return nil, err
	}
	return scanUserBot(row)
}

func (r *UserBotRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerUserID int64) ([]*model.UserBot, error) {
	return r.list(ctx, tx, `SELECT `+userBotColumns+` FROM user_bots WHERE owner_user_id=$1 ORDER BY created_at;`, ownerUserID)
}

func (r *UserBotRepo) ListRunnable(ctx context.Context, tx repository.Tx) ([]*model.UserBot, error) {
	return r.list(ctx, tx, `SELECT `+userBotColumns+` FROM user_bots WHERE status='active' AND is_running ORDER BY created_at;`)
}

func (r *UserBotRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.UserBot, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.UserBot
	for rows.Next() {
		b, err := scanUserBot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *UserBotRepo) SetRunState(ctx context.Context, tx repository.Tx, botID string, status model.BotStatus, isRunning bool) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE user_bots SET status=$2, is_running=$3, updated_at=now() WHERE bot_id=$1;`,
		botID, status, isRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserBotRepo) AddTokenUsage(ctx context.Context, tx repository.Tx, botID string, input, output int64) error {
	_, err := execSQL(ctx, r.pool, tx, `
UPDATE user_bots
   SET tokens_input_used  = tokens_input_used + $2,
       tokens_output_used = tokens_output_used + $3,
       updated_at = now()
 WHERE bot_id = $1;`, botID, input, output)
	return err
}

func (r *UserBotRepo) AddTokenLimit(ctx context.Context, tx repository.Tx, botID string, tokens int64) error {
	_, err := execSQL(ctx, r.pool, tx, `
UPDATE user_bots
   SET tokens_limit_total = COALESCE(tokens_limit_total, 0) + $2,
       token_notification_sent = FALSE,
       updated_at = now()
 WHERE bot_id = $1;`, botID, tokens)
	return err
}

func (r *UserBotRepo) SetTokenNotificationSent(ctx context.Context, tx repository.Tx, botID string, sent bool) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE user_bots SET token_notification_sent=$2, updated_at=now() WHERE bot_id=$1;`, botID, sent)
	return err
}

func (r *UserBotRepo) CountBots(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM user_bots;`)
	if err != nil {
		return 0, err
	}
	var n int
	err = row.Scan(&n)
	return n, err
}
