package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// Migrate applies the schema idempotently at startup: CREATE TABLE IF NOT
// EXISTS for every entity, then column introspection through
// information_schema with ALTER TABLE ADD COLUMN for anything missing.
// Schema evolution is additive only. A failure here aborts the process.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *zerolog.Logger) error {
	for _, stmt := range createTables {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	existing, err := existingColumns(ctx, pool)
	if err != nil {
		return fmt.Errorf("introspect columns: %w", err)
	}
	added := 0
	for _, ac := range addColumns {
		if _, ok := existing[ac.table+"."+ac.column]; ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", ac.table, ac.column, ac.definition)
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", ac.table, ac.column, err)
		}
		added++
	}
	if added > 0 {
		log.Info().Int("columns", added).Msg("schema migrated")
	}
	return nil
}

func existingColumns(ctx context.Context, pool *pgxpool.Pool) (map[string]struct{}, error) {
	rows, err := pool.Query(ctx, `
SELECT table_name, column_name
  FROM information_schema.columns
 WHERE table_schema = current_schema();`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]struct{}{}
	for rows.Next() {
		var t, c string
		if err := rows.Scan(&t, &c); err != nil {
			return nil, err
		}
		out[t+"."+c] = struct{}{}
	}
	return out, rows.Err()
}

var createTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
  user_id                 BIGINT PRIMARY KEY,
  admin_chat_id           BIGINT NOT NULL DEFAULT 0,
  subscription_status     TEXT NOT NULL DEFAULT 'free',
  trial_started_at        TIMESTAMPTZ,
  subscription_expires_at TIMESTAMPTZ,
  referral_code           TEXT UNIQUE NOT NULL,
  referred_by             BIGINT,
  total_referrals         INT NOT NULL DEFAULT 0,
  referral_earnings       NUMERIC(12,2) NOT NULL DEFAULT 0,
  registered_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	`CREATE TABLE IF NOT EXISTS user_bots (
  bot_id                  UUID PRIMARY KEY,
  owner_user_id           BIGINT NOT NULL REFERENCES users(user_id),
  token                   TEXT NOT NULL,
  bot_username            TEXT NOT NULL DEFAULT '',
  status                  TEXT NOT NULL DEFAULT 'active',
  is_running              BOOLEAN NOT NULL DEFAULT TRUE,
  welcome_message         TEXT NOT NULL DEFAULT '',
  welcome_button_text     TEXT NOT NULL DEFAULT '',
  confirmation_message    TEXT NOT NULL DEFAULT '',
  goodbye_message         TEXT NOT NULL DEFAULT '',
  goodbye_button_text     TEXT NOT NULL DEFAULT '',
  goodbye_button_url      TEXT NOT NULL DEFAULT '',
  ai_enabled              BOOLEAN NOT NULL DEFAULT FALSE,
  ai_assistant_id         TEXT NOT NULL DEFAULT '',
  ai_provider             TEXT NOT NULL DEFAULT 'none',
  ai_model                TEXT NOT NULL DEFAULT '',
  ai_system_prompt        TEXT NOT NULL DEFAULT '',
  ai_settings             JSONB NOT NULL DEFAULT '{}',
  tokens_limit_total      BIGINT,
  tokens_input_used       BIGINT NOT NULL DEFAULT 0,
  tokens_output_used      BIGINT NOT NULL DEFAULT 0,
  token_notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
  created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	`CREATE TABLE IF NOT EXISTS subscribers (
  bot_id                 UUID NOT NULL REFERENCES user_bots(bot_id) ON DELETE CASCADE,
  user_id                BIGINT NOT NULL,
  chat_id                BIGINT NOT NULL DEFAULT 0,
  first_name             TEXT NOT NULL DEFAULT '',
  last_name              TEXT NOT NULL DEFAULT '',
  username               TEXT NOT NULL DEFAULT '',
  funnel_started_at      TIMESTAMPTZ,
  last_broadcast_message INT NOT NULL DEFAULT 0,
  funnel_enabled         BOOLEAN NOT NULL DEFAULT TRUE,
  is_active              BOOLEAN NOT NULL DEFAULT TRUE,
  joined_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (bot_id, user_id)
);`,
	`CREATE TABLE IF NOT EXISTS broadcast_sequences (
  sequence_id UUID PRIMARY KEY,
  bot_id      UUID NOT NULL UNIQUE REFERENCES user_bots(bot_id) ON DELETE CASCADE,
  is_enabled  BOOLEAN NOT NULL DEFAULT TRUE,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	`CREATE TABLE IF NOT EXISTS broadcast_messages (
  message_id           UUID PRIMARY KEY,
  sequence_id          UUID NOT NULL REFERENCES broadcast_sequences(sequence_id) ON DELETE CASCADE,
  message_number       INT NOT NULL,
  message_text         TEXT NOT NULL DEFAULT '',
  delay_seconds        BIGINT NOT NULL DEFAULT 0,
  media_file_id        TEXT NOT NULL DEFAULT '',
  media_type           TEXT NOT NULL DEFAULT 'none',
  media_file_unique_id TEXT NOT NULL DEFAULT '',
  media_file_size      BIGINT NOT NULL DEFAULT 0,
  media_filename       TEXT NOT NULL DEFAULT '',
  is_active            BOOLEAN NOT NULL DEFAULT TRUE,
  utm_campaign         TEXT NOT NULL DEFAULT '',
  utm_content          TEXT NOT NULL DEFAULT '',
  created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (sequence_id, message_number)
);`,
	`CREATE TABLE IF NOT EXISTS message_buttons (
  message_id  UUID NOT NULL REFERENCES broadcast_messages(message_id) ON DELETE CASCADE,
  position    INT NOT NULL,
  button_text TEXT NOT NULL,
  button_url  TEXT NOT NULL,
  PRIMARY KEY (message_id, position)
);`,
	`CREATE TABLE IF NOT EXISTS scheduled_messages (
  id            TEXT PRIMARY KEY,
  bot_id        UUID NOT NULL REFERENCES user_bots(bot_id) ON DELETE CASCADE,
  subscriber_id BIGINT NOT NULL,
  message_id    UUID NOT NULL REFERENCES broadcast_messages(message_id) ON DELETE CASCADE,
  scheduled_at  TIMESTAMPTZ NOT NULL,
  status        TEXT NOT NULL DEFAULT 'pending',
  error_message TEXT NOT NULL DEFAULT '',
  claimed_at    TIMESTAMPTZ,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (bot_id, subscriber_id, message_id)
);`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_due
  ON scheduled_messages (scheduled_at) WHERE status = 'pending';`,
	`CREATE TABLE IF NOT EXISTS mass_broadcasts (
  id            UUID PRIMARY KEY,
  bot_id        UUID NOT NULL REFERENCES user_bots(bot_id) ON DELETE CASCADE,
  created_by    BIGINT NOT NULL,
  title         TEXT NOT NULL DEFAULT '',
  message_text  TEXT NOT NULL DEFAULT '',
  media_file_id TEXT NOT NULL DEFAULT '',
  media_type    TEXT NOT NULL DEFAULT 'none',
  button_text   TEXT NOT NULL DEFAULT '',
  button_url    TEXT NOT NULL DEFAULT '',
  broadcast_type TEXT NOT NULL DEFAULT 'instant',
  scheduled_at  TIMESTAMPTZ,
  status        TEXT NOT NULL DEFAULT 'draft',
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  started_at    TIMESTAMPTZ,
  finished_at   TIMESTAMPTZ
);`,
	`CREATE TABLE IF NOT EXISTS broadcast_deliveries (
  id                  TEXT PRIMARY KEY,
  broadcast_id        UUID NOT NULL REFERENCES mass_broadcasts(id) ON DELETE CASCADE,
  user_id             BIGINT NOT NULL,
  status              TEXT NOT NULL DEFAULT 'pending',
  telegram_message_id INT,
  error_message       TEXT NOT NULL DEFAULT '',
  claimed_at          TIMESTAMPTZ,
  attempted_at        TIMESTAMPTZ,
  UNIQUE (broadcast_id, user_id)
);`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_pending
  ON broadcast_deliveries (broadcast_id) WHERE status = 'pending';`,
	`CREATE TABLE IF NOT EXISTS conversations (
  bot_id      UUID NOT NULL REFERENCES user_bots(bot_id) ON DELETE CASCADE,
  user_id     BIGINT NOT NULL,
  response_id TEXT NOT NULL DEFAULT '',
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (bot_id, user_id)
);`,
	`CREATE TABLE IF NOT EXISTS admin_broadcasts (
  id           UUID PRIMARY KEY,
  created_by   BIGINT NOT NULL,
  message_text TEXT NOT NULL,
  total        INT NOT NULL DEFAULT 0,
  sent         INT NOT NULL DEFAULT 0,
  failed       INT NOT NULL DEFAULT 0,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	`CREATE TABLE IF NOT EXISTS referral_transactions (
  id                TEXT PRIMARY KEY,
  referrer_user_id  BIGINT NOT NULL,
  referred_user_id  BIGINT NOT NULL,
  transaction_type  TEXT NOT NULL,
  payment_amount    NUMERIC(12,2) NOT NULL,
  commission_amount NUMERIC(12,2) NOT NULL,
  status            TEXT NOT NULL DEFAULT 'paid',
  invoice_id        BIGINT NOT NULL,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (referrer_user_id, invoice_id)
);`,
}

type addColumn struct {
	table      string
	column     string
	definition string
}

// addColumns lists columns introduced after the initial schema. New fields
// go here so older deployments pick them up on restart.
var addColumns = []addColumn{
	{"broadcast_messages", "utm_campaign", "TEXT NOT NULL DEFAULT ''"},
	{"broadcast_messages", "utm_content", "TEXT NOT NULL DEFAULT ''"},
	{"user_bots", "token_notification_sent", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"users", "total_referrals", "INT NOT NULL DEFAULT 0"},
	{"users", "referral_earnings", "NUMERIC(12,2) NOT NULL DEFAULT 0"},
	{"scheduled_messages", "claimed_at", "TIMESTAMPTZ"},
	{"broadcast_deliveries", "claimed_at", "TIMESTAMPTZ"},
}
