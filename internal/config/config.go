// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type MasterBotConfig struct {
	Token       string `yaml:"token"`
	AdminChatID int64  `yaml:"admin_chat_id"` // super admin
	Workers     int    `yaml:"workers"`       // polling workers
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type RobokassaConfig struct {
	MerchantLogin string  `yaml:"merchant_login"`
	Password1     string  `yaml:"password1"`
	Password2     string  `yaml:"password2"`
	PaymentAmount float64 `yaml:"payment_amount"`
	TokensAmount  float64 `yaml:"tokens_amount"`
	IsTest        bool    `yaml:"is_test"`
}

type SubscriptionConfig struct {
	TrialDays         int   `yaml:"trial_days"`
	TrialEnabled      bool  `yaml:"trial_enabled"`
	PaidDays          int   `yaml:"paid_days"` // granted per payment
	TokensPerPurchase int64 `yaml:"tokens_per_purchase"`
}

type AIConfig struct {
	OpenAIKey      string `yaml:"openai_key"`
	ChatForYouURL  string `yaml:"chatforyou_url"`
	ProTalkURL     string `yaml:"protalk_url"`
	DefaultModel   string `yaml:"default_model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DispatchConfig struct {
	FunnelInterval    time.Duration `yaml:"funnel_interval"`
	FunnelBatch       int           `yaml:"funnel_batch"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	BroadcastBatch    int           `yaml:"broadcast_batch"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	// PerBotSendGap is the minimum spacing between sends of one bot.
	PerBotSendGap time.Duration `yaml:"per_bot_send_gap"`
	// GlobalRate caps admin broadcast throughput in messages per second.
	GlobalRate float64 `yaml:"global_rate"`
}

type WebConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type Config struct {
	MasterBot    MasterBotConfig    `yaml:"master_bot"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Robokassa    RobokassaConfig    `yaml:"robokassa"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	AI           AIConfig           `yaml:"ai"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Web          WebConfig          `yaml:"web"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, applies environment overrides for the
// deployment keys, fills defaults, and validates the minimum set.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.MasterBot.Token == "" {
		return nil, errors.New("master_bot.token is required (MASTER_BOT_TOKEN)")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required (DATABASE_URL)")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&c.MasterBot.Token, "MASTER_BOT_TOKEN")
	setStr(&c.Database.URL, "DATABASE_URL")
	setStr(&c.Redis.URL, "REDIS_URL")
	setStr(&c.Robokassa.MerchantLogin, "ROBOKASSA_MERCHANT_LOGIN")
	setStr(&c.Robokassa.Password1, "ROBOKASSA_PASSWORD1")
	setStr(&c.Robokassa.Password2, "ROBOKASSA_PASSWORD2")
	setStr(&c.AI.OpenAIKey, "OPENAI_API_KEY")

	if v := os.Getenv("ROBOKASSA_PAYMENT_AMOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Robokassa.PaymentAmount = f
		}
	}
	if v := os.Getenv("ROBOKASSA_TOKENS_AMOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Robokassa.TokensAmount = f
		}
	}
	if v := os.Getenv("ROBOKASSA_IS_TEST"); v != "" {
		c.Robokassa.IsTest = v == "1" || v == "true"
	}
	if v := os.Getenv("TOKENS_PER_PURCHASE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Subscription.TokensPerPurchase = n
		}
	}
	if v := os.Getenv("TRIAL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Subscription.TrialDays = n
		}
	}
	if v := os.Getenv("TRIAL_ENABLED"); v != "" {
		c.Subscription.TrialEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("ADMIN_CHAT_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MasterBot.AdminChatID = n
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Web.Port = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.MasterBot.Workers <= 0 {
		c.MasterBot.Workers = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = time.Hour
	}
	if c.Subscription.TrialDays <= 0 {
		c.Subscription.TrialDays = 3
	}
	if c.Subscription.PaidDays <= 0 {
		c.Subscription.PaidDays = 30
	}
	if c.Subscription.TokensPerPurchase <= 0 {
		c.Subscription.TokensPerPurchase = 1_000_000
	}
	if c.AI.DefaultModel == "" {
		c.AI.DefaultModel = "gpt-4o-mini"
	}
	if c.AI.ChatForYouURL == "" {
		c.AI.ChatForYouURL = "https://api.chatforyou.ru/v1"
	}
	if c.AI.ProTalkURL == "" {
		c.AI.ProTalkURL = "https://api.pro-talk.ru/api/v1.0"
	}
	if c.AI.RequestTimeout <= 0 {
		c.AI.RequestTimeout = 60 * time.Second
	}
	if c.Dispatch.FunnelInterval <= 0 {
		c.Dispatch.FunnelInterval = 30 * time.Second
	}
	if c.Dispatch.FunnelBatch <= 0 {
		c.Dispatch.FunnelBatch = 100
	}
	if c.Dispatch.BroadcastInterval <= 0 {
		c.Dispatch.BroadcastInterval = 10 * time.Second
	}
	if c.Dispatch.BroadcastBatch <= 0 {
		c.Dispatch.BroadcastBatch = 50
	}
	if c.Dispatch.ReconcileInterval <= 0 {
		c.Dispatch.ReconcileInterval = 30 * time.Second
	}
	if c.Dispatch.PerBotSendGap <= 0 {
		c.Dispatch.PerBotSendGap = 100 * time.Millisecond
	}
	if c.Dispatch.GlobalRate <= 0 {
		c.Dispatch.GlobalRate = 25
	}
	if c.Web.Port <= 0 {
		c.Web.Port = 8080
	}
}
