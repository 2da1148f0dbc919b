package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MercadoPagoConfig struct {
	AccessToken     string `yaml:"access_token"`
	NotificationURL string `yaml:"notification_url"`
}

type PaymentConfig struct {
	MercadoPago MercadoPagoConfig `yaml:"mercadopago"`
}

type ServerConfig struct {
	Port            int    `yaml:"port"`
	SchedulerSecret string `yaml:"scheduler_secret"`
	AdminAPIKey     string `yaml:"admin_api_key"`
	SessionSecret   string `yaml:"session_secret"`
}

type SchedulerConfig struct {
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	ReminderFromDays int           `yaml:"reminder_from_days"`
	ReminderToDays   int           `yaml:"reminder_to_days"`
}

type AccessConfig struct {
	InviteTTL      time.Duration `yaml:"invite_ttl"`
	InterCallDelay time.Duration `yaml:"inter_call_delay"`
}

// ProductsConfig pins the product IDs the flows branch on: trial expiry
// funnels into a paid-plan offer keyed on these.
type ProductsConfig struct {
	TrialID    string `yaml:"trial_id"`
	MonthlyID  string `yaml:"monthly_id"`
	LifetimeID string `yaml:"lifetime_id"`
}

// BroadcastConfig paces mass sends. The default keeps the bot inside
// Telegram's ~30 messages/second bot-wide ceiling with margin.
type BroadcastConfig struct {
	InterSendDelay time.Duration `yaml:"inter_send_delay"`
}

type ReferralConfig struct {
	RewardDays int `yaml:"reward_days"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Access    AccessConfig    `yaml:"access"`
	Products  ProductsConfig  `yaml:"products"`
	Referral  ReferralConfig  `yaml:"referral"`
	Broadcast BroadcastConfig `yaml:"broadcast"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads and validates the YAML config file.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = time.Hour
	}
	if cfg.Scheduler.ReminderFromDays <= 0 {
		cfg.Scheduler.ReminderFromDays = 2
	}
	if cfg.Scheduler.ReminderToDays <= cfg.Scheduler.ReminderFromDays {
		cfg.Scheduler.ReminderToDays = cfg.Scheduler.ReminderFromDays + 1
	}
	if cfg.Access.InviteTTL <= 0 {
		cfg.Access.InviteTTL = 2 * time.Hour
	}
	if cfg.Access.InterCallDelay <= 0 {
		cfg.Access.InterCallDelay = 200 * time.Millisecond
	}
	if cfg.Referral.RewardDays <= 0 {
		cfg.Referral.RewardDays = 7
	}
	if cfg.Broadcast.InterSendDelay <= 0 {
		cfg.Broadcast.InterSendDelay = 40 * time.Millisecond
	}

	// Minimal validation
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Payment.MercadoPago.AccessToken == "" {
		return nil, errors.New("payment.mercadopago.access_token is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
