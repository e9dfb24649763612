// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token         string        `yaml:"token"`
	Mode          string        `yaml:"mode"` // polling | webhook | noop
	Username      string        `yaml:"username"`
	Workers       int           `yaml:"workers"`
	AdminID       int64         `yaml:"admin_id"`
	ChannelID     int64         `yaml:"channel_id"`
	WebAppURL     string        `yaml:"webapp_url"`
	ChannelLink   string        `yaml:"channel_link"`
	SupportLink   string        `yaml:"support_link"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Language      string        `yaml:"language"`
	RateLimit     int           `yaml:"rate_limit"` // updates per user per window, 0 disables
	RateWindow    time.Duration `yaml:"rate_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port         int           `yaml:"port"`
	PublicURL    string        `yaml:"public_url"`
	AdminAPIKey  string        `yaml:"admin_api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	AccessTTL    time.Duration `yaml:"access_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres | memory
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Sessions stores conversation sessions and chat locks in Redis instead of process memory.
	Sessions bool `yaml:"sessions"`
	// UserCacheTTL caches Postgres user lookups in Redis; 0 disables the cache.
	UserCacheTTL time.Duration `yaml:"user_cache_ttl"`
}

type PushConfig struct {
	TokenTTL       time.Duration `yaml:"token_ttl"`
	AuthTimeout    time.Duration `yaml:"auth_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	SendBuffer     int           `yaml:"send_buffer"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type PaymentMethodConfig struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Emoji         string  `yaml:"emoji"`
	MinWithdrawal float64 `yaml:"min_withdrawal"`
}

type PromotionTypeConfig struct {
	AdCost       float64 `yaml:"ad_cost"`
	RewardAmount float64 `yaml:"reward_amount"`
	TotalSlots   int     `yaml:"total_slots"`
}

type PromotionsConfig struct {
	Subscribe PromotionTypeConfig `yaml:"subscribe"`
	Bot       PromotionTypeConfig `yaml:"bot"`
}

type BroadcastConfig struct {
	Delay time.Duration `yaml:"delay"`
}

type ClaimsConfig struct {
	VerifyDelay time.Duration `yaml:"verify_delay"`
}

type SessionsConfig struct {
	// IdleTTL expires abandoned sessions; zero keeps them until a terminal transition.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

type SchedulerConfig struct {
	StatsDigestCron string `yaml:"stats_digest_cron"`
}

type Config struct {
	Bot        BotConfig             `yaml:"bot"`
	Log        LogConfig             `yaml:"log"`
	HTTP       HTTPConfig            `yaml:"http"`
	Database   DatabaseConfig        `yaml:"database"`
	Redis      RedisConfig           `yaml:"redis"`
	Push       PushConfig            `yaml:"push"`
	AMQP       AMQPConfig            `yaml:"amqp"`
	Payments   []PaymentMethodConfig `yaml:"payments"`
	Promotions PromotionsConfig      `yaml:"promotions"`
	Broadcast  BroadcastConfig       `yaml:"broadcast"`
	Claims     ClaimsConfig          `yaml:"claims"`
	Sessions   SessionsConfig        `yaml:"sessions"`
	Scheduler  SchedulerConfig       `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// envOverrides lets deployments keep secrets out of the YAML file.
type envOverrides struct {
	BotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	AdminID     int64  `env:"TELEGRAM_ADMIN_ID"`
	ChannelID   int64  `env:"TELEGRAM_CHANNEL_ID"`
	BotUsername string `env:"BOT_USERNAME"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	AMQPURL     string `env:"AMQP_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	AdminAPIKey string `env:"ADMIN_API_KEY"`
	WebAppURL   string `env:"WEBAPP_URL"`
	PublicURL   string `env:"PUBLIC_URL"`
}

// LoadConfig reads the YAML file at path, applies environment overrides and defaults, and validates.
// A missing file is allowed when the environment supplies the required values.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse builds a Config from YAML bytes; see LoadConfig.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if len(b) > 0 {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&c.Bot.Token, o.BotToken)
	setStr(&c.Bot.Username, o.BotUsername)
	setStr(&c.Bot.WebAppURL, o.WebAppURL)
	setStr(&c.Database.URL, o.DatabaseURL)
	setStr(&c.Redis.URL, o.RedisURL)
	setStr(&c.AMQP.URL, o.AMQPURL)
	setStr(&c.HTTP.JWTSecret, o.JWTSecret)
	setStr(&c.HTTP.AdminAPIKey, o.AdminAPIKey)
	setStr(&c.HTTP.PublicURL, o.PublicURL)
	if o.AdminID != 0 {
		c.Bot.AdminID = o.AdminID
	}
	if o.ChannelID != 0 {
		c.Bot.ChannelID = o.ChannelID
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Bot.Mode == "" {
		c.Bot.Mode = "polling"
	}
	c.Bot.Mode = strings.ToLower(c.Bot.Mode)
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 8
	}
	if c.Bot.Username == "" {
		c.Bot.Username = "LightningSatsbot"
	}
	if c.Bot.Language == "" {
		c.Bot.Language = "en"
	}
	if c.Bot.RateWindow <= 0 {
		c.Bot.RateWindow = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.AccessTTL <= 0 {
		c.HTTP.AccessTTL = 24 * time.Hour
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Push.TokenTTL <= 0 {
		c.Push.TokenTTL = time.Minute
	}
	if c.Push.AuthTimeout <= 0 {
		c.Push.AuthTimeout = 10 * time.Second
	}
	if c.Push.SendTimeout <= 0 {
		c.Push.SendTimeout = 2 * time.Second
	}
	if c.Push.WriteWait <= 0 {
		c.Push.WriteWait = 10 * time.Second
	}
	if c.Push.PingPeriod <= 0 {
		c.Push.PingPeriod = 30 * time.Second
	}
	if c.Push.SendBuffer <= 0 {
		c.Push.SendBuffer = 32
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "lightning.events"
	}
	if len(c.Payments) == 0 {
		c.Payments = DefaultPaymentMethods()
	}
	if c.Promotions.Subscribe.TotalSlots <= 0 {
		c.Promotions.Subscribe = PromotionTypeConfig{AdCost: 0.01, RewardAmount: 0.00025, TotalSlots: 1000}
	}
	if c.Promotions.Bot.TotalSlots <= 0 {
		c.Promotions.Bot = PromotionTypeConfig{AdCost: 0.01, RewardAmount: 0.00035, TotalSlots: 1000}
	}
	if c.Broadcast.Delay <= 0 {
		c.Broadcast.Delay = 100 * time.Millisecond
	}
	if c.Claims.VerifyDelay <= 0 {
		c.Claims.VerifyDelay = 3 * time.Second
	}
}

// DefaultPaymentMethods is the cashout table used when the config lists none.
func DefaultPaymentMethods() []PaymentMethodConfig {
	return []PaymentMethodConfig{
		{ID: "telegram_stars", Name: "Telegram Stars", Emoji: "⭐", MinWithdrawal: 1.00},
		{ID: "tether_polygon", Name: "Tether (Polygon)", Emoji: "🔶", MinWithdrawal: 0.50},
		{ID: "ton_coin", Name: "TON Coin", Emoji: "💎", MinWithdrawal: 0.35},
		{ID: "litecoin", Name: "Litecoin", Emoji: "🪙", MinWithdrawal: 0.05},
	}
}

// Validate reports the first missing or inconsistent required setting.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	switch c.Bot.Mode {
	case "polling", "noop":
	case "webhook":
		if c.HTTP.PublicURL == "" {
			return errors.New("http.public_url is required in webhook mode")
		}
		if c.Bot.WebhookSecret == "" {
			return errors.New("bot.webhook_secret is required in webhook mode")
		}
	default:
		return fmt.Errorf("bot.mode %q is not supported", c.Bot.Mode)
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Redis.Sessions && c.Redis.URL == "" {
		return errors.New("redis.url is required when redis.sessions is enabled")
	}
	if c.Redis.UserCacheTTL > 0 && c.Redis.URL == "" {
		return errors.New("redis.url is required when redis.user_cache_ttl is set")
	}
	if c.HTTP.JWTSecret == "" && !c.Runtime.Dev {
		return errors.New("http.jwt_secret is required")
	}
	seen := map[string]struct{}{}
	for _, m := range c.Payments {
		if m.ID == "" || m.Name == "" {
			return errors.New("payments entries need id and name")
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("payments: duplicate id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}
