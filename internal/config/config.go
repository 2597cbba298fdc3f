package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	WebhookPath   string `env:"WEBHOOK_PATH" envDefault:"/telegram/webhook"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	BotToken           string `env:"TELEGRAM_BOT_TOKEN,required"`
	TelegramAPIBaseURL string `env:"TELEGRAM_API_BASE_URL" envDefault:"https://api.telegram.org"`

	RedisURL    string `env:"REDIS_URL,required"`
	DatabaseURL string `env:"DATABASE_URL"`

	SheetID           string `env:"SHEET_ID,required"`
	SheetTab          string `env:"SHEET_TAB" envDefault:"Shops"`
	SheetsClientEmail string `env:"SHEETS_CLIENT_EMAIL,required"`
	SheetsPrivateKey  string `env:"SHEETS_PRIVATE_KEY,required"`
	SheetsTokenURL    string `env:"SHEETS_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	SheetsBaseURL     string `env:"SHEETS_BASE_URL" envDefault:"https://sheets.googleapis.com"`

	GeocoderBaseURL   string `env:"GEOCODER_BASE_URL" envDefault:"https://nominatim.openstreetmap.org"`
	GeocoderUserAgent string `env:"GEOCODER_USER_AGENT,required"`

	StateTTLHours         int `env:"STATE_TTL_HOURS" envDefault:"24"`
	GeocodeCacheTTLHours  int `env:"GEOCODE_CACHE_TTL_HOURS" envDefault:"720"`
	ResultCacheTTLMinutes int `env:"RESULT_CACHE_TTL_MINUTES" envDefault:"15"`
	SheetCacheTTLMinutes  int `env:"SHEET_CACHE_TTL_MINUTES" envDefault:"10"`
	JournalRetentionDays  int `env:"JOURNAL_RETENTION_DAYS" envDefault:"90"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) StateTTL() time.Duration {
	return time.Duration(c.StateTTLHours) * time.Hour
}

func (c *Config) GeocodeCacheTTL() time.Duration {
	return time.Duration(c.GeocodeCacheTTLHours) * time.Hour
}

func (c *Config) ResultCacheTTL() time.Duration {
	return time.Duration(c.ResultCacheTTLMinutes) * time.Minute
}

func (c *Config) SheetCacheTTL() time.Duration {
	return time.Duration(c.SheetCacheTTLMinutes) * time.Minute
}

func (c *Config) JournalRetention() time.Duration {
	return time.Duration(c.JournalRetentionDays) * 24 * time.Hour
}

func (c *Config) Validate(isProduction bool) error {
	if !strings.HasPrefix(c.WebhookPath, "/") {
		return fmt.Errorf("WEBHOOK_PATH must start with /")
	}

	if isProduction {
		if c.WebhookSecret == "" {
			log.Warn().Msg("WEBHOOK_SECRET is empty in production: webhook secret verification disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.DatabaseURL == "" {
			log.Warn().Msg("DATABASE_URL is empty: the operations journal is disabled")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
