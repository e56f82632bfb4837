package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"settlement/internal/command"
	"settlement/internal/core"
)

type Config struct {
	// Telegram
	TelegramBotToken string `koanf:"TELEGRAM_BOT_TOKEN"`
	TelegramDebug    bool   `koanf:"TELEGRAM_DEBUG"`

	// Backend selection
	DataBackend string `koanf:"DATA_BACKEND"`

	// Database
	SQLiteDBPath string `koanf:"SQLITE_DB_PATH"`
	PostgresURL  string `koanf:"POSTGRES_URL"`
	// SeedFile preloads the memory backend.
	SeedFile string `koanf:"SEED_FILE"`

	// AMQP
	AMQPURL      string `koanf:"AMQP_URL"`
	AMQPExchange string `koanf:"AMQP_EXCHANGE"`
	AMQPQueue    string `koanf:"AMQP_QUEUE"`

	// Google Sheets mirror
	GoogleSpreadsheetID   string `koanf:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName       string `koanf:"GOOGLE_SHEET_NAME"`
	GoogleCredentialsFile string `koanf:"GOOGLE_CREDENTIALS_FILE"`
	SheetsRowCacheSize    int    `koanf:"SHEETS_ROW_CACHE_SIZE"`

	// Ledger semantics
	// Timezone is the zone stored (already shifted) times are read in to
	// pick calendar days. With the default +3h shift, UTC days are Moscow
	// days.
	Timezone  string        `koanf:"TIMEZONE"`
	TimeShift time.Duration `koanf:"TIME_SHIFT"`
	Payday    int           `koanf:"PAYDAY"`

	// Logging
	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`
}

// Defaults returns the configuration used for unset variables.
func Defaults() Config {
	return Config{
		DataBackend:        "sqlite",
		SQLiteDBPath:       "./data/settlement.db",
		AMQPExchange:       "settlement",
		AMQPQueue:          "expense_events",
		GoogleSheetName:    "Expenses",
		SheetsRowCacheSize: 1000,
		Timezone:           "UTC",
		TimeShift:          core.DefaultTimeShift,
		Payday:             command.DefaultPayday,
		LogLevel:           "INFO",
		LogFormat:          "text",
	}
}

// Load reads .env (if present) and the process environment on top of
// Defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(env.ProviderWithValue("", ".", skipEmpty))
}

// skipEmpty drops variables set to the empty string so they keep their
// default.
func skipEmpty(key, value string) (string, interface{}) {
	if value == "" {
		return "", nil
	}
	return key, value
}

// LoadFrom unmarshals the given provider on top of Defaults.
func LoadFrom(p koanf.Provider) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(p, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DataBackend = strings.ToLower(strings.TrimSpace(cfg.DataBackend))
	return &cfg, nil
}

// Location resolves Timezone. Call Validate first.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AMQPEnabled reports whether expense events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// SheetsEnabled reports whether the Google Sheets mirror is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

var validBackends = []string{"memory", "sqlite", "postgres"}

// ValidateBot validates the settings needed by the bot process.
func (c *Config) ValidateBot() error {
	var errors []string
	if c.TelegramBotToken == "" {
		errors = append(errors, "TELEGRAM_BOT_TOKEN is required")
	}
	return c.validate(errors)
}

// ValidateWorker validates the settings needed by the sheets mirror worker.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the worker")
	}
	if c.GoogleCredentialsFile == "" {
		errors = append(errors, "GOOGLE_CREDENTIALS_FILE is required for the worker")
	} else if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
		errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
	}
	if c.SheetsRowCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sheets row cache size %d: must be at least 1", c.SheetsRowCacheSize))
	}
	return c.validate(errors)
}

// Validate validates the settings shared by every process.
func (c *Config) Validate() error {
	return c.validate(nil)
}

func (c *Config) validate(errors []string) error {
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresURL == "" {
			errors = append(errors, "POSTGRES_URL is required when using postgres backend")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}
	if c.TimeShift < -24*time.Hour || c.TimeShift > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid time shift %v: must be within 24 hours", c.TimeShift))
	}
	if c.Payday < 1 || c.Payday > 28 {
		errors = append(errors, fmt.Sprintf("invalid payday %d: must be between 1 and 28", c.Payday))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}
