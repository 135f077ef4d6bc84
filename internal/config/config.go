// Package config loads Recommendy's configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then a
// .env file and the process environment. Command-line flags are applied on
// top by cmd/Recommendy.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/Recommendy/internal/util"
)

const (
	// DefaultStateDir is the default directory for Recommendy state data
	DefaultStateDir = "/var/lib/recommendy"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "recommendy.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAPIAddr is the default HTTP listen address
	DefaultAPIAddr = ":8080"
	// DefaultSessionTTL is how long idle sessions live in Redis
	DefaultSessionTTL = 24 * time.Hour
	// MemoryDSN selects the in-memory store
	MemoryDSN = "memory"
)

// Config is the complete service configuration.
type Config struct {
	StateDir string         `yaml:"state_dir"`
	LogLevel string         `yaml:"log_level"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Places   PlacesConfig   `yaml:"places"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Twilio   TwilioConfig   `yaml:"twilio"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig selects the record store. A postgres URL or keyword DSN
// selects PostgreSQL, "memory" the in-memory store, anything else a SQLite path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig moves dialogue sessions to Redis when Addr is set.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type PlacesConfig struct {
	APIKey  string `yaml:"api_key"`
	Details bool   `yaml:"details"`
}

type WhatsAppConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DBDSN       string `yaml:"db_dsn"`
	QROutput    string `yaml:"qr_output"`
	NumericCode bool   `yaml:"numeric_code"`
}

type TwilioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	WebhookURL string `yaml:"webhook_url"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		StateDir: DefaultStateDir,
		LogLevel: "debug",
		API:      APIConfig{Addr: DefaultAPIAddr},
		Redis:    RedisConfig{SessionTTL: DefaultSessionTTL},
		Places:   PlacesConfig{Details: true},
	}
}

// Load reads the YAML file at path (a missing file keeps the defaults), then
// .env and environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config.Load: config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			slog.Debug("config.Load: config file loaded", "path", path)
		}
	}

	if err := godotenv.Load(); err != nil {
		slog.Debug("config.Load: no .env file loaded", "error", err)
	} else {
		slog.Debug("config.Load: .env file loaded")
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	c.StateDir = util.StringEnv("RECOMMENDY_STATE_DIR", c.StateDir)
	c.LogLevel = util.StringEnv("RECOMMENDY_LOG_LEVEL", c.LogLevel)
	c.API.Addr = util.StringEnv("API_ADDR", c.API.Addr)
	c.Database.DSN = util.StringEnv("DATABASE_URL", c.Database.DSN)

	c.Redis.Addr = util.StringEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = util.StringEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = util.ParseIntEnv("REDIS_DB", c.Redis.DB)
	c.Redis.SessionTTL = util.ParseDurationEnv("SESSION_TTL", c.Redis.SessionTTL)

	c.OpenAI.APIKey = util.StringEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.Model = util.StringEnv("OPENAI_MODEL", c.OpenAI.Model)
	c.Places.APIKey = util.StringEnv("GOOGLE_API_KEY", c.Places.APIKey)
	c.Places.Details = util.ParseBoolEnv("PLACES_DETAILS", c.Places.Details)

	c.WhatsApp.Enabled = util.ParseBoolEnv("WHATSAPP_ENABLED", c.WhatsApp.Enabled)
	c.WhatsApp.DBDSN = util.StringEnv("WHATSAPP_DB_DSN", c.WhatsApp.DBDSN)

	c.Twilio.Enabled = util.ParseBoolEnv("TWILIO_ENABLED", c.Twilio.Enabled)
	c.Twilio.AccountSID = util.StringEnv("TWILIO_ACCOUNT_SID", c.Twilio.AccountSID)
	c.Twilio.AuthToken = util.StringEnv("TWILIO_AUTH_TOKEN", c.Twilio.AuthToken)
	c.Twilio.FromNumber = util.StringEnv("TWILIO_FROM_NUMBER", c.Twilio.FromNumber)
	c.Twilio.WebhookURL = util.StringEnv("TWILIO_WEBHOOK_URL", c.Twilio.WebhookURL)
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Redis.SessionTTL < 0 {
		return fmt.Errorf("redis session_ttl must not be negative")
	}
	if c.Twilio.Enabled && (c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.FromNumber == "") {
		return fmt.Errorf("twilio enabled but account_sid, auth_token or from_number is missing")
	}
	return nil
}

// ResolvePaths fills database locations left empty from the state directory.
// Call it after flags have been applied.
func (c *Config) ResolvePaths() {
	if c.Database.DSN == "" {
		c.Database.DSN = filepath.Join(c.StateDir, DefaultDBFileName)
	}
	if c.WhatsApp.DBDSN == "" {
		c.WhatsApp.DBDSN = "file:" + filepath.Join(c.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
}

// ParseLogLevel maps debug/info/warn/error to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelDebug, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}
