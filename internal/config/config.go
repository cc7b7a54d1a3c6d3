package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr           string        `yaml:"api_addr"`  // e.g. "127.0.0.1:8080" or ":8080" in Docker
	LogDir         string        `yaml:"log_dir"`
	LogLevel       string        `yaml:"log_level"`
	LogStdout      bool          `yaml:"log_stdout"`
	DatabaseURL    string        `yaml:"database_url"` // empty: memory, postgres://..., sqlite://path
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins"`

	MaxConcurrentChecks int           `yaml:"max_concurrent_checks"`
	ResyncInterval      time.Duration `yaml:"resync_interval"`
	RetentionDays       int           `yaml:"retention_days"`
	HistoryCap          int           `yaml:"history_cap"`
	RetryAttempts       int           `yaml:"retry_attempts"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramAPIBase  string `yaml:"telegram_api_base"`
	SlackWebhookURL  string `yaml:"slack_webhook_url"`
	AlertQueue       int    `yaml:"alert_queue"`

	AuthRPM       int           `yaml:"auth_rpm"`
	AuthBurst     int           `yaml:"auth_burst"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

func Defaults() Config {
	return Config{
		Addr:                "127.0.0.1:8080",
		LogDir:              "logs",
		LogLevel:            "info",
		TokenTTL:            24 * time.Hour,
		AllowedOrigins:      []string{"http://localhost:3000"},
		MaxConcurrentChecks: 8,
		ResyncInterval:      time.Minute,
		RetentionDays:       30,
		HistoryCap:          10000,
		RetryAttempts:       2,
		RetryBackoff:        300 * time.Millisecond,
		AlertQueue:          256,
		AuthRPM:             30,
		AuthBurst:           10,
		ShutdownGrace:       10 * time.Second,
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then the environment. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// FromEnv is Defaults overridden by the environment only.
func FromEnv() Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	str(&c.Addr, "API_ADDR")
	str(&c.LogDir, "LOG_DIR")
	str(&c.LogLevel, "LOG_LEVEL")
	boolean(&c.LogStdout, "LOG_STDOUT")
	str(&c.DatabaseURL, "DATABASE_URL")
	str(&c.JWTSecret, "JWT_SECRET")
	duration(&c.TokenTTL, "TOKEN_TTL")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitCSV(v)
	}

	positive(&c.MaxConcurrentChecks, "MAX_CONCURRENT_CHECKS")
	duration(&c.ResyncInterval, "RESYNC_INTERVAL")
	positive(&c.RetentionDays, "RETENTION_DAYS")
	positive(&c.HistoryCap, "HISTORY_CAP")
	positive(&c.RetryAttempts, "RETRY_ATTEMPTS")
	if v := os.Getenv("RETRY_BACKOFF_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			c.RetryBackoff = time.Duration(ms) * time.Millisecond
		}
	}

	str(&c.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	str(&c.TelegramAPIBase, "TELEGRAM_API_BASE")
	str(&c.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	positive(&c.AlertQueue, "ALERT_QUEUE")

	positive(&c.AuthRPM, "AUTH_RPM")
	positive(&c.AuthBurst, "AUTH_BURST")
	duration(&c.ShutdownGrace, "SHUTDOWN_GRACE")
}

// Retention is the history retention window.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func boolean(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func positive(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

// duration accepts Go durations ("90s") or plain seconds ("90").
func duration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
