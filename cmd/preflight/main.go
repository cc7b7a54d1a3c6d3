// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/logging"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load()
	if err != nil {
		fail(err.Error())
	}

	if len(cfg.JWTSecret) < 32 {
		fail("JWT_SECRET is missing or shorter than 32 characters.")
	}
	ok("JWT_SECRET present")

	if _, err := logging.New(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel}); err != nil {
		fail("logging: " + err.Error())
	}
	ok("LOG_DIR=" + cfg.LogDir + " LOG_LEVEL=" + cfg.LogLevel)
	ok("API_ADDR=" + cfg.Addr)

	switch db := cfg.DatabaseURL; {
	case db == "":
		warn("DATABASE_URL empty; the API will keep everything in memory.")
	case strings.HasPrefix(db, "postgres://"), strings.HasPrefix(db, "postgresql://"):
		ok("DATABASE_URL is postgres")
	case strings.HasPrefix(db, "sqlite://"), strings.HasSuffix(db, ".db"), strings.HasSuffix(db, ".sqlite"):
		ok("DATABASE_URL is sqlite")
	default:
		fail("DATABASE_URL scheme not supported (postgres:// or sqlite://).")
	}

	if cfg.TelegramBotToken == "" && cfg.SlackWebhookURL == "" {
		warn("Neither TELEGRAM_BOT_TOKEN nor SLACK_WEBHOOK_URL set; alerts will only be logged.")
	} else {
		ok("alert channel configured")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; browsers will be blocked by CORS for cross-origin requests.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.RetentionDays < 1 || cfg.MaxConcurrentChecks < 1 {
		fail("RETENTION_DAYS and MAX_CONCURRENT_CHECKS must be positive.")
	}
	ok(fmt.Sprintf("workers=%d retention=%dd resync=%s", cfg.MaxConcurrentChecks, cfg.RetentionDays, cfg.ResyncInterval))

	ok("preflight passed")
}
