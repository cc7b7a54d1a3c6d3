package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/auth"
	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/httpapi"
	"github.com/hamed0406/sitewatch/internal/logging"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo/backend"
	"github.com/hamed0406/sitewatch/internal/scheduler"
	"github.com/hamed0406/sitewatch/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, kind, err := backend.Open(ctx, cfg.DatabaseURL, cfg.HistoryCap, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()
	logger.Info("store_ready", zap.String("kind", kind))

	checker := &probe.DNSAnnotator{
		Inner: &probe.RetryChecker{
			Inner:    probe.NewHTTPChecker(),
			Attempts: cfg.RetryAttempts,
			Backoff:  cfg.RetryBackoff,
		},
	}
	agg := stats.New(store, logger, cfg.Retention())

	var notifiers notify.Multi
	tg := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAPIBase)
	if tg != nil {
		notifiers = append(notifiers, tg)
	}
	if sl := notify.NewSlack(cfg.SlackWebhookURL); sl != nil {
		notifiers = append(notifiers, sl)
	}
	if len(notifiers) == 0 {
		logger.Warn("alerts_disabled", zap.String("hint", "set TELEGRAM_BOT_TOKEN or SLACK_WEBHOOK_URL"))
	}
	alerter := scheduler.NewAlerter(logger, store, notifiers, cfg.AlertQueue)

	sched := scheduler.New(logger, store, checker, agg, alerter, scheduler.Config{
		Workers: cfg.MaxConcurrentChecks,
		Resync:  cfg.ResyncInterval,
	})

	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("jwt_secret_generated", zap.String("hint", "tokens will not survive a restart; set JWT_SECRET"))
	}
	api := httpapi.NewServer(logger, store, sched, agg, auth.NewTokens(secret, cfg.TokenTTL), httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AuthRPM:        cfg.AuthRPM,
		AuthBurst:      cfg.AuthBurst,
	})
	if tg != nil {
		api.Chats = tg
	}
	sched.Subscribe(api.Events.Publish)

	if err := sched.Start(ctx); err != nil {
		return err
	}
	go alerter.Run(ctx)
	go agg.RunJanitor(ctx, time.Hour)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		sched.Wait()
		return err
	}

	logger.Info("shutdown_started", zap.Duration("grace", cfg.ShutdownGrace))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	sched.Wait()
	logger.Info("shutdown_complete")
	return err
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
