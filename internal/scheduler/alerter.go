package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/repo"
)

const defaultAlertQueue = 256

// Alerter turns state transitions into notifications. Dispatch only queues;
// Run delivers. Delivery failures are logged and dropped.
type Alerter struct {
	logger   *zap.Logger
	accounts repo.AccountStore
	notifier notify.Notifier
	queue    chan domain.AlertEvent
	timeout  time.Duration
}

func NewAlerter(logger *zap.Logger, accounts repo.AccountStore, notifier notify.Notifier, queueSize int) *Alerter {
	if queueSize < 1 {
		queueSize = defaultAlertQueue
	}
	return &Alerter{
		logger:   logger,
		accounts: accounts,
		notifier: notifier,
		queue:    make(chan domain.AlertEvent, queueSize),
		timeout:  15 * time.Second,
	}
}

func (a *Alerter) Dispatch(ev domain.AlertEvent) {
	select {
	case a.queue <- ev:
	default:
		a.logger.Warn("alert_dropped",
			zap.String("target_id", string(ev.Target.ID)),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.queue:
			a.deliver(ctx, ev)
		}
	}
}

func (a *Alerter) deliver(ctx context.Context, ev domain.AlertEvent) {
	msg := Format(ev)
	msg.ChatID = a.destination(ctx, ev.Target)

	sctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	err := a.notifier.Send(sctx, msg)

	log := a.logger.With(
		zap.String("target_id", string(ev.Target.ID)),
		zap.String("kind", string(ev.Kind)),
	)
	switch {
	case err == nil:
		log.Info("alert_sent", zap.Bool("telegram", msg.ChatID != ""))
	case onlyMissingDestination(err):
		log.Debug("alert_no_destination")
	default:
		log.Warn("alert_send_error", zap.Error(err))
	}
}

// onlyMissingDestination reports whether every combined error is a missing
// chat id.
func onlyMissingDestination(err error) bool {
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, notify.ErrNoDestination) {
			return false
		}
	}
	return true
}

// destination is the target's chat id, else the owner's default.
func (a *Alerter) destination(ctx context.Context, t domain.Target) string {
	if t.AlertChatID != nil && strings.TrimSpace(*t.AlertChatID) != "" {
		return *t.AlertChatID
	}
	if a.accounts == nil {
		return ""
	}
	acc, err := a.accounts.GetAccount(ctx, t.OwnerID)
	if err != nil {
		a.logger.Warn("alert_owner_lookup_error", zap.String("owner_id", string(t.OwnerID)), zap.Error(err))
		return ""
	}
	if acc.DefaultTelegramChatID != nil {
		return *acc.DefaultTelegramChatID
	}
	return ""
}

// Format renders the alert as Markdown.
func Format(ev domain.AlertEvent) notify.Message {
	t := ev.Target
	at := ev.At.UTC().Format("2006-01-02 15:04:05")
	if ev.Kind == domain.AlertRecovered {
		rt := "n/a"
		if ev.Outcome.ResponseTimeMS != nil {
			rt = fmt.Sprintf("%.0f ms", *ev.Outcome.ResponseTimeMS)
		}
		return notify.Message{
			Title: "Website recovered",
			Text: "✅ *Website Recovered*\n\n" +
				"*Website:* " + t.DisplayName() + "\n" +
				"*URL:* " + t.URL + "\n" +
				"*Status:* " + string(t.Status) + "\n" +
				"*Response Time:* " + rt + "\n" +
				"*Time:* " + at + " UTC",
		}
	}

	errText := "Unknown"
	if t.LastError != nil && *t.LastError != "" {
		errText = *t.LastError
	}
	return notify.Message{
		Title: "Website down",
		Text: "🚨 *Website Down Alert*\n\n" +
			"*Website:* " + t.DisplayName() + "\n" +
			"*URL:* " + t.URL + "\n" +
			"*Status:* " + string(t.Status) + "\n" +
			fmt.Sprintf("*Consecutive Failures:* %d\n", t.ConsecutiveFailures) +
			"*Error:* " + errText + "\n" +
			"*Time:* " + at + " UTC",
	}
}
