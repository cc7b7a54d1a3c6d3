// Package stats records check history and derives uptime figures from it.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 500
	DefaultRetention    = 30 * 24 * time.Hour
)

type Aggregator struct {
	Results   repo.ResultStore
	Log       *zap.Logger
	Retention time.Duration
	Now       func() time.Time
}

func New(results repo.ResultStore, log *zap.Logger, retention time.Duration) *Aggregator {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Aggregator{Results: results, Log: log, Retention: retention, Now: time.Now}
}

// Record appends one probe outcome to the target's history.
func (a *Aggregator) Record(ctx context.Context, id domain.TargetID, o domain.Outcome) (domain.CheckResult, error) {
	r, err := a.Results.Append(ctx, domain.ResultFromOutcome(id, o))
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("record result: %w", err)
	}
	return r, nil
}

// History returns the latest results, newest first. limit is clamped to
// [1, MaxHistoryLimit]; zero means the default.
func (a *Aggregator) History(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckResult, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return a.Results.Recent(ctx, id, limit)
}

// Stats computes all-time and trailing 24h figures over the retained
// history.
func (a *Aggregator) Stats(ctx context.Context, id domain.TargetID) (domain.Stats, error) {
	all, err := a.Results.Summarize(ctx, id, time.Time{})
	if err != nil {
		return domain.Stats{}, fmt.Errorf("summarize all: %w", err)
	}
	day, err := a.Results.Summarize(ctx, id, a.now().Add(-24*time.Hour))
	if err != nil {
		return domain.Stats{}, fmt.Errorf("summarize 24h: %w", err)
	}

	st := domain.Stats{
		UptimePercentage:        Uptime(all.Total, all.Failed),
		TotalChecks:             all.Total,
		FailedChecks:            all.Failed,
		Last24hChecks:           day.Total,
		Last24hFailures:         day.Failed,
		Last24hUptimePercentage: Uptime(day.Total, day.Failed),
	}
	if all.AvgResponseMS != nil {
		v := round2(*all.AvgResponseMS)
		st.AverageResponseTime = &v
	}
	return st, nil
}

// Uptime is the share of successful checks in percent, rounded to two
// decimals. No checks yields 0.
func Uptime(total, failed int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(total-failed) * 100 / float64(total))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Prune deletes history older than the retention window.
func (a *Aggregator) Prune(ctx context.Context) (int64, error) {
	cutoff := a.now().Add(-a.Retention)
	n, err := a.Results.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return n, nil
}

// RunJanitor prunes once immediately and then every tick until ctx ends.
func (a *Aggregator) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if n, err := a.Prune(ctx); err != nil {
			a.Log.Warn("janitor_prune_error", zap.Error(err))
		} else if n > 0 {
			a.Log.Info("janitor_pruned", zap.Int64("deleted", n), zap.Duration("retention", a.Retention))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
