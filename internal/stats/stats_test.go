package stats

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
)

func setup(t *testing.T) (*Aggregator, *memory.Store, domain.TargetID) {
	t.Helper()
	ctx := context.Background()
	store := memory.New(0)
	a, err := store.CreateAccount(ctx, domain.Account{Email: "s@example.com", Username: "stats", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	tg, err := store.Create(ctx, domain.Target{OwnerID: a.ID, URL: "https://example.com", ValidWord: "OK", IsActive: true}.WithDefaults())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return New(store, zap.NewNop(), 0), store, tg.ID
}

func outcome(ok bool, at time.Time, ms float64) domain.Outcome {
	if !ok {
		return domain.Outcome{Status: domain.CheckOffline, Error: "HTTP 500 Internal Server Error", CheckedAt: at}
	}
	return domain.Outcome{Status: domain.CheckOnline, ResponseTimeMS: &ms, CheckedAt: at}
}

func TestStats_TenChecksTwoFailures(t *testing.T) {
	ctx := context.Background()
	agg, _, id := setup(t)
	now := time.Now()
	for i := 0; i < 10; i++ {
		if _, err := agg.Record(ctx, id, outcome(i != 2 && i != 6, now.Add(-time.Duration(10-i)*time.Minute), 100)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	st, err := agg.Stats(ctx, id)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.UptimePercentage != 80.0 || st.Last24hUptimePercentage != 80.0 {
		t.Fatalf("uptime: %+v", st)
	}
	if st.TotalChecks != 10 || st.FailedChecks != 2 || st.Last24hChecks != 10 || st.Last24hFailures != 2 {
		t.Fatalf("counts: %+v", st)
	}
	if st.AverageResponseTime == nil || *st.AverageResponseTime != 100 {
		t.Fatalf("avg: %v", st.AverageResponseTime)
	}
}

func TestStats_WindowAndEmpty(t *testing.T) {
	ctx := context.Background()
	agg, _, id := setup(t)

	st, err := agg.Stats(ctx, id)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.UptimePercentage != 0 || st.AverageResponseTime != nil || st.TotalChecks != 0 {
		t.Fatalf("empty stats: %+v", st)
	}

	now := time.Now()
	agg.Record(ctx, id, outcome(false, now.Add(-48*time.Hour), 0))
	agg.Record(ctx, id, outcome(true, now.Add(-time.Hour), 10))
	agg.Record(ctx, id, outcome(true, now.Add(-time.Minute), 20.555))

	st, _ = agg.Stats(ctx, id)
	if st.TotalChecks != 3 || st.Last24hChecks != 2 || st.Last24hFailures != 0 {
		t.Fatalf("windows: %+v", st)
	}
	if st.UptimePercentage != 66.67 || st.Last24hUptimePercentage != 100 {
		t.Fatalf("uptime rounding: %+v", st)
	}
	if st.AverageResponseTime == nil || *st.AverageResponseTime != 15.28 {
		t.Fatalf("avg over successes only: %v", st.AverageResponseTime)
	}
}

func TestHistory_LimitClamp(t *testing.T) {
	ctx := context.Background()
	agg, _, id := setup(t)
	now := time.Now()
	for i := 0; i < 15; i++ {
		agg.Record(ctx, id, outcome(true, now.Add(time.Duration(i)*time.Second), 1))
	}

	h, _ := agg.History(ctx, id, 0)
	if len(h) != DefaultHistoryLimit {
		t.Fatalf("default limit: %d", len(h))
	}
	if !h[0].CheckedAt.After(h[1].CheckedAt) {
		t.Fatal("history must be newest first")
	}
	h, _ = agg.History(ctx, id, 10000)
	if len(h) != 15 {
		t.Fatalf("clamped limit: %d", len(h))
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	agg, _, id := setup(t)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.Now = func() time.Time { return fixed }

	agg.Record(ctx, id, outcome(true, fixed.Add(-31*24*time.Hour), 1))
	agg.Record(ctx, id, outcome(true, fixed.Add(-29*24*time.Hour), 1))

	n, err := agg.Prune(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Prune: %d %v", n, err)
	}
	h, _ := agg.History(ctx, id, 10)
	if len(h) != 1 {
		t.Fatalf("remaining: %d", len(h))
	}
}

func TestUptime(t *testing.T) {
	cases := []struct {
		total, failed int
		want          float64
	}{
		{0, 0, 0},
		{10, 2, 80},
		{3, 1, 66.67},
		{4, 4, 0},
	}
	for _, c := range cases {
		if got := Uptime(c.total, c.failed); got != c.want {
			t.Errorf("Uptime(%d,%d) = %v, want %v", c.total, c.failed, got, c.want)
		}
	}
}
