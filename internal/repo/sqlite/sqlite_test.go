package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/repo/repotest"
)

func TestSQLiteStore_Conformance(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "sitewatch.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	repotest.Run(t, s)
}

func TestTimestampsSortAsText(t *testing.T) {
	a := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	b := a.Add(time.Nanosecond * 994)
	if !(ts(a) < ts(b)) {
		t.Fatalf("%s should sort before %s", ts(a), ts(b))
	}
	back, err := parseTS(ts(b))
	if err != nil || !back.Equal(b) {
		t.Fatalf("round trip: %v %v", back, err)
	}
}
