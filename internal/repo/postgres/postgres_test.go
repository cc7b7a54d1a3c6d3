package postgres

import (
	"context"
	"os"
	"regexp"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo/repotest"
)

func TestPostgresStore_Conformance(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()

	repotest.Run(t, store)
}

func TestUpdateTargetSQL_PlaceholdersMatchArgs(t *testing.T) {
	args := updateTargetArgs(domain.Target{ID: "t-1"})

	seen := map[int]bool{}
	for _, m := range regexp.MustCompile(`\$(\d+)`).FindAllStringSubmatch(updateTargetSQL, -1) {
		n, _ := strconv.Atoi(m[1])
		seen[n] = true
	}
	if len(seen) != len(args) {
		t.Fatalf("%d placeholders, %d args", len(seen), len(args))
	}
	for i := 1; i <= len(args); i++ {
		if !seen[i] {
			t.Fatalf("placeholder $%d unused", i)
		}
	}
	if args[len(args)-1] != "t-1" {
		t.Fatalf("last arg should be the id, got %v", args[len(args)-1])
	}
}
