package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestOpen_MemoryAndSQLite(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	s, kind, err := Open(ctx, "", 0, log)
	if err != nil || kind != "memory" {
		t.Fatalf("memory: kind=%q err=%v", kind, err)
	}
	_ = s.Close()

	path := filepath.Join(t.TempDir(), "sitewatch.db")
	for _, dsn := range []string{"sqlite://" + path, path} {
		s, kind, err := Open(ctx, dsn, 0, log)
		if err != nil || kind != "sqlite" {
			t.Fatalf("%s: kind=%q err=%v", dsn, kind, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
}

func TestOpen_UnknownSchemeRedacts(t *testing.T) {
	_, _, err := Open(context.Background(), "mysql://root:hunter2@db/x", 0, zap.NewNop())
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("password leaked: %v", err)
	}
}
