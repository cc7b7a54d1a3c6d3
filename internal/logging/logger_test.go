package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_CreatesDirAndLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	log, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("log dir missing: %v", err)
	}

	log.Info("test_message_from_logging_test")
	_ = log.Sync()

	b, err := os.ReadFile(filepath.Join(dir, "sitewatch.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "test_message_from_logging_test") {
		t.Fatalf("message not written: %s", b)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Options{Dir: dir, Level: "warn"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("quiet_info")
	log.Warn("loud_warn")
	_ = log.Sync()

	b, _ := os.ReadFile(filepath.Join(dir, "sitewatch.log"))
	if strings.Contains(string(b), "quiet_info") || !strings.Contains(string(b), "loud_warn") {
		t.Fatalf("level not applied: %s", b)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(Options{Dir: t.TempDir(), Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
