// Package backend picks a store implementation from a DATABASE_URL.
package backend

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	"github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/repo/sqlite"
)

// Open returns the store for dsn and the kind it chose:
//
//	""                          memory
//	postgres://, postgresql://  postgres
//	sqlite://path, file.db      sqlite
func Open(ctx context.Context, dsn string, historyCap int, log *zap.Logger) (repo.Store, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return memory.New(historyCap), "memory", nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := postgres.New(ctx, dsn, log)
		if err != nil {
			return nil, "", err
		}
		return s, "postgres", nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return openSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"), log)
	case strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"):
		return openSQLite(ctx, dsn, log)
	}
	return nil, "", fmt.Errorf("unsupported DATABASE_URL scheme: %q", redact(dsn))
}

func openSQLite(ctx context.Context, path string, log *zap.Logger) (repo.Store, string, error) {
	if path == "" {
		return nil, "", fmt.Errorf("sqlite DATABASE_URL needs a path")
	}
	s, err := sqlite.New(ctx, path, log)
	if err != nil {
		return nil, "", err
	}
	return s, "sqlite", nil
}

// redact keeps credentials out of error messages.
func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
		return "***" + dsn[i:]
	}
	return dsn
}
