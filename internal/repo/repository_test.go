package repo_test

import (
	"testing"

	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	pg "github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/repo/sqlite"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.Store = memory.New(0)
	var _ repo.Store = (*pg.Store)(nil)
	var _ repo.Store = (*sqlite.Store)(nil)
}

func TestListParamsNormalized(t *testing.T) {
	p := repo.ListParams{SortBy: "drop table", SortOrder: "ASC", PageSize: 1000, Search: "  shop "}.Normalized()
	if p.SortBy != "created_at" || p.SortOrder != "asc" {
		t.Fatalf("sort: %+v", p)
	}
	if p.Page != 1 || p.PageSize != repo.MaxPageSize {
		t.Fatalf("paging: %+v", p)
	}
	if p.Search != "shop" {
		t.Fatalf("search: %q", p.Search)
	}
	if got := (repo.ListParams{Page: 3, PageSize: 10}).Offset(); got != 20 {
		t.Fatalf("offset %d", got)
	}
}

func TestLikePattern(t *testing.T) {
	if got := repo.LikePattern("50%_Off"); got != `%50\%\_off%` {
		t.Fatalf("got %q", got)
	}
}
