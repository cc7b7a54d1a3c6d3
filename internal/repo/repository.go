package repo

import (
	"context"
	"strings"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Ports (interfaces). Lookups of missing rows return domain.ErrNotFound and
// uniqueness violations domain.ErrConflict, both possibly wrapped.
type AccountStore interface {
	CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error)
	GetAccount(ctx context.Context, id domain.AccountID) (domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	UpdateAccount(ctx context.Context, id domain.AccountID, p domain.AccountPatch) (domain.Account, error)
	// DeleteAccount removes the account with its targets and their history.
	DeleteAccount(ctx context.Context, id domain.AccountID) error
}

type TargetStore interface {
	Create(ctx context.Context, t domain.Target) (domain.Target, error)
	Get(ctx context.Context, id domain.TargetID) (domain.Target, error)
	List(ctx context.Context, p ListParams) ([]domain.Target, int, error)
	ListActive(ctx context.Context) ([]domain.Target, error)
	Update(ctx context.Context, id domain.TargetID, p domain.TargetPatch) (domain.Target, error)
	Delete(ctx context.Context, id domain.TargetID) error
	SetActive(ctx context.Context, id domain.TargetID, active bool) (domain.Target, error)
	// RecordCheckOutcome is the only writer of probe-derived state. It loads
	// the target, folds the outcome in with domain.Apply and persists the
	// result atomically with respect to other writers of the same target.
	RecordCheckOutcome(ctx context.Context, id domain.TargetID, o domain.Outcome) (domain.Target, domain.AlertKind, error)
}

type ResultStore interface {
	Append(ctx context.Context, r domain.CheckResult) (domain.CheckResult, error)
	// Recent returns up to limit results, newest first.
	Recent(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckResult, error)
	// Summarize aggregates results checked at or after since. A zero since
	// covers the whole history.
	Summarize(ctx context.Context, id domain.TargetID, since time.Time) (domain.Summary, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is a complete persistence backend.
type Store interface {
	AccountStore
	TargetStore
	ResultStore
	Close() error
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// SortColumns maps the accepted sort_by values to column names.
var SortColumns = map[string]string{
	"created_at":     "created_at",
	"name":           "name",
	"url":            "url",
	"status":         "status",
	"last_check":     "last_check_at",
	"response_time":  "last_response_time_ms",
	"check_interval": "check_interval_seconds",
}

type ListParams struct {
	OwnerID   domain.AccountID
	Status    *domain.Status
	IsActive  *bool
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// Normalized fills defaults and clamps paging. Unknown sort keys fall back to
// created_at.
func (p ListParams) Normalized() ListParams {
	if _, ok := SortColumns[p.SortBy]; !ok {
		p.SortBy = "created_at"
	}
	p.SortOrder = strings.ToLower(p.SortOrder)
	if p.SortOrder != "asc" {
		p.SortOrder = "desc"
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

func (p ListParams) Offset() int { return (p.Page - 1) * p.PageSize }

// LikePattern turns a search term into a LIKE pattern with '\' as escape.
func LikePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(term)) + "%"
}
