package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

const targetCols = `id, owner_id, url, name, valid_word, timeout_seconds, check_interval_seconds,
	is_active, status, consecutive_failures, failure_threshold, last_check_at,
	last_response_time_ms, last_error, total_checks, failed_checks, alert_chat_id,
	created_at, updated_at`

func scanTarget(row pgx.Row) (domain.Target, error) {
	var t domain.Target
	err := row.Scan((*string)(&t.ID), (*string)(&t.OwnerID), &t.URL, &t.Name, &t.ValidWord,
		&t.TimeoutSeconds, &t.CheckIntervalSeconds, &t.IsActive, (*string)(&t.Status),
		&t.ConsecutiveFailures, &t.FailureThreshold, &t.LastCheckAt, &t.LastResponseTimeMS,
		&t.LastError, &t.TotalChecks, &t.FailedChecks, &t.AlertChatID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func targetArgs(t domain.Target) []any {
	return []any{string(t.ID), string(t.OwnerID), t.URL, t.Name, t.ValidWord,
		t.TimeoutSeconds, t.CheckIntervalSeconds, t.IsActive, string(t.Status),
		t.ConsecutiveFailures, t.FailureThreshold, t.LastCheckAt, t.LastResponseTimeMS,
		t.LastError, t.TotalChecks, t.FailedChecks, t.AlertChatID, t.CreatedAt, t.UpdatedAt}
}

const updateTargetSQL = `
UPDATE targets SET
  url = $1, name = $2, valid_word = $3, timeout_seconds = $4, check_interval_seconds = $5,
  is_active = $6, status = $7, consecutive_failures = $8, failure_threshold = $9,
  last_check_at = $10, last_response_time_ms = $11, last_error = $12, total_checks = $13,
  failed_checks = $14, alert_chat_id = $15, updated_at = $16
WHERE id = $17`

// updateTargetArgs matches the placeholders of updateTargetSQL.
func updateTargetArgs(t domain.Target) []any {
	return []any{t.URL, t.Name, t.ValidWord, t.TimeoutSeconds, t.CheckIntervalSeconds,
		t.IsActive, string(t.Status), t.ConsecutiveFailures, t.FailureThreshold,
		t.LastCheckAt, t.LastResponseTimeMS, t.LastError, t.TotalChecks,
		t.FailedChecks, t.AlertChatID, t.UpdatedAt, string(t.ID)}
}

// ---- TargetStore ----

func (s *Store) Create(ctx context.Context, t domain.Target) (domain.Target, error) {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t = domain.Normalize(t)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets (`+targetCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		targetArgs(t)...)
	if err != nil {
		return domain.Target{}, fmt.Errorf("insert target: %w", mapErr(err))
	}
	return t, nil
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (domain.Target, error) {
	t, err := scanTarget(s.pool.QueryRow(ctx, `SELECT `+targetCols+` FROM targets WHERE id = $1`, string(id)))
	if err != nil {
		return domain.Target{}, fmt.Errorf("target %s: %w", id, mapErr(err))
	}
	return t, nil
}

func (s *Store) List(ctx context.Context, p repo.ListParams) ([]domain.Target, int, error) {
	p = p.Normalized()
	args := []any{string(p.OwnerID)}
	where := []string{"owner_id = $1"}
	if p.Status != nil {
		args = append(args, string(*p.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if p.IsActive != nil {
		args = append(args, *p.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if p.Search != "" {
		args = append(args, repo.LikePattern(p.Search))
		n := len(args)
		where = append(where, fmt.Sprintf(`(LOWER(url) LIKE $%d ESCAPE '\' OR LOWER(COALESCE(name, '')) LIKE $%d ESCAPE '\')`, n, n))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM targets WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count targets: %w", err)
	}

	// column and direction come from a whitelist
	order := fmt.Sprintf("%s %s NULLS LAST, id ASC", repo.SortColumns[p.SortBy], strings.ToUpper(p.SortOrder))
	args = append(args, p.PageSize, p.Offset())
	q := fmt.Sprintf(`SELECT %s FROM targets WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		targetCols, cond, order, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list targets: %w", err)
	}
	out, err := collectTargets(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) ListActive(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+targetCols+` FROM targets WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	return collectTargets(rows)
}

func collectTargets(rows pgx.Rows) ([]domain.Target, error) {
	defer rows.Close()
	out := make([]domain.Target, 0, 16)
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, id domain.TargetID, p domain.TargetPatch) (domain.Target, error) {
	t, _, err := s.mutate(ctx, id, func(t domain.Target) (domain.Target, domain.AlertKind) {
		t = domain.ApplyPatch(t, p)
		now := time.Now().UTC()
		t.UpdatedAt = &now
		return t, domain.AlertNone
	})
	return t, err
}

func (s *Store) SetActive(ctx context.Context, id domain.TargetID, active bool) (domain.Target, error) {
	t, _, err := s.mutate(ctx, id, func(t domain.Target) (domain.Target, domain.AlertKind) {
		t = domain.SetActive(t, active)
		now := time.Now().UTC()
		t.UpdatedAt = &now
		return t, domain.AlertNone
	})
	return t, err
}

func (s *Store) RecordCheckOutcome(ctx context.Context, id domain.TargetID, o domain.Outcome) (domain.Target, domain.AlertKind, error) {
	return s.mutate(ctx, id, func(t domain.Target) (domain.Target, domain.AlertKind) {
		return domain.Apply(t, o)
	})
}

// mutate runs a read-modify-write of one target under a row lock.
func (s *Store) mutate(ctx context.Context, id domain.TargetID, fn func(domain.Target) (domain.Target, domain.AlertKind)) (domain.Target, domain.AlertKind, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTarget(tx.QueryRow(ctx, `SELECT `+targetCols+` FROM targets WHERE id = $1 FOR UPDATE`, string(id)))
	if err != nil {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("target %s: %w", id, mapErr(err))
	}
	t, kind := fn(t)

	tag, err := tx.Exec(ctx, updateTargetSQL, updateTargetArgs(t)...)
	if err != nil {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("update target: %w", mapErr(err))
	}
	if tag.RowsAffected() != 1 {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("update target %s: %w", id, domain.ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("commit: %w", err)
	}
	return t, kind, nil
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("target %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
