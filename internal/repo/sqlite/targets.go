package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

func newID() string { return uuid.NewString() }

const targetCols = `id, owner_id, url, name, valid_word, timeout_seconds, check_interval_seconds,
	is_active, status, consecutive_failures, failure_threshold, last_check_at,
	last_response_time_ms, last_error, total_checks, failed_checks, alert_chat_id,
	created_at, updated_at`

type scanner interface{ Scan(...any) error }

func scanTarget(row scanner) (domain.Target, error) {
	var (
		t              domain.Target
		lastCheck, upd sql.NullString
		created        string
	)
	err := row.Scan((*string)(&t.ID), (*string)(&t.OwnerID), &t.URL, &t.Name, &t.ValidWord,
		&t.TimeoutSeconds, &t.CheckIntervalSeconds, &t.IsActive, (*string)(&t.Status),
		&t.ConsecutiveFailures, &t.FailureThreshold, &lastCheck, &t.LastResponseTimeMS,
		&t.LastError, &t.TotalChecks, &t.FailedChecks, &t.AlertChatID, &created, &upd)
	if err != nil {
		return domain.Target{}, err
	}
	if t.CreatedAt, err = parseTS(created); err != nil {
		return domain.Target{}, err
	}
	if t.LastCheckAt, err = parseNullTS(lastCheck); err != nil {
		return domain.Target{}, err
	}
	if t.UpdatedAt, err = parseNullTS(upd); err != nil {
		return domain.Target{}, err
	}
	return t, nil
}

// ---- TargetStore ----

func (s *Store) Create(ctx context.Context, t domain.Target) (domain.Target, error) {
	if t.ID == "" {
		t.ID = domain.TargetID(newID())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t = domain.Normalize(t)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (`+targetCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.ID), string(t.OwnerID), t.URL, t.Name, t.ValidWord,
		t.TimeoutSeconds, t.CheckIntervalSeconds, t.IsActive, string(t.Status),
		t.ConsecutiveFailures, t.FailureThreshold, nullTS(t.LastCheckAt), t.LastResponseTimeMS,
		t.LastError, t.TotalChecks, t.FailedChecks, t.AlertChatID, ts(t.CreatedAt), nullTS(t.UpdatedAt))
	if err != nil {
		return domain.Target{}, fmt.Errorf("insert target: %w", mapErr(err))
	}
	return t, nil
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (domain.Target, error) {
	t, err := scanTarget(s.db.QueryRowContext(ctx, `SELECT `+targetCols+` FROM targets WHERE id = ?`, string(id)))
	if err != nil {
		return domain.Target{}, fmt.Errorf("target %s: %w", id, mapErr(err))
	}
	return t, nil
}

func (s *Store) List(ctx context.Context, p repo.ListParams) ([]domain.Target, int, error) {
	p = p.Normalized()
	args := []any{string(p.OwnerID)}
	where := []string{"owner_id = ?"}
	if p.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *p.IsActive)
	}
	if p.Search != "" {
		pat := repo.LikePattern(p.Search)
		where = append(where, `(LOWER(url) LIKE ? ESCAPE '\' OR LOWER(COALESCE(name, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pat, pat)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM targets WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count targets: %w", err)
	}

	// column and direction come from a whitelist
	order := fmt.Sprintf("%s %s NULLS LAST, id ASC", repo.SortColumns[p.SortBy], strings.ToUpper(p.SortOrder))
	q := `SELECT ` + targetCols + ` FROM targets WHERE ` + cond + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.PageSize, p.Offset())...)
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
	rows, err := s.db.QueryContext(ctx, `SELECT `+targetCols+` FROM targets WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	return collectTargets(rows)
}

func collectTargets(rows *sql.Rows) ([]domain.Target, error) {
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

// mutate is a read-modify-write inside one transaction. With a single
// connection no other statement can interleave.
func (s *Store) mutate(ctx context.Context, id domain.TargetID, fn func(domain.Target) (domain.Target, domain.AlertKind)) (domain.Target, domain.AlertKind, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	t, err := scanTarget(tx.QueryRowContext(ctx, `SELECT `+targetCols+` FROM targets WHERE id = ?`, string(id)))
	if err != nil {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("target %s: %w", id, mapErr(err))
	}
	t, kind := fn(t)

	res, err := tx.ExecContext(ctx, `
UPDATE targets SET
	url = ?, name = ?, valid_word = ?, timeout_seconds = ?, check_interval_seconds = ?,
	is_active = ?, status = ?, consecutive_failures = ?, failure_threshold = ?,
	last_check_at = ?, last_response_time_ms = ?, last_error = ?, total_checks = ?,
	failed_checks = ?, alert_chat_id = ?, updated_at = ?
WHERE id = ?`,
		t.URL, t.Name, t.ValidWord, t.TimeoutSeconds, t.CheckIntervalSeconds,
		t.IsActive, string(t.Status), t.ConsecutiveFailures, t.FailureThreshold,
		nullTS(t.LastCheckAt), t.LastResponseTimeMS, t.LastError, t.TotalChecks,
		t.FailedChecks, t.AlertChatID, nullTS(t.UpdatedAt), string(t.ID))
	if err != nil {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("update target: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("update target %s: %w", id, domain.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("commit: %w", err)
	}
	return t, kind, nil
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("target %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
