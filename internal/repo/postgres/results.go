package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// ---- ResultStore ----

func (s *Store) Append(ctx context.Context, r domain.CheckResult) (domain.CheckResult, error) {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO check_results
		   (target_id, checked_at, status, response_time_ms, status_code, error_message, manual)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		string(r.TargetID), r.CheckedAt, string(r.Status), r.ResponseTimeMS, r.StatusCode, r.ErrorMessage, r.Manual,
	).Scan(&r.ID)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("insert result: %w", mapErr(err))
	}
	return r, nil
}

func (s *Store) Recent(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, target_id, checked_at, status, response_time_ms, status_code, error_message, manual
  FROM check_results
 WHERE target_id = $1
 ORDER BY checked_at DESC, id DESC
 LIMIT $2`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CheckResult, 0, limit)
	for rows.Next() {
		var r domain.CheckResult
		if err := rows.Scan(&r.ID, (*string)(&r.TargetID), &r.CheckedAt, (*string)(&r.Status),
			&r.ResponseTimeMS, &r.StatusCode, &r.ErrorMessage, &r.Manual); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Summarize(ctx context.Context, id domain.TargetID, since time.Time) (domain.Summary, error) {
	var sum domain.Summary
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status <> 'online'),
       AVG(response_time_ms) FILTER (WHERE status = 'online')
  FROM check_results
 WHERE target_id = $1 AND checked_at >= $2`, string(id), since).Scan(&sum.Total, &sum.Failed, &sum.AvgResponseMS)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarize: %w", err)
	}
	return sum, nil
}

func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM check_results WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	return tag.RowsAffected(), nil
}
