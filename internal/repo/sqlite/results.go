package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// ---- ResultStore ----

func (s *Store) Append(ctx context.Context, r domain.CheckResult) (domain.CheckResult, error) {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO check_results
		   (target_id, checked_at, status, response_time_ms, status_code, error_message, manual)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(r.TargetID), ts(r.CheckedAt), string(r.Status), r.ResponseTimeMS, r.StatusCode, r.ErrorMessage, r.Manual)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("insert result: %w", mapErr(err))
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return domain.CheckResult{}, fmt.Errorf("result id: %w", err)
	}
	return r, nil
}

func (s *Store) Recent(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, target_id, checked_at, status, response_time_ms, status_code, error_message, manual
  FROM check_results
 WHERE target_id = ?
 ORDER BY checked_at DESC, id DESC
 LIMIT ?`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CheckResult, 0, limit)
	for rows.Next() {
		var (
			r       domain.CheckResult
			checked string
		)
		if err := rows.Scan(&r.ID, (*string)(&r.TargetID), &checked, (*string)(&r.Status),
			&r.ResponseTimeMS, &r.StatusCode, &r.ErrorMessage, &r.Manual); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.CheckedAt, err = parseTS(checked); err != nil {
			return nil, fmt.Errorf("parse checked_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Summarize(ctx context.Context, id domain.TargetID, since time.Time) (domain.Summary, error) {
	var (
		sum    domain.Summary
		failed sql.NullInt64
		avg    sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       SUM(CASE WHEN status <> 'online' THEN 1 ELSE 0 END),
       AVG(CASE WHEN status = 'online' THEN response_time_ms END)
  FROM check_results
 WHERE target_id = ? AND checked_at >= ?`, string(id), ts(since)).Scan(&sum.Total, &failed, &avg)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarize: %w", err)
	}
	sum.Failed = int(failed.Int64)
	if avg.Valid {
		v := avg.Float64
		sum.AvgResponseMS = &v
	}
	return sum, nil
}

func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM check_results WHERE checked_at < ?`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	return res.RowsAffected()
}
