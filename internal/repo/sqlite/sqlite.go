package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	sqlitelib "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store persists to a single SQLite file. The pool is limited to one
// connection, so every transaction is serialised against all other writers.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (creating if needed) the database file at path and migrates it.
func New(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("sqlite_ready", zap.String("path", path))
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
	id                       TEXT PRIMARY KEY,
	email                    TEXT NOT NULL UNIQUE,
	username                 TEXT NOT NULL UNIQUE,
	password_hash            TEXT NOT NULL,
	default_telegram_chat_id TEXT,
	is_active                INTEGER NOT NULL DEFAULT 1,
	created_at               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS targets (
	id                     TEXT PRIMARY KEY,
	owner_id               TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	url                    TEXT NOT NULL,
	name                   TEXT,
	valid_word             TEXT NOT NULL,
	timeout_seconds        INTEGER NOT NULL,
	check_interval_seconds INTEGER NOT NULL,
	is_active              INTEGER NOT NULL,
	status                 TEXT NOT NULL,
	consecutive_failures   INTEGER NOT NULL DEFAULT 0,
	failure_threshold      INTEGER NOT NULL,
	last_check_at          TEXT,
	last_response_time_ms  REAL,
	last_error             TEXT,
	total_checks           INTEGER NOT NULL DEFAULT 0,
	failed_checks          INTEGER NOT NULL DEFAULT 0,
	alert_chat_id          TEXT,
	created_at             TEXT NOT NULL,
	updated_at             TEXT
);
CREATE INDEX IF NOT EXISTS idx_targets_owner ON targets (owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_targets_active ON targets (is_active);

CREATE TABLE IF NOT EXISTS check_results (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id        TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	checked_at       TEXT NOT NULL,
	status           TEXT NOT NULL,
	response_time_ms REAL,
	status_code      INTEGER,
	error_message    TEXT,
	manual           INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_results_target_time ON check_results (target_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_checked_at ON check_results (checked_at);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// Timestamps are stored as fixed width UTC text so that string order is
// time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

func nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseTS(s string) (time.Time, error) { return time.Parse(tsLayout, s) }

func parseNullTS(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTS(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// mapErr translates driver errors into domain sentinels.
func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var se *sqlitelib.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", se.Error(), domain.ErrConflict)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w", se.Error(), domain.ErrNotFound)
		}
	}
	return err
}

// ---- AccountStore ----

const accountCols = `id, email, username, password_hash, default_telegram_chat_id, is_active, created_at`

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var (
		a       domain.Account
		created string
	)
	if err := row.Scan((*string)(&a.ID), &a.Email, &a.Username, &a.PasswordHash, &a.DefaultTelegramChatID, &a.IsActive, &created); err != nil {
		return domain.Account{}, err
	}
	var err error
	a.CreatedAt, err = parseTS(created)
	return a, err
}

func (s *Store) CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error) {
	if a.ID == "" {
		a.ID = domain.AccountID(newID())
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), a.Email, a.Username, a.PasswordHash, a.DefaultTelegramChatID, a.IsActive, ts(a.CreatedAt))
	if err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", mapErr(err))
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, string(id)))
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %s: %w", id, mapErr(err))
	}
	return a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE email = ?`, email))
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %q: %w", email, mapErr(err))
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, id domain.AccountID, p domain.AccountPatch) (domain.Account, error) {
	if p.DefaultTelegramChatID != nil {
		var chat any
		if v := strings.TrimSpace(*p.DefaultTelegramChatID); v != "" {
			chat = v
		}
		res, err := s.db.ExecContext(ctx, `UPDATE accounts SET default_telegram_chat_id = ? WHERE id = ?`, chat, string(id))
		if err != nil {
			return domain.Account{}, fmt.Errorf("update account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
		}
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) DeleteAccount(ctx context.Context, id domain.AccountID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
