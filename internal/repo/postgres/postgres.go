package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New connects, pings and migrates the schema.
func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("postgres_ready")
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
  id                       TEXT PRIMARY KEY,
  email                    TEXT NOT NULL UNIQUE,
  username                 TEXT NOT NULL UNIQUE,
  password_hash            TEXT NOT NULL,
  default_telegram_chat_id TEXT NULL,
  is_active                BOOLEAN NOT NULL DEFAULT TRUE,
  created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS targets (
  id                     TEXT PRIMARY KEY,
  owner_id               TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  url                    TEXT NOT NULL,
  name                   TEXT NULL,
  valid_word             TEXT NOT NULL,
  timeout_seconds        INTEGER NOT NULL,
  check_interval_seconds INTEGER NOT NULL,
  is_active              BOOLEAN NOT NULL,
  status                 TEXT NOT NULL,
  consecutive_failures   INTEGER NOT NULL DEFAULT 0,
  failure_threshold      INTEGER NOT NULL,
  last_check_at          TIMESTAMPTZ NULL,
  last_response_time_ms  DOUBLE PRECISION NULL,
  last_error             TEXT NULL,
  total_checks           INTEGER NOT NULL DEFAULT 0,
  failed_checks          INTEGER NOT NULL DEFAULT 0,
  alert_chat_id          TEXT NULL,
  created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at             TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS idx_targets_owner ON targets (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_targets_active ON targets (is_active);

CREATE TABLE IF NOT EXISTS check_results (
  id               BIGSERIAL PRIMARY KEY,
  target_id        TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
  checked_at       TIMESTAMPTZ NOT NULL,
  status           TEXT NOT NULL,
  response_time_ms DOUBLE PRECISION NULL,
  status_code      INTEGER NULL,
  error_message    TEXT NULL,
  manual           BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_results_target_time ON check_results (target_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_checked_at ON check_results (checked_at);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// ---- AccountStore ----

const accountCols = `id, email, username, password_hash, default_telegram_chat_id, is_active, created_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan((*string)(&a.ID), &a.Email, &a.Username, &a.PasswordHash, &a.DefaultTelegramChatID, &a.IsActive, &a.CreatedAt)
	return a, err
}

func (s *Store) CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error) {
	if a.ID == "" {
		a.ID = domain.AccountID(uuid.NewString())
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (`+accountCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		string(a.ID), a.Email, a.Username, a.PasswordHash, a.DefaultTelegramChatID, a.IsActive, a.CreatedAt)
	if err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", mapErr(err))
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = $1`, string(id)))
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %s: %w", id, mapErr(err))
	}
	return a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE email = $1`, email))
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %q: %w", email, mapErr(err))
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, id domain.AccountID, p domain.AccountPatch) (domain.Account, error) {
	if p.DefaultTelegramChatID != nil {
		var chat *string
		if *p.DefaultTelegramChatID != "" {
			chat = p.DefaultTelegramChatID
		}
		tag, err := s.pool.Exec(ctx, `UPDATE accounts SET default_telegram_chat_id = $2 WHERE id = $1`, string(id), chat)
		if err != nil {
			return domain.Account{}, fmt.Errorf("update account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
		}
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) DeleteAccount(ctx context.Context, id domain.AccountID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// mapErr translates driver errors into domain sentinels.
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrNotFound)
		}
	}
	return err
}
