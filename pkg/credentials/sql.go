// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/stacklok/glassgate/pkg/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Dialect selects the SQL flavour used by SQLStore.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type queries struct {
	get          string
	getForUpdate string
	upsert       string
	del          string
	list         string
}

var sqliteQueries = queries{
	get: `SELECT access_token, refresh_token, expiration_time_millis
		FROM credentials WHERE user_id = ?`,
	getForUpdate: `SELECT access_token, refresh_token, expiration_time_millis
		FROM credentials WHERE user_id = ?`,
	upsert: `INSERT INTO credentials (user_id, access_token, refresh_token, expiration_time_millis, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiration_time_millis = excluded.expiration_time_millis,
			updated_at = excluded.updated_at`,
	del:  `DELETE FROM credentials WHERE user_id = ?`,
	list: `SELECT user_id FROM credentials ORDER BY user_id`,
}

var postgresQueries = queries{
	get: `SELECT access_token, refresh_token, expiration_time_millis
		FROM credentials WHERE user_id = $1`,
	getForUpdate: `SELECT access_token, refresh_token, expiration_time_millis
		FROM credentials WHERE user_id = $1 FOR UPDATE`,
	upsert: `INSERT INTO credentials (user_id, access_token, refresh_token, expiration_time_millis, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiration_time_millis = excluded.expiration_time_millis,
			updated_at = excluded.updated_at`,
	del:  `DELETE FROM credentials WHERE user_id = $1`,
	list: `SELECT user_id FROM credentials ORDER BY user_id`,
}

// SQLStore implements Store on a SQL database (sqlite or postgres).
type SQLStore struct {
	db    *sql.DB
	q     queries
	locks *keyLocks
	now   func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database. The schema must already exist;
// use OpenSQLite or OpenPostgres to open and migrate in one step.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	var q queries
	switch dialect {
	case DialectSQLite:
		q = sqliteQueries
	case DialectPostgres:
		q = postgresQueries
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	return &SQLStore{db: db, q: q, locks: newKeyLocks(), now: time.Now}, nil
}

// OpenSQLite opens (creating if needed) the sqlite database at path and
// applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// sqlite allows a single writer; one connection keeps writers queued in Go
	// instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return openAndMigrate(ctx, db, DialectSQLite, database.DialectSQLite3)
}

// OpenPostgres connects to postgres with the pgx driver and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return openAndMigrate(ctx, db, DialectPostgres, database.DialectPostgres)
}

func openAndMigrate(ctx context.Context, db *sql.DB, dialect Dialect, gooseDialect database.Dialect) (*SQLStore, error) {
	if err := runMigrations(ctx, db, gooseDialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLStore(db, dialect)
}

// runMigrations applies all pending database migrations using goose.
func runMigrations(ctx context.Context, db *sql.DB, dialect database.Dialect) error {
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create sub filesystem: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, migrationFS)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Debugw("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var (
		access, refresh sql.NullString
		expiry          sql.NullInt64
	)
	if err := row.Scan(&access, &refresh, &expiry); err != nil {
		return nil, err
	}
	return &Credential{
		AccessToken:          access.String,
		RefreshToken:         refresh.String,
		ExpirationTimeMillis: expiry.Int64,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

// Get returns the credential for userID.
func (s *SQLStore) Get(ctx context.Context, userID string) (*Credential, error) {
	cred, err := scanCredential(s.db.QueryRowContext(ctx, s.q.get, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return cred, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) upsert(ctx context.Context, ex execer, userID string, cred *Credential) error {
	_, err := ex.ExecContext(ctx, s.q.upsert,
		userID,
		nullString(cred.AccessToken),
		nullString(cred.RefreshToken),
		nullInt64(cred.ExpirationTimeMillis),
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// Put creates or replaces the credential for userID.
func (s *SQLStore) Put(ctx context.Context, userID string, cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("credential for %s is nil", userID)
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.upsert(ctx, s.db, userID, cred); err != nil {
		return err
	}
	logger.Debugw("stored credential", "user_id", userID, "backend", "sql")
	return nil
}

// Update reads and rewrites the credential inside one transaction.
func (s *SQLStore) Update(ctx context.Context, userID string, fn UpdateFunc) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	current, err := scanCredential(tx.QueryRowContext(ctx, s.q.getForUpdate, userID))
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
	} else if err != nil {
		return fmt.Errorf("querying credential: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	if err := s.upsert(ctx, tx, userID, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes the credential for userID if present.
func (s *SQLStore) Delete(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	if _, err := s.db.ExecContext(ctx, s.q.del, userID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	logger.Debugw("deleted credential", "user_id", userID, "backend", "sql")
	return nil
}

// ListKeys returns every stored user ID in ascending order.
func (s *SQLStore) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q.list)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	return keys, nil
}

// Ping checks database connectivity (health check).
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warnw("failed to roll back transaction", "error", err)
	}
}
