/*
Package sqlite provides a SQLite-backed implementation of the credential store.

PURPOSE:
  Keeps the OAuth refresh token across process restarts. The schema is a
  small key/value table so the same database can hold any other named
  secret later without a migration.

INTERFACES IMPLEMENTED:
  generic.CredentialStore: via Store.Credential(key)

KEY TABLES:
  credentials: key TEXT PRIMARY KEY, value TEXT, updated_at TEXT (RFC 3339)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single open connection so
  ":memory:" databases behave like one database.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New(ctx, "./data/worktime.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  tokens := store.Credential(generic.RefreshTokenKey)

MIGRATION:
  Versioned goose migrations are embedded from migrations/ and applied
  by New().

SEE ALSO:
  - generic/store.go: Interface definition
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/worktime-checker/generic"
	"github.com/warp/worktime-checker/store/sqlite/migrations"
)

// Store is a key/value credential table in SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// gooseUpContext is a seam for testing migration failures.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// New opens the database at dbPath and applies pending migrations.
// Missing parent directories are created. Use ":memory:" for an in-memory
// database.
func New(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewFromDB(db), nil
}

// NewFromDB wraps an already migrated database.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// KEY/VALUE OPERATIONS
// =============================================================================

// GetValue returns the value stored under key; ok is false when absent.
func (s *Store) GetValue(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read credential[%s]: %w", key, err)
	}
	return value, true, nil
}

// SetValue stores value under key, replacing any previous value.
func (s *Store) SetValue(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to write credential[%s]: %w", key, err)
	}
	return nil
}

// DeleteValue removes key. Removing an absent key is not an error.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete credential[%s]: %w", key, err)
	}
	return nil
}

// =============================================================================
// CREDENTIAL STORE ADAPTER
// =============================================================================

// Credential returns a generic.CredentialStore bound to one key.
func (s *Store) Credential(key string) generic.CredentialStore {
	return &credential{store: s, key: key}
}

type credential struct {
	store *Store
	key   string
}

func (c *credential) Get(ctx context.Context) (string, bool, error) {
	return c.store.GetValue(ctx, c.key)
}

func (c *credential) Set(ctx context.Context, value string) error {
	return c.store.SetValue(ctx, c.key, value)
}

func (c *credential) Delete(ctx context.Context) error {
	return c.store.DeleteValue(ctx, c.key)
}
