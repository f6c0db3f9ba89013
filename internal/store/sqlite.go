// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides output set and payment request persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps :memory: databases coherent and serialises
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transactions (
			txid       TEXT PRIMARY KEY,
			raw_tx     BLOB NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS derivations (
			owner_identity_key  TEXT NOT NULL,
			sender_identity_key TEXT NOT NULL,
			prefix              TEXT NOT NULL,
			suffix              TEXT NOT NULL,
			created_at          TEXT NOT NULL,
			PRIMARY KEY (owner_identity_key, sender_identity_key, prefix, suffix)
		);

		CREATE TABLE IF NOT EXISTS outputs (
			txid                TEXT NOT NULL,
			vout                INTEGER NOT NULL,
			owner_identity_key  TEXT NOT NULL,
			satoshis            INTEGER NOT NULL,
			locking_script      BLOB NOT NULL,
			basket              TEXT NOT NULL,
			spendable           INTEGER NOT NULL DEFAULT 1,
			tags_json           TEXT NOT NULL DEFAULT '[]',
			labels_json         TEXT NOT NULL DEFAULT '[]',
			sender_identity_key TEXT NOT NULL,
			derivation_prefix   TEXT NOT NULL,
			derivation_suffix   TEXT NOT NULL,
			request_id          TEXT,
			created_at          TEXT NOT NULL,
			PRIMARY KEY (txid, vout),
			FOREIGN KEY (txid) REFERENCES transactions(txid),
			CHECK (satoshis >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_outputs_owner_basket
			ON outputs(owner_identity_key, basket);

		CREATE TABLE IF NOT EXISTS payment_requests (
			id                 TEXT PRIMARY KEY,
			owner_identity_key TEXT NOT NULL,
			satoshis           INTEGER NOT NULL,
			memo               TEXT NOT NULL,
			derivation_prefix  TEXT NOT NULL,
			derivation_suffix  TEXT NOT NULL,
			created_at         TEXT NOT NULL,
			expires_at         TEXT NOT NULL,
			fulfilled_txid     TEXT,
			fulfilled_at       TEXT,
			CHECK (satoshis > 0)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_derivation
			ON payment_requests(owner_identity_key, derivation_prefix, derivation_suffix);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SetLogger replaces the store's logger.
func (s *SQLiteStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY constraint failed")
}
