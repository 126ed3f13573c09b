package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

// Store is the SQLite-backed keyed-collection store. Each collection is a
// table of (key, JSON data) rows with generated index columns.
type Store struct {
	db   *sql.DB
	path string

	// per-collection write locks
	locks map[Collection]*sync.Mutex
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{
		db:    db,
		path:  path,
		locks: make(map[Collection]*sync.Mutex, len(Collections)),
	}
	for _, c := range Collections {
		s.locks[c] = &sync.Mutex{}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		version = 0
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("%w: database has version %d, this build supports %d", ErrSchemaTooNew, version, currentSchemaVersion)
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	return nil
}

// migrateV1 creates the four collections.
func (s *Store) migrateV1() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS bookmarks (
			key TEXT PRIMARY KEY NOT NULL,
			data TEXT NOT NULL,
			url_normalized TEXT GENERATED ALWAYS AS (json_extract(data, '$.urlNormalized')) VIRTUAL,
			category TEXT GENERATED ALWAYS AS (json_extract(data, '$.category')) VIRTUAL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_bookmarks_url_normalized ON bookmarks(url_normalized);
		CREATE INDEX IF NOT EXISTS idx_bookmarks_category ON bookmarks(category);

		CREATE TABLE IF NOT EXISTS duplicates (
			key TEXT PRIMARY KEY NOT NULL,
			data TEXT NOT NULL,
			primary_id TEXT GENERATED ALWAYS AS (json_extract(data, '$.primaryId')) VIRTUAL,
			duplicate_id TEXT GENERATED ALWAYS AS (json_extract(data, '$.duplicateId')) VIRTUAL,
			status TEXT GENERATED ALWAYS AS (json_extract(data, '$.status')) VIRTUAL
		);
		CREATE INDEX IF NOT EXISTS idx_duplicates_primary_id ON duplicates(primary_id);
		CREATE INDEX IF NOT EXISTS idx_duplicates_duplicate_id ON duplicates(duplicate_id);
		CREATE INDEX IF NOT EXISTS idx_duplicates_status ON duplicates(status);

		CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY NOT NULL,
			data TEXT NOT NULL,
			expires TEXT GENERATED ALWAYS AS (json_extract(data, '$.expires')) VIRTUAL
		);
		CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache(expires);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY NOT NULL,
			data TEXT NOT NULL
		);

		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces the record stored under key.
func (s *Store) Put(ctx context.Context, c Collection, key string, record any) error {
	if !validCollection(c) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c, key, err)
	}

	mu := s.locks[c]
	mu.Lock()
	defer mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return putTx(ctx, tx, c, key, data)
	})
}

func putTx(ctx context.Context, tx *sql.Tx, c Collection, key string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data
	`, c)
	if _, err := tx.ExecContext(ctx, query, key, string(data)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrConflict, c, key)
		}
		return err
	}
	return nil
}

// Update replaces the record stored under key. Unlike Put it never inserts:
// a missing key yields ErrNotFound.
func (s *Store) Update(ctx context.Context, c Collection, key string, record any) error {
	if !validCollection(c) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c, key, err)
	}

	mu := s.locks[c]
	mu.Lock()
	defer mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET data = ? WHERE key = ?", c), string(data), key)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s/%s", ErrConflict, c, key)
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, c, key)
		}
		return nil
	})
}

// Get decodes the record stored under key into dest.
func (s *Store) Get(ctx context.Context, c Collection, key string, dest any) error {
	if !validCollection(c) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}

	var data string
	query := fmt.Sprintf("SELECT data FROM %s WHERE key = ?", c)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, c, key)
	}
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

// GetAll returns every record of a collection in insertion order.
func (s *Store) GetAll(ctx context.Context, c Collection) ([]json.RawMessage, error) {
	if !validCollection(c) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	return s.queryRaw(ctx, fmt.Sprintf("SELECT data FROM %s ORDER BY rowid", c))
}

// Delete removes the record under key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, c Collection, key string) error {
	if !validCollection(c) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}

	mu := s.locks[c]
	mu.Lock()
	defer mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", c), key)
		return err
	})
}

// DeleteKeys removes several records of one collection in a single transaction
// and returns how many existed.
func (s *Store) DeleteKeys(ctx context.Context, c Collection, keys []string) (int, error) {
	if !validCollection(c) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	mu := s.locks[c]
	mu.Lock()
	defer mu.Unlock()

	var deleted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", c))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, key := range keys {
			res, err := stmt.ExecContext(ctx, key)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			deleted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// QueryByIndex returns the records whose index column equals value.
func (s *Store) QueryByIndex(ctx context.Context, c Collection, index string, value any) ([]json.RawMessage, error) {
	if !validCollection(c) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	if !validIndex(c, index) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownIndex, c, index)
	}
	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = ? ORDER BY rowid", c, index)
	return s.queryRaw(ctx, query, value)
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, c Collection) (int, error) {
	if !validCollection(c) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", c)).Scan(&n)
	return n, err
}

// Usage returns the bytes held by live pages of the database file.
func (s *Store) Usage(ctx context.Context) (int64, error) {
	var pageCount, freeCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA freelist_count").Scan(&freeCount); err != nil {
		return 0, err
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return (pageCount - freeCount) * pageSize, nil
}

// Vacuum rebuilds the database file, returning freed pages to the filesystem.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// ClearAll deletes every record of every collection in one transaction.
func (s *Store) ClearAll(ctx context.Context) error {
	unlock := s.lockAll()
	defer unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range Collections {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c)); err != nil {
				return err
			}
		}
		return nil
	})
}

// lockAll takes every collection lock in a fixed order.
func (s *Store) lockAll() func() {
	for _, c := range Collections {
		s.locks[c].Lock()
	}
	return func() {
		for i := len(Collections) - 1; i >= 0; i-- {
			s.locks[Collections[i]].Unlock()
		}
	}
}

func (s *Store) queryRaw(ctx context.Context, query string, args ...any) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []json.RawMessage{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		records = append(records, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// withTx runs fn in a transaction, rolling back on any error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// decodeAll decodes raw records into typed values.
func decodeAll[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
