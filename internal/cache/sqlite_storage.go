package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stores (
  name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS entries (
  store TEXT NOT NULL,
  key   TEXT NOT NULL,
  value BLOB NOT NULL,
  PRIMARY KEY (store, key)
);`

// SQLiteStorage keeps every named store in a single SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path and applies the schema
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Open(name string) (GenericCache, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	store := &sqliteCache{db: s.db, store: name}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to create store %s: %w", name, err)
	}
	return store, nil
}

func (s *SQLiteStorage) Lookup(name string) (GenericCache, error) {
	found, err := s.Has(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrStoreNotFound
	}
	return &sqliteCache{db: s.db, store: name}, nil
}

func (s *SQLiteStorage) Has(name string) (bool, error) {
	if err := validateStoreName(name); err != nil {
		return false, err
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM stores WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) Names() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM stores ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStorage) Delete(name string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM entries WHERE store = ?`, name); err != nil {
		return false, fmt.Errorf("failed to delete entries of %s: %w", name, err)
	}
	res, err := tx.Exec(`DELETE FROM stores WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete store %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the SQLite handle
func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sqliteCache struct {
	db    *sql.DB
	store string
}

func (c *sqliteCache) Get(key string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRow(`SELECT value FROM entries WHERE store = ? AND key = ?`, c.store, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (c *sqliteCache) Set(key string, value []byte) error {
	res, err := c.db.Exec(
		`INSERT INTO entries (store, key, value)
		 SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM stores WHERE name = ?)
		 ON CONFLICT(store, key) DO UPDATE SET value = excluded.value`,
		c.store, key, value, c.store,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (c *sqliteCache) Keys() ([]string, error) {
	rows, err := c.db.Query(`SELECT key FROM entries WHERE store = ? ORDER BY key`, c.store)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (c *sqliteCache) Init() error {
	_, err := c.db.Exec(`INSERT OR IGNORE INTO stores (name) VALUES (?)`, c.store)
	return err
}
