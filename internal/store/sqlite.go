package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const kvSchemaSQL = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// DefaultSQLitePath returns chatbot.db next to DefaultFilePath.
func DefaultSQLitePath() string {
	return filepath.Join(filepath.Dir(DefaultFilePath()), "chatbot.db")
}

// SQLiteStore keeps entries in a single-table sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultSQLitePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec(kvSchemaSQL); err != nil {
		return errors.Wrap(err, "init schema")
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key=?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "select kv")
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO kv(key, value) VALUES(?,?)", key, value)
	if err != nil {
		return errors.Wrap(err, "upsert kv")
	}
	return nil
}

func (s *SQLiteStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO kv(key, value) VALUES(?,?)", key, value); err != nil {
		return "", errors.Wrap(err, "insert kv")
	}
	var stored string
	if err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key=?", key).Scan(&stored); err != nil {
		return "", errors.Wrap(err, "select kv")
	}
	return stored, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key=?", key); err != nil {
		return errors.Wrap(err, "delete kv")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
