package session

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the session in a single-row table.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	opts options
}

// OpenSQLiteStore opens (creating if needed) the database at dbPath.
func OpenSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, opts: buildOptions(opts)}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		token TEXT NOT NULL,
		profile BLOB,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get() (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sess Session
	var profile []byte
	err := s.db.QueryRow(`SELECT token, profile FROM session WHERE id = 1`).Scan(&sess.Token, &profile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.opts.logger.Warn("failed to read session row", zap.Error(err))
		return nil, false
	}
	if profile != nil {
		sess.User = profile
	}

	ok, drop := s.opts.usable(&sess)
	if drop {
		if _, err := s.db.Exec(`DELETE FROM session`); err != nil {
			s.opts.logger.Warn("failed to remove expired session", zap.Error(err))
		}
	}
	if !ok {
		return nil, false
	}
	return &sess, true
}

func (s *SQLiteStore) Set(sess Session) error {
	if sess.Token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var profile []byte
	if sess.User != nil {
		profile = []byte(sess.User)
	}
	_, err := s.db.Exec(`
		INSERT INTO session (id, token, profile, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			profile = excluded.profile,
			updated_at = excluded.updated_at
	`, sess.Token, profile, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
