// Package store persists profiles and delivered-message history in SQLite.
// All writes funnel through a single goroutine; reads go straight to the
// connection pool.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"tutorhub/internal/config"
	"tutorhub/pkg/types"
)

const (
	writeQueueSize = 100
	writeTimeout   = 30 * time.Second
	retryDelay     = 5 * time.Second
)

// SQLiteStore implements interfaces.ProfileStore on a local SQLite file.
type SQLiteStore struct {
	db       *sql.DB
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// New opens (or creates) the database at cfg.Path, applies pending schema
// migrations and starts the writer goroutine.
func New(cfg *config.DatabaseConfig) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(cfg.Timeout)
	db.SetConnMaxIdleTime(cfg.Timeout / 3)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:       db,
		writeCh:  make(chan writeOp, writeQueueSize),
		shutdown: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop serializes all writes. A failed write is retried once after a
// delay before the error is reported back to the caller.
func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.fn(s.db)
			if err != nil {
				slog.Warn("database write failed, retrying", "error", err)
				time.Sleep(retryDelay)
				err = op.fn(s.db)
				if err != nil {
					slog.Error("database write failed after retry", "error", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func (s *SQLiteStore) executeWrite(fn func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeCh <- writeOp{fn: fn, result: result}:
		return <-result
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrClosed
	}
}

// GetProfile retrieves a profile by username.
func (s *SQLiteStore) GetProfile(ctx context.Context, username string) (*types.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, tutor, assigned_tutor, push_token
		FROM profiles
		WHERE username = ?
	`, username)

	var profile types.Profile
	var assignedTutor sql.NullString
	err := row.Scan(&profile.Username, &profile.Tutor, &assignedTutor, &profile.PushToken)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("profile %s: %w", username, types.ErrParticipantNotFound)
		}
		return nil, fmt.Errorf("%w: query profile: %w", ErrStorage, err)
	}

	if assignedTutor.Valid {
		profile.AssignedTutor = &assignedTutor.String
	}
	return &profile, nil
}

// CreateProfile inserts a new profile row.
func (s *SQLiteStore) CreateProfile(ctx context.Context, profile *types.Profile) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO profiles (username, tutor, assigned_tutor, push_token)
			VALUES (?, ?, ?, ?)
		`, profile.Username, profile.Tutor, nullable(profile.AssignedTutor), profile.PushToken)
		if err != nil {
			return fmt.Errorf("%w: insert profile: %w", ErrStorage, err)
		}
		return nil
	})
}

// UpdateProfile persists the mutable profile fields.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, profile *types.Profile) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE profiles
			SET tutor = ?, assigned_tutor = ?, push_token = ?, updated_at = CURRENT_TIMESTAMP
			WHERE username = ?
		`, profile.Tutor, nullable(profile.AssignedTutor), profile.PushToken, profile.Username)
		if err != nil {
			return fmt.Errorf("%w: update profile: %w", ErrStorage, err)
		}
		return nil
	})
}

// ListProfiles returns every stored profile, ordered by username.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]*types.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, tutor, assigned_tutor, push_token
		FROM profiles
		ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: query profiles: %w", ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*types.Profile
	for rows.Next() {
		var profile types.Profile
		var assignedTutor sql.NullString
		err := rows.Scan(&profile.Username, &profile.Tutor, &assignedTutor, &profile.PushToken)
		if err != nil {
			return nil, fmt.Errorf("%w: scan profile row: %w", ErrStorage, err)
		}
		if assignedTutor.Valid {
			profile.AssignedTutor = &assignedTutor.String
		}
		profiles = append(profiles, &profile)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate profile rows: %w", ErrStorage, err)
	}
	return profiles, nil
}

// AppendMessage records a delivered message against a participant's history.
func (s *SQLiteStore) AppendMessage(ctx context.Context, owner string, msg *types.Message) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, owner, command, from_profile, to_profile, content)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.New().String(), owner, msg.Command, msg.FromProfile, msg.ToProfile, msg.Content)
		if err != nil {
			return fmt.Errorf("%w: insert message: %w", ErrStorage, err)
		}
		return nil
	})
}

// MessagesFor returns a participant's history in chronological order.
func (s *SQLiteStore) MessagesFor(ctx context.Context, username string) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT command, from_profile, to_profile, content
		FROM messages
		WHERE owner = ?
		ORDER BY created_at ASC, rowid ASC
	`, username)
	if err != nil {
		return nil, fmt.Errorf("%w: query message history: %w", ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		var msg types.Message
		err := rows.Scan(&msg.Command, &msg.FromProfile, &msg.ToProfile, &msg.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: scan message row: %w", ErrStorage, err)
		}
		messages = append(messages, &msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate message rows: %w", ErrStorage, err)
	}
	return messages, nil
}

// HealthCheck validates database connectivity.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains the writer goroutine and closes the connection pool.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
