// ABOUTME: SQLite implementation of the session cache using modernc.org/sqlite
// ABOUTME: Creates its schema on open and stores records as JSON with RFC3339 timestamps

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/chat-sync/internal/model"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the cache at path. Parent directories
// are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("session cache initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS session (
			id        INTEGER PRIMARY KEY CHECK (id = 1),
			token     TEXT NOT NULL,
			user_json TEXT NOT NULL,
			saved_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			viewer_id       INTEGER NOT NULL,
			conversation_id INTEGER NOT NULL,
			position        INTEGER NOT NULL,
			data_json       TEXT NOT NULL,
			saved_at        TEXT NOT NULL,
			PRIMARY KEY (viewer_id, conversation_id)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_viewer_position
			ON conversations(viewer_id, position);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runMigrations adds columns introduced after the first release.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('conversations') WHERE name = 'members_json'`,
			apply:  `ALTER TABLE conversations ADD COLUMN members_json TEXT`,
			column: "members_json",
		},
	}

	for _, m := range migrations {
		var exists int
		if err := s.db.QueryRow(m.check).Scan(&exists); err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "conversations")
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing session cache")
	return s.db.Close()
}

// SaveSession replaces the stored session.
func (s *SQLiteStore) SaveSession(ctx context.Context, session Session) error {
	userJSON, err := json.Marshal(session.User)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	if session.SavedAt.IsZero() {
		session.SavedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (id, token, user_json, saved_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_json = excluded.user_json,
			saved_at = excluded.saved_at
	`, session.Token, string(userJSON), session.SavedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session or ErrNotFound.
func (s *SQLiteStore) LoadSession(ctx context.Context) (Session, error) {
	var (
		session  Session
		userJSON string
		savedAt  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_json, saved_at FROM session WHERE id = 1`,
	).Scan(&session.Token, &userJSON, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("loading session: %w", err)
	}

	if err := json.Unmarshal([]byte(userJSON), &session.User); err != nil {
		return Session{}, fmt.Errorf("decoding user: %w", err)
	}
	session.SavedAt, err = time.Parse(time.RFC3339, savedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parsing saved_at: %w", err)
	}
	return session, nil
}

// ClearSession removes the session and all cached conversations.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clearing conversations: %w", err)
	}
	return tx.Commit()
}

// SaveConversations replaces the viewer's cached list, keeping the given order.
func (s *SQLiteStore) SaveConversations(ctx context.Context, viewerID int64, conversations []model.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE viewer_id = ?`, viewerID); err != nil {
		return fmt.Errorf("clearing cached conversations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (viewer_id, conversation_id, position, data_json, members_json, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, c := range conversations {
		members := c.Members
		c.Members = nil
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding conversation %d: %w", c.ID, err)
		}
		var membersJSON sql.NullString
		if members != nil {
			raw, err := json.Marshal(members)
			if err != nil {
				return fmt.Errorf("encoding members of %d: %w", c.ID, err)
			}
			membersJSON = sql.NullString{String: string(raw), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, viewerID, c.ID, i, string(data), membersJSON, now); err != nil {
			return fmt.Errorf("saving conversation %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// LoadConversations returns the viewer's cached list in saved order.
func (s *SQLiteStore) LoadConversations(ctx context.Context, viewerID int64) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data_json, members_json FROM conversations
		WHERE viewer_id = ?
		ORDER BY position ASC
	`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		var (
			data    string
			members sql.NullString
		)
		if err := rows.Scan(&data, &members); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		var c model.Conversation
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("decoding conversation: %w", err)
		}
		if members.Valid {
			if err := json.Unmarshal([]byte(members.String), &c.Members); err != nil {
				return nil, fmt.Errorf("decoding members of %d: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
