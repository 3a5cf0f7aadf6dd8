package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3" // SQLite driver
)

var ErrDuplicateUsername = errors.New("username already exists")

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withForeignKeys(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chat_history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER NOT NULL,
        query TEXT NOT NULL,
        response TEXT NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE INDEX IF NOT EXISTS idx_chat_history_user_ts ON chat_history (user_id, timestamp);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT id, username, password_hash FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user and returns its id. The UNIQUE constraint on
// username is the only guard against concurrent duplicate registrations.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateUsername
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read user id: %w", err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// Chat history methods
func (s *SQLiteStore) AppendChatEntry(ctx context.Context, userID int64, query, response string) (*ChatEntry, error) {
	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO chat_history (user_id, query, response, timestamp) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chat entry insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	res, err := stmt.ExecContext(ctx, userID, query, response, now)
	if err != nil {
		return nil, fmt.Errorf("failed to execute chat entry insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat entry id: %w", err)
	}
	return &ChatEntry{ID: id, UserID: userID, Query: query, Response: response, Timestamp: now}, nil
}

// ListChatEntries returns every entry of the user, newest first.
func (s *SQLiteStore) ListChatEntries(ctx context.Context, userID int64) ([]ChatEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, query, response, timestamp FROM chat_history WHERE user_id = ? ORDER BY timestamp DESC, id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var entries []ChatEntry
	for rows.Next() {
		var e ChatEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Query, &e.Response, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat history: %w", err)
	}
	return entries, nil
}

// GetChatEntry returns nil when the entry does not exist or belongs to
// another user; the two cases are indistinguishable to the caller.
func (s *SQLiteStore) GetChatEntry(ctx context.Context, entryID, userID int64) (*ChatEntry, error) {
	var e ChatEntry
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, query, response, timestamp FROM chat_history WHERE id = ? AND user_id = ?", entryID, userID).
		Scan(&e.ID, &e.UserID, &e.Query, &e.Response, &e.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat entry: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) DeleteChatEntries(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_history WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat history: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
