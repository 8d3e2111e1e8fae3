package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeAttempts = 3
	writeBackoff  = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the database at dbPath.
// ":memory:" opens a private in-memory database.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		// WAL mode for concurrent readers alongside the writer.
		dsn = dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS members (
		user_id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS templates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		plan_name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_templates_user ON templates(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetMember retrieves a member by user ID.
func (s *SQLiteStore) GetMember(ctx context.Context, userID string) (*domain.Member, error) {
	query := `
		SELECT user_id, nickname, last_seen_at, created_at, updated_at
		FROM members WHERE user_id = ?`

	var m domain.Member
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&m.UserID, &m.Nickname, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan member row: %w", err)
	}

	m.LastSeenAt = time.Unix(lastSeen, 0)
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	return &m, nil
}

// UpsertMember creates or updates a member record.
func (s *SQLiteStore) UpsertMember(ctx context.Context, m *domain.Member) error {
	query := `
	INSERT INTO members (user_id, nickname, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		nickname = excluded.nickname,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	err := shared.RetryOnConflict(ctx, "upsert_member", writeAttempts, writeBackoff, func() error {
		_, err := s.db.ExecContext(ctx, query,
			m.UserID, m.Nickname, m.LastSeenAt.Unix(),
			m.CreatedAt.Unix(), m.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// TouchMember updates the last_seen_at timestamp.
func (s *SQLiteStore) TouchMember(ctx context.Context, userID string, seen time.Time) error {
	query := `UPDATE members SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`

	var rows int64
	err := shared.RetryOnConflict(ctx, "touch_member", writeAttempts, writeBackoff, func() error {
		result, err := s.db.ExecContext(ctx, query, seen.Unix(), time.Now().Unix(), userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchMember affected 0 rows", "user_id", userID)
	}
	return nil
}

// SaveTemplate inserts a saved summary and sets t.ID.
func (s *SQLiteStore) SaveTemplate(ctx context.Context, t *domain.Template) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	query := `
	INSERT INTO templates (user_id, title, content, plan_name, created_at)
	VALUES (?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, "save_template", writeAttempts, writeBackoff, func() error {
		result, err := s.db.ExecContext(ctx, query,
			t.UserID, t.Title, t.Content, t.PlanName, t.CreatedAt.Unix(),
		)
		if err != nil {
			return err
		}
		t.ID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

// ListTemplates returns up to limit templates for userID, newest first.
func (s *SQLiteStore) ListTemplates(ctx context.Context, userID string, limit int) ([]domain.Template, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, title, content, plan_name, created_at
		FROM templates WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close template rows", "error", closeErr)
		}
	}()

	templates := []domain.Template{}
	for rows.Next() {
		var t domain.Template
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Content, &t.PlanName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
