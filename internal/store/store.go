// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/together-plan/chatplan/internal/domain"
)

// Repository persists member profiles and saved summaries.
type Repository interface {
	// GetMember returns nil, nil when the member does not exist.
	GetMember(ctx context.Context, userID string) (*domain.Member, error)

	// UpsertMember creates or refreshes a member row.
	UpsertMember(ctx context.Context, m *domain.Member) error

	// TouchMember updates last_seen_at.
	TouchMember(ctx context.Context, userID string, seen time.Time) error

	// SaveTemplate inserts t and sets its ID.
	SaveTemplate(ctx context.Context, t *domain.Template) error

	// ListTemplates returns a member's templates, newest first.
	ListTemplates(ctx context.Context, userID string, limit int) ([]domain.Template, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
