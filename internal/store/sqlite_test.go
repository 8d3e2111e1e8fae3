package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/together-plan/chatplan/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "chatplan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemberRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetMember(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.UpsertMember(ctx, &domain.Member{
		UserID: "u1", Nickname: "guest-1", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}))

	later := now.Add(time.Hour)
	require.NoError(t, s.TouchMember(ctx, "u1", later))
	require.NoError(t, s.TouchMember(ctx, "missing", later))

	got, err = s.GetMember(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "guest-1", got.Nickname)
	assert.Equal(t, later.Unix(), got.LastSeenAt.Unix())
	assert.Equal(t, now.Unix(), got.CreatedAt.Unix())
}

func TestTemplatesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i, name := range []string{"first", "second"} {
		tpl := &domain.Template{
			UserID:    "u1",
			Title:     name,
			Content:   "content " + name,
			PlanName:  name,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.SaveTemplate(ctx, tpl))
		assert.NotZero(t, tpl.ID)
	}
	require.NoError(t, s.SaveTemplate(ctx, &domain.Template{UserID: "u2", Title: "other", PlanName: "x"}))

	list, err := s.ListTemplates(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Title)
	assert.Equal(t, "first", list[1].Title)

	empty, err := s.ListTemplates(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
}
