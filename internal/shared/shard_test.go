package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShardIndexStable(t *testing.T) {
	for _, key := range []string{"", "user-1", "anon_0123", "한국어"} {
		first := ShardIndex(key, 32)
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 32)
		assert.Equal(t, first, ShardIndex(key, 32), "key %q", key)
	}
	assert.Equal(t, 0, ShardIndex("anything", 1))
	assert.Equal(t, 0, ShardIndex("anything", 0))
}

func TestIsSQLiteConflictError(t *testing.T) {
	assert.False(t, IsSQLiteConflictError(nil))
	assert.True(t, IsSQLiteConflictError(errors.New("SQLITE_BUSY: busy")))
	assert.True(t, IsSQLiteConflictError(errors.New("database is locked")))
	assert.False(t, IsSQLiteConflictError(errors.New("no such table")))
}

func TestRetryOnConflict(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	permanent := errors.New("constraint failed")
	err = RetryOnConflict(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}
