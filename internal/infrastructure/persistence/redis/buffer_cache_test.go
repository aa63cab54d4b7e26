package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

func TestBufferCache_SetGet(t *testing.T) {
	cache, mr := newTestCache(t)
	bc := NewBufferCache(cache, time.Hour)
	ctx := context.Background()

	snap := conversation.NewBuffer("stu-1").Snapshot()
	require.NoError(t, bc.Set(ctx, snap))

	assert.True(t, mr.Exists("buffer:stu-1"))
	assert.Equal(t, time.Hour, mr.TTL("buffer:stu-1"))

	got, err := bc.Get(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", got.StudentID)
	assert.True(t, snap.LastConsolidation.Equal(got.LastConsolidation))
}

func TestBufferCache_MissAndExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	bc := NewBufferCache(cache, time.Minute)
	ctx := context.Background()

	_, err := bc.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, bc.Set(ctx, conversation.NewBuffer("stu-1").Snapshot()))
	mr.FastForward(2 * time.Minute)

	_, err = bc.Get(ctx, "stu-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestBufferCache_CorruptValue(t *testing.T) {
	cache, mr := newTestCache(t)
	bc := NewBufferCache(cache, 0)

	require.NoError(t, mr.Set("buffer:stu-1", "{not json"))

	_, err := bc.Get(context.Background(), "stu-1")
	assert.ErrorIs(t, err, conversation.ErrInvalidSnapshot)
}

func TestBufferCache_Delete(t *testing.T) {
	cache, mr := newTestCache(t)
	bc := NewBufferCache(cache, 0)
	ctx := context.Background()

	require.NoError(t, bc.Set(ctx, conversation.NewBuffer("stu-1").Snapshot()))
	require.NoError(t, bc.Delete(ctx, "stu-1"))
	assert.False(t, mr.Exists("buffer:stu-1"))
}

func TestUserCache(t *testing.T) {
	cache, mr := newTestCache(t)
	uc := NewUserCache(cache, 0)
	ctx := context.Background()

	user := tutoring.User{ID: "stu-1", TelegramID: 4242, Role: tutoring.RoleStudent}
	require.NoError(t, uc.Set(ctx, user))
	assert.Equal(t, TTLUser, mr.TTL("user:telegram:4242"))

	got, err := uc.Get(ctx, 4242)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = uc.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
