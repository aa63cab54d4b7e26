package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langflow/ai-teacher/internal/application/orchestrator"
	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/infrastructure/persistence/redis"
)

type memTier struct {
	data    map[string]conversation.Snapshot
	gets    int
	setErr  error
	getErr  error
	deleted []string
}

func newMemTier() *memTier {
	return &memTier{data: make(map[string]conversation.Snapshot)}
}

func (m *memTier) Get(_ context.Context, id string) (conversation.Snapshot, error) {
	m.gets++
	if m.getErr != nil {
		return conversation.Snapshot{}, m.getErr
	}
	s, ok := m.data[id]
	if !ok {
		return conversation.Snapshot{}, redis.ErrCacheMiss
	}
	return s, nil
}

func (m *memTier) Set(_ context.Context, s conversation.Snapshot) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[s.StudentID] = s
	return nil
}

func (m *memTier) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.data, id)
	return nil
}

type memDurable struct {
	data    map[string]conversation.Snapshot
	loads   int
	saveErr error
}

func newMemDurable() *memDurable {
	return &memDurable{data: make(map[string]conversation.Snapshot)}
}

func (m *memDurable) Load(_ context.Context, id string) (conversation.Snapshot, error) {
	m.loads++
	s, ok := m.data[id]
	if !ok {
		return conversation.Snapshot{}, orchestrator.ErrStoreNotFound
	}
	return s, nil
}

func (m *memDurable) Save(_ context.Context, s conversation.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[s.StudentID] = s
	return nil
}

func snapshot(id, profile string) conversation.Snapshot {
	s := conversation.NewBuffer(id).Snapshot()
	s.UserProfile = profile
	return s
}

func TestTieredStore_ReadThroughAndBackfill(t *testing.T) {
	cache, durable := newMemTier(), newMemDurable()
	durable.data["stu-1"] = snapshot("stu-1", "from db")
	store := NewTieredStore(cache, durable, nil)
	ctx := context.Background()

	got, err := store.Load(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "from db", got.UserProfile)
	assert.Equal(t, 1, durable.loads)
	assert.Contains(t, cache.data, "stu-1")

	_, err = store.Load(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, durable.loads)
}

func TestTieredStore_NotFound(t *testing.T) {
	store := NewTieredStore(newMemTier(), newMemDurable(), nil)

	_, err := store.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, orchestrator.ErrStoreNotFound)

	cacheOnly := NewTieredStore(newMemTier(), nil, nil)
	_, err = cacheOnly.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, orchestrator.ErrStoreNotFound)
}

func TestTieredStore_CacheFailureFallsBack(t *testing.T) {
	cache, durable := newMemTier(), newMemDurable()
	cache.getErr = errors.New("connection refused")
	durable.data["stu-1"] = snapshot("stu-1", "from db")
	store := NewTieredStore(cache, durable, nil)

	got, err := store.Load(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "from db", got.UserProfile)
}

func TestTieredStore_CorruptCacheEntryDropped(t *testing.T) {
	cache, durable := newMemTier(), newMemDurable()
	cache.getErr = conversation.ErrInvalidSnapshot
	durable.data["stu-1"] = snapshot("stu-1", "from db")
	store := NewTieredStore(cache, durable, nil)

	_, err := store.Load(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, cache.deleted)
}

func TestTieredStore_SaveWritesBothTiers(t *testing.T) {
	cache, durable := newMemTier(), newMemDurable()
	store := NewTieredStore(cache, durable, nil)

	require.NoError(t, store.Save(context.Background(), snapshot("stu-1", "p")))
	assert.Contains(t, durable.data, "stu-1")
	assert.Contains(t, cache.data, "stu-1")
}

func TestTieredStore_DurableFailureDropsCache(t *testing.T) {
	cache, durable := newMemTier(), newMemDurable()
	cache.data["stu-1"] = snapshot("stu-1", "old")
	durable.saveErr = errors.New("db down")
	store := NewTieredStore(cache, durable, nil)

	err := store.Save(context.Background(), snapshot("stu-1", "new"))
	require.Error(t, err)
	assert.NotContains(t, cache.data, "stu-1")
}

func TestTieredStore_CacheWriteFailureIsNotFatal(t *testing.T) {
	cache, durable := newMemTier(), newMemDurable()
	cache.setErr = errors.New("oom")
	store := NewTieredStore(cache, durable, nil)

	assert.NoError(t, store.Save(context.Background(), snapshot("stu-1", "p")))
	assert.Contains(t, durable.data, "stu-1")
}
