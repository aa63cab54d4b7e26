package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

// BufferCache keeps buffer snapshots under "buffer:{student_id}".
type BufferCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewBufferCache creates a BufferCache. A non-positive ttl uses TTLBuffer.
func NewBufferCache(cache *Cache, ttl time.Duration) *BufferCache {
	if ttl <= 0 {
		ttl = TTLBuffer
	}
	return &BufferCache{cache: cache, ttl: ttl}
}

// Get returns the cached snapshot or ErrCacheMiss.
func (b *BufferCache) Get(ctx context.Context, studentID string) (conversation.Snapshot, error) {
	var snap conversation.Snapshot
	if err := b.cache.Get(ctx, BufferKey(studentID), &snap); err != nil {
		if errors.Is(err, ErrCacheSerialization) {
			return conversation.Snapshot{}, fmt.Errorf("%w: %v", conversation.ErrInvalidSnapshot, err)
		}
		return conversation.Snapshot{}, err
	}
	return snap, nil
}

// Set caches the snapshot and refreshes its TTL.
func (b *BufferCache) Set(ctx context.Context, snap conversation.Snapshot) error {
	return b.cache.Set(ctx, BufferKey(snap.StudentID), snap, b.ttl)
}

// Delete drops the cached snapshot.
func (b *BufferCache) Delete(ctx context.Context, studentID string) error {
	return b.cache.Delete(ctx, BufferKey(studentID))
}

// UserCache keeps backend users keyed by Telegram id, so the student check on
// every /ai_teacher does not hit the backend.
type UserCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewUserCache creates a UserCache. A non-positive ttl uses TTLUser.
func NewUserCache(cache *Cache, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = TTLUser
	}
	return &UserCache{cache: cache, ttl: ttl}
}

// Get returns the cached user or ErrCacheMiss.
func (u *UserCache) Get(ctx context.Context, telegramID int64) (tutoring.User, error) {
	var user tutoring.User
	if err := u.cache.Get(ctx, UserKey(telegramID), &user); err != nil {
		return tutoring.User{}, err
	}
	return user, nil
}

// Set caches the user.
func (u *UserCache) Set(ctx context.Context, user tutoring.User) error {
	return u.cache.Set(ctx, UserKey(user.TelegramID), user, u.ttl)
}
