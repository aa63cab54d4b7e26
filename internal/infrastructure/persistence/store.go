// Package persistence composes the buffer stores: Redis keeps recent
// snapshots hot, PostgreSQL keeps every snapshot durable.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/langflow/ai-teacher/internal/application/orchestrator"
	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/infrastructure/persistence/redis"
	"github.com/langflow/ai-teacher/pkg/logger"
)

// SnapshotCache is the hot tier. Get returns redis.ErrCacheMiss on a miss.
type SnapshotCache interface {
	Get(ctx context.Context, studentID string) (conversation.Snapshot, error)
	Set(ctx context.Context, snap conversation.Snapshot) error
	Delete(ctx context.Context, studentID string) error
}

// TieredStore implements orchestrator.BufferStore over an optional cache and
// an optional durable store. Cache failures are logged and never fail a call.
type TieredStore struct {
	cache   SnapshotCache
	durable orchestrator.BufferStore
	log     *logger.Logger
}

// NewTieredStore creates a TieredStore. Either tier may be nil.
func NewTieredStore(cache SnapshotCache, durable orchestrator.BufferStore, log *logger.Logger) *TieredStore {
	if log == nil {
		log = logger.Nop()
	}
	return &TieredStore{
		cache:   cache,
		durable: durable,
		log:     log.With(logger.Component("buffer_store")),
	}
}

// Load reads through the cache and backfills it from the durable tier.
func (s *TieredStore) Load(ctx context.Context, studentID string) (conversation.Snapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.Get(ctx, studentID)
		switch {
		case err == nil:
			return snap, nil
		case errors.Is(err, redis.ErrCacheMiss):
		case errors.Is(err, conversation.ErrInvalidSnapshot):
			s.log.Warn("dropping corrupt cached snapshot", logger.StudentID(studentID), logger.Err(err))
			_ = s.cache.Delete(ctx, studentID)
		default:
			s.log.Warn("buffer cache read failed", logger.StudentID(studentID), logger.Err(err))
		}
	}

	if s.durable == nil {
		return conversation.Snapshot{}, orchestrator.ErrStoreNotFound
	}

	snap, err := s.durable.Load(ctx, studentID)
	if err != nil {
		return conversation.Snapshot{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, snap); err != nil {
			s.log.Warn("buffer cache backfill failed", logger.StudentID(studentID), logger.Err(err))
		}
	}
	return snap, nil
}

// Save writes the durable tier first, then the cache. If the durable write
// fails the cached copy is dropped so a later Load cannot see a snapshot
// newer than what survives a restart.
func (s *TieredStore) Save(ctx context.Context, snap conversation.Snapshot) error {
	if s.durable != nil {
		if err := s.durable.Save(ctx, snap); err != nil {
			if s.cache != nil {
				_ = s.cache.Delete(ctx, snap.StudentID)
			}
			return fmt.Errorf("durable save: %w", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, snap); err != nil {
			if s.durable == nil {
				return fmt.Errorf("cache save: %w", err)
			}
			s.log.Warn("buffer cache write failed", logger.StudentID(snap.StudentID), logger.Err(err))
		}
	}
	return nil
}
