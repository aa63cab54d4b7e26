package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/langflow/ai-teacher/pkg/logger"
)

// ─────────────────────────────────────────────────────────────────────────────
// Ports
// ─────────────────────────────────────────────────────────────────────────────

// SessionFlusher persists every in-memory buffer.
type SessionFlusher interface {
	FlushAll(ctx context.Context) error
}

// IdleEvicter drops in-memory buffers that have not been used for ttl.
type IdleEvicter interface {
	EvictIdle(ctx context.Context, ttl time.Duration) (int, error)
}

// BufferPurger deletes stored buffers last written before cutoff.
type BufferPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Flush
// ─────────────────────────────────────────────────────────────────────────────

// FlushSessionsJob periodically saves every live buffer so a crash loses at
// most one interval of conversation.
type FlushSessionsJob struct {
	sessions SessionFlusher
}

// NewFlushSessionsJob creates the job.
func NewFlushSessionsJob(sessions SessionFlusher) *FlushSessionsJob {
	return &FlushSessionsJob{sessions: sessions}
}

func (j *FlushSessionsJob) Name() string        { return "flush_sessions" }
func (j *FlushSessionsJob) Description() string { return "Persist in-memory conversation buffers" }

// Run flushes all sessions.
func (j *FlushSessionsJob) Run(ctx context.Context) error {
	if err := j.sessions.FlushAll(ctx); err != nil {
		return fmt.Errorf("flush sessions: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Evict
// ─────────────────────────────────────────────────────────────────────────────

// EvictIdleJob releases memory held by conversations that went quiet.
type EvictIdleJob struct {
	sessions IdleEvicter
	ttl      time.Duration
	log      *logger.Logger
}

// NewEvictIdleJob creates the job.
func NewEvictIdleJob(sessions IdleEvicter, ttl time.Duration, log *logger.Logger) *EvictIdleJob {
	if log == nil {
		log = logger.Nop()
	}
	return &EvictIdleJob{sessions: sessions, ttl: ttl, log: log}
}

func (j *EvictIdleJob) Name() string { return "evict_idle_sessions" }
func (j *EvictIdleJob) Description() string {
	return fmt.Sprintf("Evict conversations idle for %s", j.ttl)
}

// Run evicts idle sessions.
func (j *EvictIdleJob) Run(ctx context.Context) error {
	n, err := j.sessions.EvictIdle(ctx, j.ttl)
	if n > 0 {
		j.log.Info("idle sessions evicted", logger.Int("count", n))
	}
	if err != nil {
		return fmt.Errorf("evict idle sessions: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Purge
// ─────────────────────────────────────────────────────────────────────────────

// PurgeStaleBuffersJob deletes stored buffers older than the retention period.
type PurgeStaleBuffersJob struct {
	store     BufferPurger
	retention time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// NewPurgeStaleBuffersJob creates the job. A nil now defaults to time.Now.
func NewPurgeStaleBuffersJob(store BufferPurger, retention time.Duration, now func() time.Time, log *logger.Logger) *PurgeStaleBuffersJob {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PurgeStaleBuffersJob{store: store, retention: retention, now: now, log: log}
}

func (j *PurgeStaleBuffersJob) Name() string { return "purge_stale_buffers" }
func (j *PurgeStaleBuffersJob) Description() string {
	return fmt.Sprintf("Delete stored buffers untouched for %s", j.retention)
}

// Run deletes the stale rows.
func (j *PurgeStaleBuffersJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	n, err := j.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge stale buffers: %w", err)
	}
	if n > 0 {
		j.log.Info("stale buffers purged", logger.Int64("count", n), logger.Time("cutoff", cutoff))
	}
	return nil
}
