package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/pkg/logger"
)

// ErrStoreNotFound is returned by a BufferStore when nothing is persisted
// for a student.
var ErrStoreNotFound = errors.New("buffer snapshot not found")

// BufferStore persists buffer snapshots between process restarts.
type BufferStore interface {
	Load(ctx context.Context, studentID string) (conversation.Snapshot, error)
	Save(ctx context.Context, snap conversation.Snapshot) error
}

type session struct {
	mu       sync.Mutex
	buf      *conversation.Buffer
	lastUsed time.Time
}

// SessionManager owns the buffers of all students. Rounds for one student
// run one at a time; different students run concurrently.
type SessionManager struct {
	orch       *Orchestrator
	store      BufferStore
	bufferOpts []conversation.Option
	log        *logger.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	loads    singleflight.Group
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithStore persists buffers after every round and loads them lazily.
func WithStore(store BufferStore) SessionOption {
	return func(m *SessionManager) {
		m.store = store
	}
}

// WithBufferOptions sets the options new and restored buffers are built with.
func WithBufferOptions(opts ...conversation.Option) SessionOption {
	return func(m *SessionManager) {
		m.bufferOpts = opts
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *logger.Logger) SessionOption {
	return func(m *SessionManager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithSessionClock overrides the clock used for idle tracking.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(orch *Orchestrator, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		orch:     orch,
		log:      logger.Nop(),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("session_manager"))
	return m
}

// Handle runs one round for a student and persists the buffer afterwards.
// A failed save is logged; the reply is still returned.
func (m *SessionManager) Handle(ctx context.Context, studentID, text string) (string, error) {
	s, err := m.session(ctx, studentID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := m.orch.HandleMessage(ctx, s.buf, text)
	s.lastUsed = m.now()
	m.save(ctx, s.buf)
	return reply, err
}

// Buffer returns the buffer of a student, loading or creating it.
func (m *SessionManager) Buffer(ctx context.Context, studentID string) (*conversation.Buffer, error) {
	s, err := m.session(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.buf, nil
}

// Warm loads a student's buffer into memory ahead of the first round.
func (m *SessionManager) Warm(ctx context.Context, studentID string) error {
	_, err := m.session(ctx, studentID)
	return err
}

func (m *SessionManager) session(ctx context.Context, studentID string) (*session, error) {
	if studentID == "" {
		return nil, errors.New("empty student id")
	}

	m.mu.Lock()
	s, ok := m.sessions[studentID]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	v, err, _ := m.loads.Do(studentID, func() (any, error) {
		m.mu.Lock()
		if s, ok := m.sessions[studentID]; ok {
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		buf, err := m.loadBuffer(ctx, studentID)
		if err != nil {
			return nil, err
		}
		s := &session{buf: buf, lastUsed: m.now()}

		m.mu.Lock()
		m.sessions[studentID] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

func (m *SessionManager) loadBuffer(ctx context.Context, studentID string) (*conversation.Buffer, error) {
	if m.store == nil {
		return conversation.NewBuffer(studentID, m.bufferOpts...), nil
	}

	snap, err := m.store.Load(ctx, studentID)
	switch {
	case errors.Is(err, ErrStoreNotFound):
		return conversation.NewBuffer(studentID, m.bufferOpts...), nil
	case errors.Is(err, conversation.ErrInvalidSnapshot):
		m.log.Warn("discarding unreadable buffer snapshot", logger.StudentID(studentID), logger.Err(err))
		return conversation.NewBuffer(studentID, m.bufferOpts...), nil
	case err != nil:
		return nil, fmt.Errorf("load buffer for %s: %w", studentID, err)
	}

	buf, err := conversation.Restore(snap, m.bufferOpts...)
	if err != nil {
		m.log.Warn("discarding unreadable buffer snapshot", logger.StudentID(studentID), logger.Err(err))
		return conversation.NewBuffer(studentID, m.bufferOpts...), nil
	}
	m.log.Debug("buffer restored", logger.StudentID(studentID), logger.Int("messages", buf.Len()))
	return buf, nil
}

func (m *SessionManager) save(ctx context.Context, buf *conversation.Buffer) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, buf.Snapshot()); err != nil {
		m.log.Error("failed to persist buffer", logger.StudentID(buf.StudentID()), logger.Err(err))
	}
}

// Active returns the number of buffers held in memory.
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) snapshotSessions() map[string]*session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*session, len(m.sessions))
	for id, s := range m.sessions {
		out[id] = s
	}
	return out
}

// FlushAll saves every buffer held in memory.
func (m *SessionManager) FlushAll(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	var errs []error
	for id, s := range m.snapshotSessions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.store.Save(ctx, s.buf.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// EvictIdle saves and drops buffers unused for at least ttl. Sessions with a
// round in progress are skipped. Without a store nothing is evicted, since
// the buffer would be lost. Returns the number evicted.
func (m *SessionManager) EvictIdle(ctx context.Context, ttl time.Duration) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	cutoff := m.now().Add(-ttl)
	evicted := 0

	var errs []error
	for id, s := range m.snapshotSessions() {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastUsed.After(cutoff) {
			s.mu.Unlock()
			continue
		}

		if err := m.store.Save(ctx, s.buf.Snapshot()); err != nil {
			s.mu.Unlock()
			errs = append(errs, fmt.Errorf("evict %s: %w", id, err))
			continue
		}

		m.mu.Lock()
		if m.sessions[id] == s {
			delete(m.sessions, id)
			evicted++
		}
		m.mu.Unlock()
		s.mu.Unlock()
	}
	return evicted, errors.Join(errs...)
}
