package conversation

import (
	"fmt"
	"time"
)

// Snapshot is the serializable state of a Buffer. It round-trips every field:
// message order is kept, the profile set is stored sorted.
type Snapshot struct {
	StudentID          string                `json:"student_id"`
	RecentContext      []Message             `json:"recent_context"`
	UserProfile        string                `json:"user_profile"`
	SeenInfo           map[string]StagedInfo `json:"seen_info_cache"`
	SeenWithinProfile  []string              `json:"seen_within_profile"`
	LastConsolidation  time.Time             `json:"last_consolidation_time"`
	MaxContextMessages int                   `json:"max_context_messages"`
}

// Snapshot captures the current state.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	recent := make([]Message, 0, len(b.recent))
	for _, m := range b.recent {
		recent = append(recent, m.Clone())
	}
	seen := make(map[string]StagedInfo, len(b.seen))
	for id, info := range b.seen {
		seen[id] = info
	}

	return Snapshot{
		StudentID:          b.studentID,
		RecentContext:      recent,
		UserProfile:        b.profile,
		SeenInfo:           seen,
		SeenWithinProfile:  b.seenInProfileLocked(),
		LastConsolidation:  b.lastConsolidation,
		MaxContextMessages: b.maxContext,
	}
}

// Validate checks a snapshot before it is restored.
func (s Snapshot) Validate() error {
	if s.StudentID == "" {
		return fmt.Errorf("%w: empty student id", ErrInvalidSnapshot)
	}
	for i, m := range s.RecentContext {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: message %d: %v", ErrInvalidSnapshot, i, err)
		}
	}
	for id, info := range s.SeenInfo {
		if id != info.HomeworkID {
			return fmt.Errorf("%w: cache key %q holds homework %q", ErrInvalidSnapshot, id, info.HomeworkID)
		}
	}
	return nil
}

// Restore rebuilds a Buffer from a snapshot. Options apply after the
// snapshot, so the caller's configuration wins over the stored cap.
func Restore(s Snapshot, opts ...Option) (*Buffer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	b := NewBuffer(s.StudentID)
	if s.MaxContextMessages > 0 {
		b.maxContext = s.MaxContextMessages
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, m := range s.RecentContext {
		b.recent = append(b.recent, m.Clone())
	}
	b.profile = s.UserProfile
	for id, info := range s.SeenInfo {
		info.StagedAt = info.StagedAt.UTC()
		b.seen[id] = info
	}
	for _, id := range s.SeenWithinProfile {
		b.seenInProfile[id] = struct{}{}
	}
	b.lastConsolidation = s.LastConsolidation.UTC()
	return b, nil
}
