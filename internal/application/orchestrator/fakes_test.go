package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/langflow/ai-teacher/internal/application/tools"
	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

// scriptedModel returns queued replies in order and records what it was sent.
type scriptedModel struct {
	mu      sync.Mutex
	replies []conversation.Message
	errs    []error
	calls   [][]conversation.Message
}

func (m *scriptedModel) reply(msg conversation.Message) *scriptedModel {
	m.replies = append(m.replies, msg)
	m.errs = append(m.errs, nil)
	return m
}

func (m *scriptedModel) fail(err error) *scriptedModel {
	m.replies = append(m.replies, conversation.Message{})
	m.errs = append(m.errs, err)
	return m
}

func (m *scriptedModel) Complete(_ context.Context, messages []conversation.Message, _ []tools.Definition) (conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, messages)
	if len(m.replies) == 0 {
		return conversation.Message{}, errors.New("no scripted reply")
	}
	msg, err := m.replies[0], m.errs[0]
	m.replies, m.errs = m.replies[1:], m.errs[1:]
	return msg, err
}

type stubBackend struct {
	mu            sync.Mutex
	err           error
	feedbackErr   error
	homeworkCalls map[string]int
	block         chan struct{}
}

func newStubBackend() *stubBackend {
	return &stubBackend{homeworkCalls: map[string]int{}}
}

var stubHomework = []tutoring.Homework{
	{ID: "h1", Title: "Travel Essay", Description: "Describe your last trip."},
}

func (b *stubBackend) GenerateHomework(_ context.Context, req tutoring.HomeworkRequest) (tutoring.GeneratedHomework, error) {
	return tutoring.GeneratedHomework{Title: "Airport Dialogue", Level: req.Level, Stress: req.Stress, Topic: req.Topic}, b.err
}

func (b *stubBackend) GenerateFeedback(context.Context, tutoring.FeedbackRequest) (tutoring.GeneratedFeedback, error) {
	if b.feedbackErr != nil {
		return tutoring.GeneratedFeedback{}, b.feedbackErr
	}
	return tutoring.GeneratedFeedback{Title: "Travel Essay", FeedbackText: "Well done.", Score: 90}, b.err
}

func (b *stubBackend) AnalyzeProfile(context.Context, tutoring.AnalysisRequest) (tutoring.ProfileAnalysis, error) {
	if b.err != nil {
		return tutoring.ProfileAnalysis{}, b.err
	}
	return tutoring.ProfileAnalysis{
		Profile:          "Enjoys travel writing; articles need work.",
		GrowthStory:      "Steady progress.",
		ImprovementAreas: "Articles",
		AspectAnalysis:   "Grammar ok.",
		AnalyzedIDs:      []string{"h1"},
	}, nil
}

func (b *stubBackend) FetchHomeworkForStudent(ctx context.Context, _ string) ([]tutoring.Homework, error) {
	if b.block != nil {
		close(b.block)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return stubHomework, b.err
}

func (b *stubBackend) FetchSubmissionsForStudent(context.Context, string) ([]tutoring.Submission, error) {
	if b.err != nil {
		return nil, b.err
	}
	return []tutoring.Submission{{ID: "sub1", HomeworkID: "h1", Text: "Last summer I went to the sea."}}, nil
}

func (b *stubBackend) FetchHomeworkByID(_ context.Context, id string) (tutoring.Homework, error) {
	b.mu.Lock()
	b.homeworkCalls[id]++
	b.mu.Unlock()
	if b.err != nil {
		return tutoring.Homework{}, b.err
	}
	return stubHomework[0], nil
}

// memoryStore is an in-memory BufferStore.
type memoryStore struct {
	mu    sync.Mutex
	snaps map[string]conversation.Snapshot
	saves int
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snaps: map[string]conversation.Snapshot{}}
}

func (s *memoryStore) Load(_ context.Context, studentID string) (conversation.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[studentID]
	if !ok {
		return conversation.Snapshot{}, ErrStoreNotFound
	}
	return snap, nil
}

func (s *memoryStore) Save(_ context.Context, snap conversation.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.snaps[snap.StudentID] = snap
	return nil
}
