package tools

import (
	"context"
	"sync"

	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

// fakeBackend is an in-memory Backend that counts calls.
type fakeBackend struct {
	mu sync.Mutex

	homework    []tutoring.Homework
	submissions []tutoring.Submission
	feedback    tutoring.GeneratedFeedback
	analysis    tutoring.ProfileAnalysis

	err         error // returned by every call when set
	feedbackErr error

	homeworkByIDCalls map[string]int
	feedbackRequests  []tutoring.FeedbackRequest
	analysisRequests  []tutoring.AnalysisRequest
	homeworkRequests  []tutoring.HomeworkRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		homework: []tutoring.Homework{
			{ID: "h1", Title: "Travel Essay", Description: "Describe your last trip."},
			{ID: "h2", Title: "Past Simple Drill", Description: "Ten sentences in past simple."},
		},
		submissions: []tutoring.Submission{
			{ID: "sub2", HomeworkID: "h2", Text: "I went. I saw."},
			{ID: "sub1", HomeworkID: "h1", Text: "Last summer I visited Almaty."},
		},
		feedback: tutoring.GeneratedFeedback{Title: "Travel Essay", FeedbackText: "Good use of past tense.", Score: 87},
		analysis: tutoring.ProfileAnalysis{
			Profile:          "Confident writer, weak on articles.",
			GrowthStory:      "Went from A2 to B1 in a month.",
			ImprovementAreas: "Articles",
			AspectAnalysis:   "Grammar is improving.",
			AnalyzedIDs:      []string{"h1"},
		},
		homeworkByIDCalls: map[string]int{},
	}
}

func (f *fakeBackend) GenerateHomework(_ context.Context, req tutoring.HomeworkRequest) (tutoring.GeneratedHomework, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homeworkRequests = append(f.homeworkRequests, req)
	if f.err != nil {
		return tutoring.GeneratedHomework{}, f.err
	}
	return tutoring.GeneratedHomework{
		Title:       "Airport Dialogue",
		Description: "Write a dialogue at check-in.",
		Level:       req.Level,
		Stress:      req.Stress,
		Topic:       req.Topic,
	}, nil
}

func (f *fakeBackend) GenerateFeedback(_ context.Context, req tutoring.FeedbackRequest) (tutoring.GeneratedFeedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbackRequests = append(f.feedbackRequests, req)
	if f.err != nil {
		return tutoring.GeneratedFeedback{}, f.err
	}
	if f.feedbackErr != nil {
		return tutoring.GeneratedFeedback{}, f.feedbackErr
	}
	return f.feedback, nil
}

func (f *fakeBackend) AnalyzeProfile(_ context.Context, req tutoring.AnalysisRequest) (tutoring.ProfileAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analysisRequests = append(f.analysisRequests, req)
	if f.err != nil {
		return tutoring.ProfileAnalysis{}, f.err
	}
	return f.analysis, nil
}

func (f *fakeBackend) FetchHomeworkForStudent(_ context.Context, _ string) ([]tutoring.Homework, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.homework, nil
}

func (f *fakeBackend) FetchSubmissionsForStudent(_ context.Context, _ string) ([]tutoring.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.submissions, nil
}

func (f *fakeBackend) FetchHomeworkByID(_ context.Context, id string) (tutoring.Homework, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homeworkByIDCalls[id]++
	if f.err != nil {
		return tutoring.Homework{}, f.err
	}
	for _, hw := range f.homework {
		if hw.ID == id {
			return hw, nil
		}
	}
	return tutoring.Homework{}, tutoring.ErrHomeworkNotFound
}
