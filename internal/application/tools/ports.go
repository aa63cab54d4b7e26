package tools

import (
	"context"
	"time"

	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

// Backend is the homework/feedback/profile API the tools call into.
// Implementations retry transient failures themselves.
type Backend interface {
	GenerateHomework(ctx context.Context, req tutoring.HomeworkRequest) (tutoring.GeneratedHomework, error)
	GenerateFeedback(ctx context.Context, req tutoring.FeedbackRequest) (tutoring.GeneratedFeedback, error)
	AnalyzeProfile(ctx context.Context, req tutoring.AnalysisRequest) (tutoring.ProfileAnalysis, error)
	FetchHomeworkForStudent(ctx context.Context, studentID string) ([]tutoring.Homework, error)
	FetchSubmissionsForStudent(ctx context.Context, studentID string) ([]tutoring.Submission, error)
	FetchHomeworkByID(ctx context.Context, homeworkID string) (tutoring.Homework, error)
}

// Authorizer decides whether a student's session may run a tool.
type Authorizer interface {
	Authorize(ctx context.Context, studentID, tool string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, studentID, tool string) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, studentID, tool string) error {
	return f(ctx, studentID, tool)
}

// AllowAll permits every tool. Tools only ever act on the session's own student.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, string, string) error { return nil })

// Observer receives one notification per executed tool call.
type Observer interface {
	ObserveToolCall(tool string, outcome Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveToolCall(string, Outcome, time.Duration) {}
