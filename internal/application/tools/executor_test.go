package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

func newTestExecutor(t *testing.T, backend Backend, opts ...Option) *Executor {
	t.Helper()
	e, err := NewExecutor(DefaultRegistry(), backend, opts...)
	require.NoError(t, err)
	return e
}

func decode(t *testing.T, payload string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &out))
	return out
}

func toolCall(name, args string) conversation.ToolCall {
	return conversation.ToolCall{ID: "call_" + name, Name: name, Arguments: args}
}

func TestExecute_MissingArgumentsNamesAllOfThem(t *testing.T) {
	backend := newFakeBackend()
	e := newTestExecutor(t, backend)
	buf := conversation.NewBuffer("s1")

	for _, args := range []string{`{}`, ``, `not json`, `{"homework_topic": "", "language_level": null}`} {
		res := e.Execute(context.Background(), buf, toolCall(ToolAssignHomework, args))

		assert.Equal(t, OutcomeMissingArguments, res.Outcome, args)
		p := decode(t, res.Payload)
		assert.Equal(t, []any{"homework_topic", "language_level", "student_stress_level"}, p["missing_arguments"], args)
		assert.Contains(t, p["message"], "homework_topic, language_level, student_stress_level")
		assert.Contains(t, p, "homework_task_title")
		assert.Nil(t, p["homework_task_title"])
	}
	assert.Empty(t, backend.homeworkRequests)
}

func TestExecute_InvalidEnumIsReportedNotRaised(t *testing.T) {
	backend := newFakeBackend()
	e := newTestExecutor(t, backend)

	res := e.Execute(context.Background(), conversation.NewBuffer("s1"), toolCall(ToolAssignHomework,
		`{"homework_topic":"travel","language_level":"Z9","student_stress_level":"low"}`))

	assert.Equal(t, OutcomeInvalidArguments, res.Outcome)
	p := decode(t, res.Payload)
	assert.Equal(t, "invalid_arguments", p["error"])
	assert.Contains(t, p["message"], "language_level")
	assert.Empty(t, backend.homeworkRequests)
}

func TestExecute_UnknownTool(t *testing.T) {
	e := newTestExecutor(t, newFakeBackend())

	res := e.Execute(context.Background(), conversation.NewBuffer("s1"), toolCall("drop_tables", `{}`))

	assert.Equal(t, OutcomeUnknownTool, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUnknownTool)
	assert.Contains(t, decode(t, res.Payload)["error"], "drop_tables")
}

func TestExecute_AssignHomework(t *testing.T) {
	backend := newFakeBackend()
	e := newTestExecutor(t, backend)
	buf := conversation.NewBuffer("s1")
	buf.Append(conversation.UserMessage("give me homework on travel"))

	res := e.Execute(context.Background(), buf, toolCall(ToolAssignHomework,
		`{"homework_topic":"travel","language_level":"B1","student_stress_level":"medium"}`))

	require.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, map[string]any{
		"homework_task_title":       "Airport Dialogue",
		"homework_task_description": "Write a dialogue at check-in.",
		"language_level":            "B1",
		"student_stress_level":      "medium",
		"homework_topic":            "travel",
	}, decode(t, res.Payload))

	require.Len(t, backend.homeworkRequests, 1)
	req := backend.homeworkRequests[0]
	assert.Equal(t, "s1", req.StudentID)
	assert.Equal(t, tutoring.LevelB1, req.Level)
	require.Len(t, req.Conversation, 2)
	assert.Equal(t, "system", req.Conversation[0].Role)
	assert.Equal(t, "give me homework on travel", req.Conversation[1].Content)
}

func TestExecute_GetHomeworkByTitle(t *testing.T) {
	e := newTestExecutor(t, newFakeBackend())
	buf := conversation.NewBuffer("s1")

	res := e.Execute(context.Background(), buf, toolCall(ToolGetHomeworkByTitle, `{"homework_title":"past SIMPLE"}`))
	assert.Equal(t, map[string]any{
		"homework_task_title":       "Past Simple Drill",
		"homework_task_description": "Ten sentences in past simple.",
	}, decode(t, res.Payload))

	res = e.Execute(context.Background(), buf, toolCall(ToolGetHomeworkByTitle, `{"homework_title":"poetry"}`))
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, map[string]any{
		"homework_task_title":       nil,
		"homework_task_description": nil,
	}, decode(t, res.Payload))
}

func TestExecute_SubmissionThenFeedbackDoesNotRefetchHomework(t *testing.T) {
	backend := newFakeBackend()
	e := newTestExecutor(t, backend)
	buf := conversation.NewBuffer("s1")

	first := e.Execute(context.Background(), buf, toolCall(ToolGetSubmission, `{"homework_title":"travel"}`))
	require.Equal(t, OutcomeOK, first.Outcome)
	assert.Equal(t, map[string]any{
		"homework_task_title":       "Travel Essay",
		"homework_task_description": "Describe your last trip.",
		"submission_text":           "Last summer I visited Almaty.",
		"submission_id":             "sub1",
	}, decode(t, first.Payload))

	second := e.Execute(context.Background(), buf, toolCall(ToolGiveFinalFeedback, `{"homework_title":"travel"}`))
	require.Equal(t, OutcomeOK, second.Outcome)
	assert.Equal(t, map[string]any{
		"homework_task_title": "Travel Essay",
		"submission_text":     "Last summer I visited Almaty.",
		"feedback_text":       "Good use of past tense.",
		"score":               float64(87),
	}, decode(t, second.Payload))

	assert.Equal(t, map[string]int{"h1": 1, "h2": 1}, backend.homeworkByIDCalls)
	assert.Equal(t, []string{"h1", "h2"}, buf.StagedIDs())
	require.Len(t, backend.feedbackRequests, 1)
	assert.Equal(t, "sub1", backend.feedbackRequests[0].SubmissionID)
}

func TestExecute_FeedbackWithoutMatchingSubmission(t *testing.T) {
	backend := newFakeBackend()
	e := newTestExecutor(t, backend)

	res := e.Execute(context.Background(), conversation.NewBuffer("s1"), toolCall(ToolGiveFinalFeedback, `{"homework_title":"poetry"}`))

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.True(t, tutoring.IsNotFound(res.Err))
	p := decode(t, res.Payload)
	assert.Contains(t, p["error"], "poetry")
	assert.Nil(t, p["feedback_text"])
	assert.Empty(t, backend.feedbackRequests)
}

func TestExecute_BackendFailureBecomesPayload(t *testing.T) {
	backend := newFakeBackend()
	backend.err = fmt.Errorf("%w: dial tcp 10.0.0.1:8000: connection refused", tutoring.ErrBackendUnavailable)
	e := newTestExecutor(t, backend)

	res := e.Execute(context.Background(), conversation.NewBuffer("s1"), toolCall(ToolGiveFinalFeedback, `{"homework_title":"travel"}`))

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.ErrorIs(t, res.Err, tutoring.ErrServiceUnavailable)
	p := decode(t, res.Payload)
	assert.Contains(t, p["error"], "connection refused")
	for _, k := range []string{"homework_task_title", "submission_text", "feedback_text", "score"} {
		assert.Contains(t, p, k)
		assert.Nil(t, p[k])
	}
}

func TestExecute_AnalyzeUserProfileUpdatesBuffer(t *testing.T) {
	backend := newFakeBackend()
	e := newTestExecutor(t, backend)
	buf := conversation.NewBuffer("s1")
	buf.StageSeenInfo(backend.homework[1], backend.submissions[0])

	res := e.Execute(context.Background(), buf, toolCall(ToolAnalyzeUserProfile, `{"aspect_to_analyze":"grammar"}`))

	require.Equal(t, OutcomeOK, res.Outcome)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, "Confident writer, weak on articles.", decode(t, res.Payload)["updated_profile"])
	assert.Equal(t, "Confident writer, weak on articles.", buf.Profile())
	assert.Equal(t, []string{"h1"}, buf.SeenWithinProfile())

	require.Len(t, backend.analysisRequests, 1)
	assert.Equal(t, []string{"h2"}, backend.analysisRequests[0].StagedIDs)
	assert.Equal(t, "grammar", backend.analysisRequests[0].Aspect)
}

func TestExecute_AnalyzeFailureLeavesProfile(t *testing.T) {
	backend := newFakeBackend()
	backend.err = errors.New("boom")
	e := newTestExecutor(t, backend)
	buf := conversation.NewBuffer("s1")
	buf.ApplyAnalysis("old", nil)

	res := e.Execute(context.Background(), buf, toolCall(ToolAnalyzeUserProfile, `{"aspect_to_analyze":"grammar"}`))

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Nil(t, res.Analysis)
	assert.Equal(t, "old", buf.Profile())
}

func TestExecute_AuthorizerDenies(t *testing.T) {
	backend := newFakeBackend()
	deny := AuthorizerFunc(func(_ context.Context, _, tool string) error {
		if tool == ToolGiveFinalFeedback {
			return tutoring.ErrForbidden
		}
		return nil
	})
	e := newTestExecutor(t, backend, WithAuthorizer(deny))

	res := e.Execute(context.Background(), conversation.NewBuffer("s1"), toolCall(ToolGiveFinalFeedback, `{"homework_title":"travel"}`))

	assert.Equal(t, OutcomeUnauthorized, res.Outcome)
	assert.Empty(t, backend.homeworkByIDCalls)
}

type slowBackend struct {
	*fakeBackend
}

func (s slowBackend) FetchHomeworkForStudent(ctx context.Context, _ string) ([]tutoring.Homework, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExecute_LookupTimeout(t *testing.T) {
	e := newTestExecutor(t, slowBackend{newFakeBackend()},
		WithConfig(Config{LookupTimeout: 20 * time.Millisecond, GenerationTimeout: time.Minute}))

	res := e.Execute(context.Background(), conversation.NewBuffer("s1"), toolCall(ToolGetHomeworkByTitle, `{"homework_title":"x"}`))

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

type recordingObserver struct {
	calls []Outcome
}

func (r *recordingObserver) ObserveToolCall(_ string, outcome Outcome, _ time.Duration) {
	r.calls = append(r.calls, outcome)
}

func TestExecute_ReportsToObserver(t *testing.T) {
	obs := &recordingObserver{}
	e := newTestExecutor(t, newFakeBackend(), WithObserver(obs))
	buf := conversation.NewBuffer("s1")

	e.Execute(context.Background(), buf, toolCall(ToolGetHomeworkByTitle, `{"homework_title":"travel"}`))
	e.Execute(context.Background(), buf, toolCall(ToolGetHomeworkByTitle, `{}`))

	assert.Equal(t, []Outcome{OutcomeOK, OutcomeMissingArguments}, obs.calls)
}
