package backend

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY DTOs
// ══════════════════════════════════════════════════════════════════════════════

// HomeworkContentDTO is the free-form content of a homework task.
type HomeworkContentDTO struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	LanguageLevel string `json:"language_level,omitempty"`
	StressLevel   string `json:"stress_level,omitempty"`
	Topic         string `json:"topic,omitempty"`
}

// HomeworkDTO represents a homework task from the API.
type HomeworkDTO struct {
	ID         string             `json:"id"`
	TeacherID  string             `json:"teacher_id"`
	StudentIDs []string           `json:"student_ids"`
	Content    HomeworkContentDTO `json:"content"`
	Status     string             `json:"status"`
	CreatedAt  *time.Time         `json:"created_at,omitempty"`
}

// SubmissionContentDTO is the content of a submission.
type SubmissionContentDTO struct {
	Text string `json:"text"`
}

// SubmissionDTO represents a student's submission from the API.
type SubmissionDTO struct {
	ID             string               `json:"id"`
	StudentID      string               `json:"student_id"`
	TeacherID      string               `json:"teacher_id"`
	HomeworkTaskID string               `json:"homework_task_id"`
	Content        SubmissionContentDTO `json:"content"`
	Status         string               `json:"status"`
}

// UserDTO represents a user from the API. telegram_id is a numeric string.
type UserDTO struct {
	ID         string `json:"id"`
	TgHandle   string `json:"tg_handle"`
	TelegramID string `json:"telegram_id"`
	Role       string `json:"role"`
}

// ChatTurnDTO is one message of chat_context.
type ChatTurnDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ══════════════════════════════════════════════════════════════════════════════
// GENERATION DTOs
// ══════════════════════════════════════════════════════════════════════════════

// GenerateHomeworkRequestDTO is the body of POST /homework/generate/.
type GenerateHomeworkRequestDTO struct {
	HomeworkTopic      string        `json:"homework_topic"`
	LanguageLevel      string        `json:"language_level"`
	StudentStressLevel string        `json:"student_stress_level"`
	ChatContext        []ChatTurnDTO `json:"chat_context"`
	StudentID          string        `json:"student_id"`
}

// GenerateHomeworkResponseDTO is the response of POST /homework/generate/.
type GenerateHomeworkResponseDTO struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	LanguageLevel string `json:"language_level"`
	StressLevel   string `json:"stress_level"`
	Topic         string `json:"topic"`
}

// GenerateFeedbackRequestDTO is the body of POST /feedback/generate/.
type GenerateFeedbackRequestDTO struct {
	HomeworkTitle       string        `json:"homework_title"`
	HomeworkDescription string        `json:"homework_description"`
	SubmissionText      string        `json:"submission_text"`
	SubmissionID        string        `json:"submission_id"`
	ChatContext         []ChatTurnDTO `json:"chat_context"`
	StudentID           string        `json:"student_id"`
}

// GenerateFeedbackResponseDTO is the response of POST /feedback/generate/.
type GenerateFeedbackResponseDTO struct {
	FeedbackText  string `json:"feedback_text"`
	Score         int    `json:"score"`
	HomeworkTitle string `json:"homework_title"`
}

// AnalysisRequestDTO is the body of POST /users/analysis/{user_id}.
type AnalysisRequestDTO struct {
	UserID            string        `json:"user_id"`
	ChatContext       []ChatTurnDTO `json:"chat_context"`
	CurrentProfile    string        `json:"current_profile"`
	SeenWithinProfile []string      `json:"seen_within_profile"`
	StagedHomeworkIDs []string      `json:"staged_homework_ids"`
	AspectToAnalyze   string        `json:"aspect_to_analyze"`
}

// AnalysisResponseDTO is the response of POST /users/analysis/{user_id}.
type AnalysisResponseDTO struct {
	Profile                string   `json:"profile"`
	GrowthStory            string   `json:"growth_story"`
	AreasOfImprovement     string   `json:"areas_of_improvement"`
	SpecificAspectAnalysis string   `json:"specific_aspect_analysis"`
	AnalyzedHomeworkIDs    []string `json:"analyzed_homework_ids"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIErrorDTO is the error body of the API. Detail is a string for most
// errors and a list of field errors for 422 responses.
type APIErrorDTO struct {
	Detail json.RawMessage `json:"detail"`
}

// Message flattens Detail into one line.
func (e APIErrorDTO) Message() string {
	if len(e.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}

	var fields []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(e.Detail, &fields); err == nil && len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			loc := make([]string, 0, len(f.Loc))
			for _, l := range f.Loc {
				loc = append(loc, fmt.Sprint(l))
			}
			parts = append(parts, strings.Join(loc, ".")+": "+f.Msg)
		}
		return strings.Join(parts, "; ")
	}

	return string(e.Detail)
}
