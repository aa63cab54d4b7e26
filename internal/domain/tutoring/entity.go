package tutoring

import (
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Role is the backend role of a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// LanguageLevel is a CEFR proficiency level.
type LanguageLevel string

const (
	LevelA1 LanguageLevel = "A1"
	LevelA2 LanguageLevel = "A2"
	LevelB1 LanguageLevel = "B1"
	LevelB2 LanguageLevel = "B2"
	LevelC1 LanguageLevel = "C1"
	LevelC2 LanguageLevel = "C2"
)

// LanguageLevels lists every level, lowest first.
func LanguageLevels() []LanguageLevel {
	return []LanguageLevel{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}
}

// IsValid reports whether the level is one of the six CEFR levels.
func (l LanguageLevel) IsValid() bool {
	for _, v := range LanguageLevels() {
		if l == v {
			return true
		}
	}
	return false
}

// StressLevel is how stressed the student says they are.
type StressLevel string

const (
	StressLow    StressLevel = "low"
	StressMedium StressLevel = "medium"
	StressHigh   StressLevel = "high"
)

// StressLevels lists every stress level.
func StressLevels() []StressLevel {
	return []StressLevel{StressLow, StressMedium, StressHigh}
}

// IsValid reports whether the stress level is known.
func (s StressLevel) IsValid() bool {
	return s == StressLow || s == StressMedium || s == StressHigh
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

// User is the backend view of a Telegram user.
type User struct {
	ID         string `json:"id"`
	TelegramID int64  `json:"telegram_id"`
	Role       Role   `json:"role"`
}

// IsStudent reports whether the user may talk to the AI teacher.
func (u User) IsStudent() bool {
	return u.Role == RoleStudent
}

// Homework is a homework task snapshot.
type Homework struct {
	ID          string
	Title       string
	Description string
	Status      string
}

// MatchesTitle reports a case-insensitive substring match of query in the title.
func (h Homework) MatchesTitle(query string) bool {
	return MatchTitle(h.Title, query)
}

// Submission is a student's answer to a homework task.
type Submission struct {
	ID         string
	HomeworkID string
	Text       string
}

// MatchTitle reports whether query occurs in title, ignoring case.
func MatchTitle(title, query string) bool {
	return strings.Contains(strings.ToLower(title), strings.ToLower(query))
}

// Turn is one role/content pair of conversation forwarded to a generation call.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ══════════════════════════════════════════════════════════════════════════════
// GENERATION REQUESTS AND RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// HomeworkRequest asks the backend to generate a homework task.
type HomeworkRequest struct {
	StudentID    string
	Topic        string
	Level        LanguageLevel
	Stress       StressLevel
	Conversation []Turn
}

// GeneratedHomework is the homework the backend produced.
type GeneratedHomework struct {
	Title       string
	Description string
	Level       LanguageLevel
	Stress      StressLevel
	Topic       string
}

// FeedbackRequest asks the backend to grade a submission.
type FeedbackRequest struct {
	StudentID      string
	Title          string
	Description    string
	SubmissionText string
	SubmissionID   string
	Conversation   []Turn
}

// GeneratedFeedback is the final scored feedback for a submission.
type GeneratedFeedback struct {
	Title        string
	FeedbackText string
	Score        int
}

// Validate checks the score range.
func (f GeneratedFeedback) Validate() error {
	if f.Score < 0 || f.Score > 100 {
		return fmt.Errorf("%w: got %d", ErrScoreOutOfRange, f.Score)
	}
	return nil
}

// AnalysisRequest asks the backend to fold unseen activity into the profile.
type AnalysisRequest struct {
	StudentID      string
	Conversation   []Turn
	CurrentProfile string
	StagedIDs      []string // staged but not yet consolidated
	ProfileIDs     []string // already folded into CurrentProfile
	Aspect         string
}

// ProfileAnalysis is the backend's answer to an AnalysisRequest.
type ProfileAnalysis struct {
	Profile          string
	GrowthStory      string
	ImprovementAreas string
	AspectAnalysis   string
	AnalyzedIDs      []string
}
