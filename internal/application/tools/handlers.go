package tools

import (
	"context"
	"fmt"

	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

func (e *Executor) assignHomework(ctx context.Context, c *call) (map[string]any, error) {
	req := tutoring.HomeworkRequest{
		StudentID:    c.buf.StudentID(),
		Topic:        c.str("homework_topic"),
		Level:        tutoring.LanguageLevel(c.str("language_level")),
		Stress:       tutoring.StressLevel(c.str("student_stress_level")),
		Conversation: c.buf.AnalysisTurns(),
	}

	hw, err := e.backend.GenerateHomework(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate homework: %w", err)
	}

	return map[string]any{
		"homework_task_title":       hw.Title,
		"homework_task_description": hw.Description,
		"language_level":            string(hw.Level),
		"student_stress_level":      string(hw.Stress),
		"homework_topic":            hw.Topic,
	}, nil
}

func (e *Executor) getHomeworkByTitle(ctx context.Context, c *call) (map[string]any, error) {
	title := c.str("homework_title")

	all, err := e.backend.FetchHomeworkForStudent(ctx, c.buf.StudentID())
	if err != nil {
		return nil, fmt.Errorf("fetch homework: %w", err)
	}

	for _, hw := range all {
		if hw.MatchesTitle(title) {
			return map[string]any{
				"homework_task_title":       hw.Title,
				"homework_task_description": hw.Description,
			}, nil
		}
	}
	return map[string]any{}, nil
}

func (e *Executor) getSubmission(ctx context.Context, c *call) (map[string]any, error) {
	pair, found, err := e.findSubmission(ctx, c.buf, c.str("homework_title"))
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]any{}, nil
	}

	return map[string]any{
		"homework_task_title":       pair.HomeworkTitle,
		"homework_task_description": pair.HomeworkDescription,
		"submission_text":           pair.SubmissionText,
		"submission_id":             pair.SubmissionID,
	}, nil
}

// findSubmission walks the student's submissions in backend order and
// returns the first whose homework title contains title. Homework already
// staged in the buffer is not fetched again.
func (e *Executor) findSubmission(ctx context.Context, buf *conversation.Buffer, title string) (conversation.Pair, bool, error) {
	subs, err := e.backend.FetchSubmissionsForStudent(ctx, buf.StudentID())
	if err != nil {
		return conversation.Pair{}, false, fmt.Errorf("fetch submissions: %w", err)
	}

	for _, sub := range subs {
		pair, ok := buf.GetPair(sub.HomeworkID)
		if !ok {
			hw, err := e.backend.FetchHomeworkByID(ctx, sub.HomeworkID)
			if tutoring.IsNotFound(err) {
				continue
			}
			if err != nil {
				return conversation.Pair{}, false, fmt.Errorf("fetch homework %s: %w", sub.HomeworkID, err)
			}
			hw.ID = sub.HomeworkID
			pair = buf.StageSeenInfo(hw, sub)
		}

		if tutoring.MatchTitle(pair.HomeworkTitle, title) {
			return pair, true, nil
		}
	}
	return conversation.Pair{}, false, nil
}

func (e *Executor) giveFinalFeedback(ctx context.Context, c *call) (map[string]any, error) {
	title := c.str("homework_title")

	pair, found, err := e.findSubmission(ctx, c.buf, title)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no submission found for homework %q: %w", title, tutoring.ErrSubmissionNotFound)
	}

	fb, err := e.backend.GenerateFeedback(ctx, tutoring.FeedbackRequest{
		StudentID:      c.buf.StudentID(),
		Title:          pair.HomeworkTitle,
		Description:    pair.HomeworkDescription,
		SubmissionText: pair.SubmissionText,
		SubmissionID:   pair.SubmissionID,
		Conversation:   c.buf.AnalysisTurns(),
	})
	if err != nil {
		return nil, fmt.Errorf("generate feedback: %w", err)
	}
	if err := fb.Validate(); err != nil {
		return nil, err
	}

	return map[string]any{
		"homework_task_title": fb.Title,
		"submission_text":     pair.SubmissionText,
		"feedback_text":       fb.FeedbackText,
		"score":               fb.Score,
	}, nil
}

func (e *Executor) analyzeUserProfile(ctx context.Context, c *call) (map[string]any, error) {
	analysis, err := e.backend.AnalyzeProfile(ctx, tutoring.AnalysisRequest{
		StudentID:      c.buf.StudentID(),
		Conversation:   c.buf.AnalysisTurns(),
		CurrentProfile: c.buf.Profile(),
		StagedIDs:      c.buf.StagedIDs(),
		ProfileIDs:     c.buf.SeenWithinProfile(),
		Aspect:         c.str("aspect_to_analyze"),
	})
	if err != nil {
		return nil, fmt.Errorf("analyze profile: %w", err)
	}

	c.buf.ApplyAnalysis(analysis.Profile, analysis.AnalyzedIDs)
	c.analysis = &analysis

	return map[string]any{
		"updated_profile":          analysis.Profile,
		"growth_story":             analysis.GrowthStory,
		"areas_of_improvement":     analysis.ImprovementAreas,
		"specific_aspect_analysis": analysis.AspectAnalysis,
	}, nil
}
