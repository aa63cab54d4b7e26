package backend

import (
	"strconv"

	"github.com/langflow/ai-teacher/internal/domain/tutoring"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to domain transformations
// ══════════════════════════════════════════════════════════════════════════════

// The mapping functions keep the API's wire shape out of the tutoring domain.

func homeworkFromDTO(dto HomeworkDTO) tutoring.Homework {
	return tutoring.Homework{
		ID:          dto.ID,
		Title:       dto.Content.Title,
		Description: dto.Content.Description,
		Status:      dto.Status,
	}
}

func homeworkListFromDTO(dtos []HomeworkDTO) []tutoring.Homework {
	out := make([]tutoring.Homework, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, homeworkFromDTO(d))
	}
	return out
}

func submissionFromDTO(dto SubmissionDTO) tutoring.Submission {
	return tutoring.Submission{
		ID:         dto.ID,
		HomeworkID: dto.HomeworkTaskID,
		Text:       dto.Content.Text,
	}
}

func submissionListFromDTO(dtos []SubmissionDTO) []tutoring.Submission {
	out := make([]tutoring.Submission, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, submissionFromDTO(d))
	}
	return out
}

func userFromDTO(dto UserDTO) tutoring.User {
	tid, _ := strconv.ParseInt(dto.TelegramID, 10, 64)
	return tutoring.User{
		ID:         dto.ID,
		TelegramID: tid,
		Role:       tutoring.Role(dto.Role),
	}
}

func chatContextToDTO(turns []tutoring.Turn) []ChatTurnDTO {
	out := make([]ChatTurnDTO, 0, len(turns))
	for _, t := range turns {
		out = append(out, ChatTurnDTO{Role: t.Role, Content: t.Content})
	}
	return out
}

func generatedHomeworkFromDTO(dto GenerateHomeworkResponseDTO) tutoring.GeneratedHomework {
	return tutoring.GeneratedHomework{
		Title:       dto.Title,
		Description: dto.Description,
		Level:       tutoring.LanguageLevel(dto.LanguageLevel),
		Stress:      tutoring.StressLevel(dto.StressLevel),
		Topic:       dto.Topic,
	}
}

func generatedFeedbackFromDTO(dto GenerateFeedbackResponseDTO) tutoring.GeneratedFeedback {
	return tutoring.GeneratedFeedback{
		Title:        dto.HomeworkTitle,
		FeedbackText: dto.FeedbackText,
		Score:        dto.Score,
	}
}

func analysisFromDTO(dto AnalysisResponseDTO) tutoring.ProfileAnalysis {
	return tutoring.ProfileAnalysis{
		Profile:          dto.Profile,
		GrowthStory:      dto.GrowthStory,
		ImprovementAreas: dto.AreasOfImprovement,
		AspectAnalysis:   dto.SpecificAspectAnalysis,
		AnalyzedIDs:      dto.AnalyzedHomeworkIDs,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
