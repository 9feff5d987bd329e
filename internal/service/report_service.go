package service

import (
	"context"

	"chatsurvey/internal/model"
	"chatsurvey/internal/repository"
)

// ReportService builds aggregate snapshots for the dashboard and management
// API. Read-only; the conversation engine is the only writer of responses.
type ReportService struct {
	surveys        repository.SurveyRepo
	participations repository.ParticipationRepo
	responses      repository.ResponseRepo
}

// NewReportService creates a new report service
func NewReportService(
	surveys repository.SurveyRepo,
	participations repository.ParticipationRepo,
	responses repository.ResponseRepo,
) *ReportService {
	return &ReportService{
		surveys:        surveys,
		participations: participations,
		responses:      responses,
	}
}

// SurveyResults aggregates per-question answer counts for one survey
func (s *ReportService) SurveyResults(ctx context.Context, surveyID string) (*model.SurveyResults, error) {
	survey, err := s.surveys.GetByID(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, ErrSurveyNotFound
	}

	participations, err := s.participations.ListBySurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	completed := 0
	for _, p := range participations {
		if p.Completed {
			completed++
		}
	}

	responses, err := s.responses.ListBySurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	byQuestion := make(map[string][]*model.Response)
	for _, r := range responses {
		byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], r)
	}

	results := &model.SurveyResults{
		SurveyID:       surveyID,
		Title:          survey.Title,
		Participations: int64(len(participations)),
		Completed:      completed,
		ResponseCount:  int64(len(responses)),
	}

	for _, q := range survey.Questions {
		qr := model.QuestionResult{
			QuestionID: q.ID,
			Seq:        q.Seq,
			Prompt:     q.Prompt,
			Type:       q.Type,
		}
		for _, r := range byQuestion[q.ID] {
			if q.Type == model.QuestionTypeText {
				qr.TextAnswers = append(qr.TextAnswers, r.Answer)
			} else {
				if qr.Counts == nil {
					qr.Counts = make(map[string]int)
				}
				qr.Counts[r.Answer]++
			}
			if r.Voice != nil {
				qr.VoiceCount++
			}
		}
		results.Questions = append(results.Questions, qr)
	}

	return results, nil
}
