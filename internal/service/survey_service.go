package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"chatsurvey/internal/model"
	"chatsurvey/internal/repository"
)

// ErrSurveyNotFound is returned for operations on a missing survey
var ErrSurveyNotFound = errors.New("survey not found")

// SurveyService handles survey authoring operations for the management API.
// Questions are validated and normalized at write time so the conversation
// engine never parses options or scales ad hoc.
type SurveyService struct {
	surveys repository.SurveyRepo
	catalog *CatalogService
}

// NewSurveyService creates a new survey service
func NewSurveyService(surveys repository.SurveyRepo, catalog *CatalogService) *SurveyService {
	return &SurveyService{
		surveys: surveys,
		catalog: catalog,
	}
}

func (s *SurveyService) Create(ctx context.Context, survey *model.Survey) (string, error) {
	if err := prepareQuestions(survey); err != nil {
		return "", err
	}
	NormalizeSurvey(survey)
	return s.surveys.Create(ctx, survey)
}

func (s *SurveyService) Get(ctx context.Context, id string) (*model.Survey, error) {
	survey, err := s.surveys.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, ErrSurveyNotFound
	}
	return survey, nil
}

func (s *SurveyService) List(ctx context.Context) ([]*model.Survey, error) {
	return s.surveys.List(ctx)
}

func (s *SurveyService) Update(ctx context.Context, survey *model.Survey) error {
	existing, err := s.surveys.GetByID(ctx, survey.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrSurveyNotFound
	}
	if err := prepareQuestions(survey); err != nil {
		return err
	}
	NormalizeSurvey(survey)
	survey.IsActive = existing.IsActive
	survey.CreatedAt = existing.CreatedAt

	if err := s.surveys.Update(ctx, survey); err != nil {
		return err
	}
	s.catalog.Invalidate(ctx)
	return nil
}

func (s *SurveyService) Delete(ctx context.Context, id string) error {
	if err := s.surveys.Delete(ctx, id); err != nil {
		return err
	}
	s.catalog.Invalidate(ctx)
	return nil
}

// Activate makes the survey the single active one
func (s *SurveyService) Activate(ctx context.Context, id string) error {
	if err := s.surveys.Activate(ctx, id); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrSurveyNotFound
		}
		return err
	}
	s.catalog.Invalidate(ctx)
	return nil
}

// prepareQuestions assigns IDs and sequence numbers and rejects questions
// whose type-specific parameters are unusable even after normalization.
func prepareQuestions(survey *model.Survey) error {
	if len(survey.Questions) == 0 {
		return fmt.Errorf("survey needs at least one question")
	}
	for i := range survey.Questions {
		q := &survey.Questions[i]
		if q.ID == "" {
			q.ID = uuid.New().String()
		}
		q.Seq = i + 1

		switch q.Type {
		case model.QuestionTypeCurated, model.QuestionTypeChoice:
			if len(q.Options) == 0 && q.OptionsRaw == "" {
				return fmt.Errorf("question %d: select question needs options", q.Seq)
			}
		case model.QuestionTypeRating:
			if q.Scale != nil && q.Scale.Min >= q.Scale.Max {
				return fmt.Errorf("question %d: rating scale min must be below max", q.Seq)
			}
		case model.QuestionTypeText:
			// no parameters
		default:
			return fmt.Errorf("question %d: unknown type %q", q.Seq, q.Type)
		}
	}
	return nil
}
