package service

import (
	"context"
	"log"
	"sort"

	"chatsurvey/internal/cache"
	"chatsurvey/internal/model"
	"chatsurvey/internal/repository"
)

// CatalogService is the read-mostly accessor for the active survey. Questions
// are normalized on load so the engine always sees well-typed options and
// scales; repairs are logged as data-quality warnings, never surfaced to the
// respondent.
type CatalogService struct {
	surveys repository.SurveyRepo
	cache   cache.CatalogCache
}

// NewCatalogService creates a new catalog service
func NewCatalogService(surveys repository.SurveyRepo, catalogCache cache.CatalogCache) *CatalogService {
	return &CatalogService{
		surveys: surveys,
		cache:   catalogCache,
	}
}

// Active returns the single active survey with ordered, normalized questions,
// or nil when no survey is active.
func (s *CatalogService) Active(ctx context.Context) (*model.Survey, error) {
	if cached, err := s.cache.GetActive(ctx); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		log.Printf("[Catalog] cache read failed, falling back to store: %v", err)
	}

	survey, err := s.surveys.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, nil
	}

	NormalizeSurvey(survey)

	if err := s.cache.SetActive(ctx, survey); err != nil {
		log.Printf("[Catalog] cache write failed: %v", err)
	}
	return survey, nil
}

// Invalidate drops the cached active survey; called after survey mutations.
func (s *CatalogService) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Printf("[Catalog] cache invalidate failed: %v", err)
	}
}

// NormalizeSurvey orders questions by sequence and repairs malformed
// type-specific data, logging each repair.
func NormalizeSurvey(survey *model.Survey) {
	sort.SliceStable(survey.Questions, func(i, j int) bool {
		return survey.Questions[i].Seq < survey.Questions[j].Seq
	})
	for i := range survey.Questions {
		for _, warning := range survey.Questions[i].Normalize() {
			log.Printf("[Catalog] survey %s: %s", survey.ID, warning)
		}
	}
}
