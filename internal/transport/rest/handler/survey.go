package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"chatsurvey/internal/model"
	"chatsurvey/internal/service"
)

// SurveyHandler handles survey authoring endpoints
type SurveyHandler struct {
	surveySvc *service.SurveyService
	reportSvc *service.ReportService
}

// NewSurveyHandler creates a new survey handler
func NewSurveyHandler(surveySvc *service.SurveyService, reportSvc *service.ReportService) *SurveyHandler {
	return &SurveyHandler{
		surveySvc: surveySvc,
		reportSvc: reportSvc,
	}
}

// CreateSurveyRequest is the request body for creating or updating a survey
type CreateSurveyRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Duration    string               `json:"duration"`
	Settings    model.SurveySettings `json:"settings"`
	Questions   []model.Question     `json:"questions"`
}

// Create handles POST /v1/surveys
func (h *SurveyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	survey := &model.Survey{
		Title:       req.Title,
		Description: req.Description,
		Duration:    req.Duration,
		Settings:    req.Settings,
		Questions:   req.Questions,
	}

	id, err := h.surveySvc.Create(r.Context(), survey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// List handles GET /v1/surveys
func (h *SurveyHandler) List(w http.ResponseWriter, r *http.Request) {
	surveys, err := h.surveySvc.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list surveys")
		return
	}
	writeJSON(w, http.StatusOK, surveys)
}

// Get handles GET /v1/surveys/{surveyId}
func (h *SurveyHandler) Get(w http.ResponseWriter, r *http.Request) {
	survey, err := h.surveySvc.Get(r.Context(), mux.Vars(r)["surveyId"])
	if err != nil {
		writeSurveyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, survey)
}

// Update handles PUT /v1/surveys/{surveyId}
func (h *SurveyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req CreateSurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	survey := &model.Survey{
		ID:          mux.Vars(r)["surveyId"],
		Title:       req.Title,
		Description: req.Description,
		Duration:    req.Duration,
		Settings:    req.Settings,
		Questions:   req.Questions,
	}

	if err := h.surveySvc.Update(r.Context(), survey); err != nil {
		writeSurveyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Delete handles DELETE /v1/surveys/{surveyId}
func (h *SurveyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.surveySvc.Delete(r.Context(), mux.Vars(r)["surveyId"]); err != nil {
		writeSurveyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Activate handles POST /v1/surveys/{surveyId}/activate
func (h *SurveyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	if err := h.surveySvc.Activate(r.Context(), mux.Vars(r)["surveyId"]); err != nil {
		writeSurveyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

// Results handles GET /v1/surveys/{surveyId}/results
func (h *SurveyHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.reportSvc.SurveyResults(r.Context(), mux.Vars(r)["surveyId"])
	if err != nil {
		writeSurveyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func writeSurveyError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrSurveyNotFound) {
		writeError(w, http.StatusNotFound, "survey not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
