package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatsurvey/internal/repository"
)

// ParticipationHandler exposes per-survey participation and response listings
type ParticipationHandler struct {
	participations repository.ParticipationRepo
	responses      repository.ResponseRepo
}

// NewParticipationHandler creates a new participation handler
func NewParticipationHandler(participations repository.ParticipationRepo, responses repository.ResponseRepo) *ParticipationHandler {
	return &ParticipationHandler{
		participations: participations,
		responses:      responses,
	}
}

// ListParticipants handles GET /v1/surveys/{surveyId}/participants
func (h *ParticipationHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := h.participations.ListBySurvey(r.Context(), mux.Vars(r)["surveyId"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListResponses handles GET /v1/surveys/{surveyId}/responses
func (h *ParticipationHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	list, err := h.responses.ListBySurvey(r.Context(), mux.Vars(r)["surveyId"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list responses")
		return
	}
	writeJSON(w, http.StatusOK, list)
}
