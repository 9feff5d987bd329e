package model

import "time"

// Stage is the session's position in the conversation state machine
type Stage string

const (
	StageInitial      Stage = "initial"
	StageSurvey       Stage = "survey"
	StageFollowUp     Stage = "followup"
	StageVoiceConfirm Stage = "voice_confirmation"
)

// PendingAnswer is a validated answer waiting for an optional follow-up
// comment before it is persisted.
type PendingAnswer struct {
	QuestionID string       `json:"questionId"`
	Answer     string       `json:"answer"`
	Type       QuestionType `json:"type"`
	Prompt     string       `json:"prompt"`
}

// PendingVoice is a voice-derived candidate follow-up waiting for explicit
// respondent confirmation. Voice input is never committed without it.
type PendingVoice struct {
	Transcript      string  `json:"transcript"`
	Translated      string  `json:"translated"`
	Summary         string  `json:"summary"`
	Language        string  `json:"language"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// PendingData holds the session's in-flight state between messages. The two
// variants are typed rather than an open document so partial updates cannot
// leave half-merged state behind.
type PendingData struct {
	Answer *PendingAnswer `json:"answer,omitempty"`
	Voice  *PendingVoice  `json:"voice,omitempty"`
}

// Session is the live conversational state for one (phone, survey) pair. It
// exists only while the participation is incomplete and is deleted when the
// respondent finishes the last question.
type Session struct {
	ID              string      `json:"id"`
	Phone           string      `json:"phone"`
	SurveyID        string      `json:"surveyId"`
	ParticipantID   string      `json:"participantId"`
	ParticipationID string      `json:"participationId"`
	Code            string      `json:"code"` // survey-scoped participant code
	QuestionIndex   int         `json:"questionIndex"`
	Stage           Stage       `json:"stage"`
	Pending         PendingData `json:"pending"`
	StartedAt       time.Time   `json:"startedAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}
