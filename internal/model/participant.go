package model

import "time"

// Participant is a respondent identified by phone number, created on first
// contact and reused across surveys.
type Participant struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	Phone     string    `json:"phone" bson:"phone"`
	Code      string    `json:"code" bson:"code"` // globally unique, e.g. "R-0031"
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Participation links a participant to one survey attempt. Unique per
// (survey, participant).
type Participation struct {
	ID              string     `json:"id" bson:"_id,omitempty"`
	SurveyID        string     `json:"surveyId" bson:"surveyId"`
	ParticipantID   string     `json:"participantId" bson:"participantId"`
	Code            string     `json:"code" bson:"code"` // survey-scoped, e.g. "CS-0042"
	StartedAt       time.Time  `json:"startedAt" bson:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	Completed       bool       `json:"completed" bson:"completed"`
	DurationSeconds int        `json:"durationSeconds" bson:"durationSeconds"`
}
