package model

import "time"

// VoiceMeta records the provenance of a voice-derived follow-up comment
type VoiceMeta struct {
	Transcript      string  `json:"transcript" bson:"transcript"`
	Translated      string  `json:"translated" bson:"translated"`
	Language        string  `json:"language" bson:"language"`
	DurationSeconds float64 `json:"durationSeconds" bson:"durationSeconds"`
	Transcribed     bool    `json:"transcribed" bson:"transcribed"`
}

// Response is one persisted answer. At most one exists per
// (survey, participant, question); a later answer updates the row.
type Response struct {
	ID            string     `json:"id" bson:"_id,omitempty"`
	SurveyID      string     `json:"surveyId" bson:"surveyId"`
	ParticipantID string     `json:"participantId" bson:"participantId"`
	QuestionID    string     `json:"questionId" bson:"questionId"`
	Answer        string     `json:"answer" bson:"answer"`
	FollowUp      *string    `json:"followUp,omitempty" bson:"followUp,omitempty"`
	Voice         *VoiceMeta `json:"voice,omitempty" bson:"voice,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt" bson:"updatedAt"`
}
