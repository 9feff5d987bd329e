package model

import "time"

// SurveySettings configures conversation behavior for a survey
type SurveySettings struct {
	// FollowUpDefault controls whether questions ask for an elaboration
	// comment after the answer; individual questions may override it.
	FollowUpDefault bool `json:"followUpDefault" bson:"followUpDefault"`

	// CodePrefix is prepended to survey-scoped participant codes, e.g. "CS" -> "CS-0042"
	CodePrefix string `json:"codePrefix" bson:"codePrefix"`
}

// Survey is a persistent questionnaire definition. At most one survey is
// active at a time; the active one is what respondents converse through.
type Survey struct {
	ID          string         `json:"id" bson:"_id,omitempty"`
	Title       string         `json:"title" bson:"title"`
	Description string         `json:"description" bson:"description"`
	Duration    string         `json:"duration" bson:"duration"` // estimated duration label, e.g. "5 minutes"
	IsActive    bool           `json:"isActive" bson:"isActive"`
	Settings    SurveySettings `json:"settings" bson:"settings"`
	Questions   []Question     `json:"questions" bson:"questions"`
	CreatedAt   time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// QuestionByIndex returns the question at the given 0-based position, or nil
// when the index is past the end of the survey.
func (s *Survey) QuestionByIndex(i int) *Question {
	if i < 0 || i >= len(s.Questions) {
		return nil
	}
	return &s.Questions[i]
}
