package model

// QuestionResult aggregates the persisted answers for one question
type QuestionResult struct {
	QuestionID  string         `json:"questionId"`
	Seq         int            `json:"seq"`
	Prompt      string         `json:"prompt"`
	Type        QuestionType   `json:"type"`
	Counts      map[string]int `json:"counts,omitempty"`      // select/rating answer -> occurrences
	TextAnswers []string       `json:"textAnswers,omitempty"` // free-text answers verbatim
	VoiceCount  int            `json:"voiceCount"`            // answers with voice-derived comments
}

// SurveyResults is the reporting snapshot for one survey
type SurveyResults struct {
	SurveyID       string           `json:"surveyId"`
	Title          string           `json:"title"`
	Participations int64            `json:"participations"`
	Completed      int              `json:"completed"`
	ResponseCount  int64            `json:"responseCount"`
	Questions      []QuestionResult `json:"questions"`
}
