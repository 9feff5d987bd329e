package model

import "encoding/json"

// QuestionType defines the type of question
type QuestionType string

const (
	QuestionTypeCurated QuestionType = "CURATED" // single select from a curated stance list (agree/disagree/...)
	QuestionTypeChoice  QuestionType = "CHOICE"  // single select from author-defined options
	QuestionTypeRating  QuestionType = "RATING"  // integer on a labeled scale
	QuestionTypeText    QuestionType = "TEXT"    // free text
)

// Scale describes the bounds of a RATING question
type Scale struct {
	Min       int    `json:"min" bson:"min"`
	Max       int    `json:"max" bson:"max"`
	LowLabel  string `json:"lowLabel" bson:"lowLabel"`
	HighLabel string `json:"highLabel" bson:"highLabel"`
}

// Question is one step of a survey. Seq is 1-based and unique within the survey.
//
// Older survey documents stored options and scale as JSON-encoded strings;
// OptionsRaw/ScaleRaw keep those readable until Normalize folds them into the
// typed fields.
type Question struct {
	ID          string       `json:"id" bson:"id"`
	Seq         int          `json:"seq" bson:"seq"`
	Type        QuestionType `json:"type" bson:"type"`
	Prompt      string       `json:"prompt" bson:"prompt"`
	Options     []string     `json:"options,omitempty" bson:"options,omitempty"`         // CURATED/CHOICE
	OptionsRaw  string       `json:"-" bson:"optionsRaw,omitempty"`                      // legacy serialized form
	Scale       *Scale       `json:"scale,omitempty" bson:"scale,omitempty"`             // RATING
	ScaleRaw    string       `json:"-" bson:"scaleRaw,omitempty"`                        // legacy serialized form
	AskFollowUp *bool        `json:"askFollowUp,omitempty" bson:"askFollowUp,omitempty"` // nil -> survey default
}

// Defaults substituted when question data is malformed. The conversation must
// keep working on bad catalog data; the substitution is logged by the caller.
var (
	defaultOptions = []string{"Yes", "No"}
	defaultScale   = Scale{Min: 1, Max: 5, LowLabel: "Not at all", HighLabel: "Very much"}
)

// Normalize validates and repairs the question's type-specific parameters in
// place, decoding legacy serialized options/scale. It returns data-quality
// warnings for anything it had to repair; an empty slice means the question
// was already well formed.
func (q *Question) Normalize() []string {
	var warnings []string

	switch q.Type {
	case QuestionTypeCurated, QuestionTypeChoice:
		if len(q.Options) == 0 && q.OptionsRaw != "" {
			var opts []string
			if err := json.Unmarshal([]byte(q.OptionsRaw), &opts); err != nil || len(opts) == 0 {
				warnings = append(warnings, "question "+q.ID+": malformed serialized options, substituting defaults")
				opts = append([]string(nil), defaultOptions...)
			}
			q.Options = opts
			q.OptionsRaw = ""
		}
		if len(q.Options) == 0 {
			warnings = append(warnings, "question "+q.ID+": select question without options, substituting defaults")
			q.Options = append([]string(nil), defaultOptions...)
		}
	case QuestionTypeRating:
		if q.Scale == nil && q.ScaleRaw != "" {
			var sc Scale
			if err := json.Unmarshal([]byte(q.ScaleRaw), &sc); err != nil {
				warnings = append(warnings, "question "+q.ID+": malformed serialized scale, substituting defaults")
				sc = defaultScale
			}
			q.Scale = &sc
			q.ScaleRaw = ""
		}
		if q.Scale == nil {
			warnings = append(warnings, "question "+q.ID+": rating question without scale, substituting defaults")
			sc := defaultScale
			q.Scale = &sc
		}
		if q.Scale.Min >= q.Scale.Max {
			warnings = append(warnings, "question "+q.ID+": rating scale min >= max, substituting defaults")
			sc := defaultScale
			q.Scale = &sc
		}
		if q.Scale.LowLabel == "" {
			q.Scale.LowLabel = defaultScale.LowLabel
			warnings = append(warnings, "question "+q.ID+": missing low scale label, substituting default")
		}
		if q.Scale.HighLabel == "" {
			q.Scale.HighLabel = defaultScale.HighLabel
			warnings = append(warnings, "question "+q.ID+": missing high scale label, substituting default")
		}
	}

	return warnings
}

// WantsFollowUp reports whether the conversation should ask for an
// elaboration comment after this question is answered.
func (q *Question) WantsFollowUp(settings SurveySettings) bool {
	if q.AskFollowUp != nil {
		return *q.AskFollowUp
	}
	return settings.FollowUpDefault
}
