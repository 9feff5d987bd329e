package service

import (
	"fmt"
	"strconv"
	"strings"

	"chatsurvey/internal/model"
)

// ValidationResult is the outcome of validating raw respondent input against
// a question. When Valid is false, Reason describes what to re-prompt for.
type ValidationResult struct {
	Valid  bool
	Value  string
	Reason string
}

func rejected(reason string) ValidationResult {
	return ValidationResult{Reason: reason}
}

func accepted(value string) ValidationResult {
	return ValidationResult{Valid: true, Value: value}
}

// ValidateAnswer parses and validates raw text against the question's type.
// Pure and deterministic; expects a normalized question (see Question.Normalize).
func ValidateAnswer(q *model.Question, raw string) ValidationResult {
	text := strings.TrimSpace(raw)

	switch q.Type {
	case model.QuestionTypeCurated, model.QuestionTypeChoice:
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 || n > len(q.Options) {
			return rejected(fmt.Sprintf("out of range or not a number (expected 1-%d)", len(q.Options)))
		}
		return accepted(q.Options[n-1])

	case model.QuestionTypeRating:
		n, err := strconv.Atoi(text)
		if err != nil || n < q.Scale.Min || n > q.Scale.Max {
			return rejected(fmt.Sprintf("out of range or not a number (expected %d-%d)", q.Scale.Min, q.Scale.Max))
		}
		return accepted(strconv.Itoa(n))

	case model.QuestionTypeText:
		if text == "" {
			return rejected("empty answer")
		}
		return accepted(text)
	}

	return rejected("unknown question type")
}
