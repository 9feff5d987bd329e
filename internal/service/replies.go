package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chatsurvey/internal/model"
)

// Respondent-facing message builders. Every engine path replies with exactly
// one of these.

func welcomeMessage(survey *model.Survey, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome! You are taking part in the survey \"%s\".\n", survey.Title)
	if survey.Description != "" {
		b.WriteString(survey.Description + "\n")
	}
	if survey.Duration != "" {
		fmt.Fprintf(&b, "It takes about %s.\n", survey.Duration)
	}
	fmt.Fprintf(&b, "Your participant code is %s.\n", code)
	return b.String()
}

func questionPrompt(q *model.Question, index, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d of %d:\n%s\n", index+1, total, q.Prompt)

	switch q.Type {
	case model.QuestionTypeCurated, model.QuestionTypeChoice:
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
		}
		b.WriteString("Reply with the number of your choice.")
	case model.QuestionTypeRating:
		fmt.Fprintf(&b, "Reply with a number from %d (%s) to %d (%s).",
			q.Scale.Min, q.Scale.LowLabel, q.Scale.Max, q.Scale.HighLabel)
	case model.QuestionTypeText:
		b.WriteString("Reply with your answer in your own words.")
	}
	return b.String()
}

func retryPrompt(q *model.Question) string {
	switch q.Type {
	case model.QuestionTypeCurated, model.QuestionTypeChoice:
		return fmt.Sprintf("Sorry, I didn't catch that. Please reply with a number from 1 to %d.", len(q.Options))
	case model.QuestionTypeRating:
		return fmt.Sprintf("Sorry, I didn't catch that. Please reply with a number from %d to %d.", q.Scale.Min, q.Scale.Max)
	default:
		return "Sorry, I didn't catch that. Please reply with a short answer in words."
	}
}

// followUpPrompt tailors the elaboration request to the answer just given:
// stance-aware wording for curated choices, position-aware wording for
// ratings.
func followUpPrompt(q *model.Question, answer string) string {
	const closing = "You can type your thoughts, send a voice note, or reply \"skip\"."

	switch q.Type {
	case model.QuestionTypeCurated, model.QuestionTypeChoice:
		lower := strings.ToLower(answer)
		switch {
		case strings.Contains(lower, "disagree"):
			return fmt.Sprintf("You chose %q. What concerns you the most here? %s", answer, closing)
		case strings.Contains(lower, "agree"):
			return fmt.Sprintf("You chose %q. What convinced you? %s", answer, closing)
		case strings.Contains(lower, "undecided"), strings.Contains(lower, "neutral"):
			return fmt.Sprintf("You chose %q. What would help you decide? %s", answer, closing)
		default:
			return fmt.Sprintf("You chose %q. Could you tell us a bit more about why? %s", answer, closing)
		}

	case model.QuestionTypeRating:
		n, err := strconv.Atoi(answer)
		if err == nil && q.Scale != nil {
			span := q.Scale.Max - q.Scale.Min
			pos := n - q.Scale.Min
			switch {
			case pos*3 < span:
				return fmt.Sprintf("You rated this %s. What would need to change to raise that? %s", answer, closing)
			case pos*3 >= span*2:
				return fmt.Sprintf("You rated this %s. What worked especially well? %s", answer, closing)
			default:
				return fmt.Sprintf("You rated this %s. What would push it higher or lower for you? %s", answer, closing)
			}
		}
		return fmt.Sprintf("You rated this %s. Could you tell us more? %s", answer, closing)

	default:
		return "Thanks. Is there anything you would like to add? " + closing
	}
}

func voiceConfirmPrompt(resolution *VoiceResolution) string {
	var b strings.Builder
	b.WriteString("Here is what I understood from your voice note:\n")
	fmt.Fprintf(&b, "Transcript: %s\n", resolution.Transcript)
	if resolution.Summary != "" && resolution.Summary != resolution.Transcript {
		fmt.Fprintf(&b, "Summary: %s\n", resolution.Summary)
	}
	b.WriteString("Reply \"yes\" to use it, \"no\" to try again, or \"skip\" to move on without a comment.")
	return b.String()
}

func voiceFailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrAudioTooLong):
		return "That voice note is too long for me to process. Please send a shorter one, or type your comment instead."
	case errors.Is(err, ErrSpeechUnavailable):
		return "Sorry, voice notes are not available right now. Please type your comment instead."
	case errors.Is(err, ErrSpeechTimeout):
		return "Sorry, processing your voice note took too long. Please try again or type your comment."
	case errors.Is(err, ErrSpeechRateLimited):
		return "Sorry, I'm handling a lot of voice notes right now. Please try again in a moment or type your comment."
	default:
		return "Sorry, I couldn't process that voice note. Please try again or type your comment."
	}
}

func progressMessage(answered, total int) string {
	return fmt.Sprintf("Thanks! %d of %d questions done.", answered, total)
}

func completionMessage(survey *model.Survey, code string) string {
	return fmt.Sprintf(
		"That was the last question — thank you for completing \"%s\"!\nYour participant code is %s. Your answers have been recorded.",
		survey.Title, code,
	)
}

func stageHelpText(stage model.Stage) string {
	switch stage {
	case model.StageFollowUp:
		return "You can type a comment on your answer, send a voice note, or reply \"skip\" to move on."
	case model.StageVoiceConfirm:
		return "Please reply \"yes\" to use your voice note, \"no\" to try again, or \"skip\" to move on without a comment."
	default:
		return "Please answer the question above to continue."
	}
}

const (
	noActiveSurveyMessage = "There is no survey running at the moment. Please check back later."
	typedAnswerReminder   = "Please answer this question with a typed reply — voice notes come in at the comment step."
	genericApology        = "Sorry, something went wrong on our side. Your survey will restart with your next message."
)
