package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"chatsurvey/internal/model"
	"chatsurvey/internal/repository"
)

// Event types pushed to dashboards and the reporting exchange
const (
	EventParticipantJoined      = "participant_joined"
	EventResponseRecorded       = "response_recorded"
	EventParticipationCompleted = "participation_completed"
)

// Catalog is the slice of the survey catalog the engine needs
type Catalog interface {
	Active(ctx context.Context) (*model.Survey, error)
}

// ConversationEngine is the state machine driving one respondent through the
// active survey. It is the only writer of sessions and responses; every
// inbound message produces exactly one reply, including on failure.
type ConversationEngine struct {
	catalog        Catalog
	sessions       *SessionService
	participants   repository.ParticipantRepo
	participations repository.ParticipationRepo
	responses      repository.ResponseRepo
	voice          VoiceResolver
	messenger      Messenger
	broadcaster    Broadcaster
	publisher      Publisher
}

// NewConversationEngine creates a new conversation engine
func NewConversationEngine(
	catalog Catalog,
	sessions *SessionService,
	participants repository.ParticipantRepo,
	participations repository.ParticipationRepo,
	responses repository.ResponseRepo,
	voice VoiceResolver,
	messenger Messenger,
) *ConversationEngine {
	return &ConversationEngine{
		catalog:        catalog,
		sessions:       sessions,
		participants:   participants,
		participations: participations,
		responses:      responses,
		voice:          voice,
		messenger:      messenger,
	}
}

// SetBroadcaster sets the broadcaster for dashboard events
func (e *ConversationEngine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

// SetPublisher sets the publisher for reporting events
func (e *ConversationEngine) SetPublisher(p Publisher) {
	e.publisher = p
}

// HandleInboundMessage processes one inbound message. The transport adapter
// calls it once per message, in arrival order per respondent. It never lets
// a failure escape without a respondent-visible reply.
func (e *ConversationEngine) HandleInboundMessage(ctx context.Context, ev *model.MessageEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] recovered from panic handling message from %s: %v", ev.From, r)
			e.send(ctx, ev.From, genericApology)
			err = fmt.Errorf("panic handling message: %v", r)
		}
	}()

	survey, err := e.catalog.Active(ctx)
	if err != nil {
		log.Printf("[Engine] active survey lookup failed: %v", err)
		e.send(ctx, ev.From, genericApology)
		return err
	}
	if survey == nil {
		e.send(ctx, ev.From, noActiveSurveyMessage)
		return nil
	}

	session, err := e.sessions.GetOrCreate(ctx, ev.From, survey.ID)
	if err != nil {
		log.Printf("[Engine] session load failed for %s: %v", ev.From, err)
		e.send(ctx, ev.From, genericApology)
		return err
	}

	switch session.Stage {
	case model.StageInitial:
		return e.handleInitial(ctx, survey, session)
	case model.StageSurvey:
		return e.handleSurvey(ctx, survey, session, ev)
	case model.StageFollowUp:
		return e.handleFollowUp(ctx, survey, session, ev)
	case model.StageVoiceConfirm:
		return e.handleVoiceConfirm(ctx, survey, session, ev)
	default:
		return e.resetSession(ctx, session, fmt.Errorf("unknown stage %q", session.Stage))
	}
}

// handleInitial registers the participant and sends the welcome plus the
// first question. Any inbound message triggers it.
func (e *ConversationEngine) handleInitial(ctx context.Context, survey *model.Survey, session *model.Session) error {
	participant, err := e.participants.GetOrCreateByPhone(ctx, session.Phone)
	if err != nil {
		return e.resetSession(ctx, session, fmt.Errorf("participant lookup: %w", err))
	}

	participation, err := e.participations.GetOrCreate(ctx, survey.ID, participant.ID, survey.Settings.CodePrefix)
	if err != nil {
		return e.resetSession(ctx, session, fmt.Errorf("participation lookup: %w", err))
	}
	if participation.Completed {
		if err := e.sessions.Delete(ctx, session.Phone, survey.ID); err != nil {
			log.Printf("[Engine] session delete failed for %s: %v", session.Phone, err)
		}
		e.send(ctx, session.Phone,
			fmt.Sprintf("You have already completed \"%s\" — thank you again! Your participant code is %s.",
				survey.Title, participation.Code))
		return nil
	}

	stage := model.StageSurvey
	_, err = e.sessions.Update(ctx, session.Phone, survey.ID, SessionUpdate{
		Stage:           &stage,
		Code:            &participation.Code,
		ParticipantID:   &participant.ID,
		ParticipationID: &participation.ID,
	})
	if err != nil {
		return e.resetSession(ctx, session, fmt.Errorf("session init: %w", err))
	}

	count, err := e.participations.CountBySurvey(ctx, survey.ID)
	if err != nil {
		count = 0
	}
	e.notify(survey.ID, EventParticipantJoined, map[string]interface{}{
		"participantCode":    participation.Code,
		"participationCount": count,
	})

	first := survey.QuestionByIndex(0)
	if first == nil {
		return e.resetSession(ctx, session, fmt.Errorf("active survey %s has no questions", survey.ID))
	}
	e.send(ctx, session.Phone,
		welcomeMessage(survey, participation.Code)+"\n"+questionPrompt(first, 0, len(survey.Questions)))
	return nil
}

// handleSurvey validates a typed answer to the current question. Voice notes
// are not accepted for the primary answer.
func (e *ConversationEngine) handleSurvey(ctx context.Context, survey *model.Survey, session *model.Session, ev *model.MessageEvent) error {
	question := survey.QuestionByIndex(session.QuestionIndex)
	if question == nil {
		// The survey shrank under a live session; finish rather than corrupt.
		return e.completeSurvey(ctx, survey, session)
	}

	if ev.HasAudio() {
		e.send(ctx, session.Phone, typedAnswerReminder)
		return nil
	}

	result := ValidateAnswer(question, ev.Text)
	if !result.Valid {
		e.send(ctx, session.Phone, retryPrompt(question))
		return nil
	}

	pending := &model.PendingAnswer{
		QuestionID: question.ID,
		Answer:     result.Value,
		Type:       question.Type,
		Prompt:     question.Prompt,
	}

	if !question.WantsFollowUp(survey.Settings) {
		return e.commitAndAdvance(ctx, survey, session, pending, nil, nil)
	}

	stage := model.StageFollowUp
	_, err := e.sessions.Update(ctx, session.Phone, survey.ID, SessionUpdate{
		Stage:         &stage,
		PendingAnswer: pending,
	})
	if err != nil {
		return e.resetSession(ctx, session, fmt.Errorf("stash pending answer: %w", err))
	}

	e.send(ctx, session.Phone, followUpPrompt(question, result.Value))
	return nil
}

// handleFollowUp collects the optional elaboration comment: typed text,
// "skip", or a voice note that goes through the resolver and then explicit
// confirmation.
func (e *ConversationEngine) handleFollowUp(ctx context.Context, survey *model.Survey, session *model.Session, ev *model.MessageEvent) error {
	pending := session.Pending.Answer
	if pending == nil {
		return e.resetSession(ctx, session, fmt.Errorf("followup stage without pending answer"))
	}

	if ev.HasAudio() {
		question := survey.QuestionByIndex(session.QuestionIndex)
		if question == nil {
			return e.resetSession(ctx, session, fmt.Errorf("followup stage past last question"))
		}

		// The transport reports the attachment size up front; reject
		// oversized audio without downloading it.
		if limit := e.voice.MaxAudioBytes(); limit > 0 && ev.AttachmentSize > limit {
			e.send(ctx, session.Phone, voiceFailureMessage(ErrAudioTooLong))
			return nil
		}

		audio, mimeType, err := e.messenger.DownloadMedia(ctx, ev.AttachmentID)
		if err != nil {
			log.Printf("[Engine] media download failed for %s: %v", session.Phone, err)
			e.send(ctx, session.Phone, voiceFailureMessage(err))
			return nil
		}

		resolution, err := e.voice.Resolve(ctx, audio, mimeType, question)
		if err != nil {
			e.send(ctx, session.Phone, voiceFailureMessage(err))
			return nil
		}

		stage := model.StageVoiceConfirm
		_, err = e.sessions.Update(ctx, session.Phone, survey.ID, SessionUpdate{
			Stage: &stage,
			PendingVoice: &model.PendingVoice{
				Transcript:      resolution.Transcript,
				Translated:      resolution.Translated,
				Summary:         resolution.Summary,
				Language:        resolution.Language,
				DurationSeconds: resolution.DurationSeconds,
			},
		})
		if err != nil {
			return e.resetSession(ctx, session, fmt.Errorf("stash pending voice: %w", err))
		}

		e.send(ctx, session.Phone, voiceConfirmPrompt(resolution))
		return nil
	}

	text := strings.TrimSpace(ev.Text)
	if strings.EqualFold(text, "skip") {
		return e.commitAndAdvance(ctx, survey, session, pending, nil, nil)
	}
	if text == "" {
		e.send(ctx, session.Phone, stageHelpText(model.StageFollowUp))
		return nil
	}
	return e.commitAndAdvance(ctx, survey, session, pending, &text, nil)
}

// handleVoiceConfirm waits for an explicit yes/no/skip on the resolved voice
// note. Anything else repeats the help prompt without a state change.
func (e *ConversationEngine) handleVoiceConfirm(ctx context.Context, survey *model.Survey, session *model.Session, ev *model.MessageEvent) error {
	pending := session.Pending.Answer
	voice := session.Pending.Voice
	if pending == nil || voice == nil {
		return e.resetSession(ctx, session, fmt.Errorf("voice confirmation stage without pending state"))
	}

	switch strings.ToLower(strings.TrimSpace(ev.Text)) {
	case "yes":
		followUp := voice.Summary
		meta := &model.VoiceMeta{
			Transcript:      voice.Transcript,
			Translated:      voice.Translated,
			Language:        voice.Language,
			DurationSeconds: voice.DurationSeconds,
			Transcribed:     true,
		}
		return e.commitAndAdvance(ctx, survey, session, pending, &followUp, meta)

	case "no":
		stage := model.StageFollowUp
		_, err := e.sessions.Update(ctx, session.Phone, survey.ID, SessionUpdate{
			Stage:             &stage,
			ClearPendingVoice: true,
		})
		if err != nil {
			return e.resetSession(ctx, session, fmt.Errorf("discard pending voice: %w", err))
		}
		e.send(ctx, session.Phone, "No problem — let's try that again. "+stageHelpText(model.StageFollowUp))
		return nil

	case "skip":
		return e.commitAndAdvance(ctx, survey, session, pending, nil, nil)

	default:
		e.send(ctx, session.Phone, stageHelpText(model.StageVoiceConfirm))
		return nil
	}
}

// commitAndAdvance persists the answer and moves the session to the next
// question or to completion. Shared by every commit path. The response
// write is an upsert keyed by (survey, participant, question), so a replayed
// commit updates rather than duplicates.
func (e *ConversationEngine) commitAndAdvance(ctx context.Context, survey *model.Survey, session *model.Session, pending *model.PendingAnswer, followUp *string, voice *model.VoiceMeta) error {
	response := &model.Response{
		SurveyID:      survey.ID,
		ParticipantID: session.ParticipantID,
		QuestionID:    pending.QuestionID,
		Answer:        pending.Answer,
		FollowUp:      followUp,
		Voice:         voice,
	}
	if err := e.responses.Upsert(ctx, response); err != nil {
		return e.resetSession(ctx, session, fmt.Errorf("persist response: %w", err))
	}

	e.notify(survey.ID, EventResponseRecorded, map[string]interface{}{
		"participantCode": session.Code,
		"questionId":      pending.QuestionID,
		"answer":          pending.Answer,
		"hasVoice":        voice != nil,
	})

	next := session.QuestionIndex + 1
	if next < len(survey.Questions) {
		stage := model.StageSurvey
		_, err := e.sessions.Update(ctx, session.Phone, survey.ID, SessionUpdate{
			Stage:              &stage,
			QuestionIndex:      &next,
			ClearPendingAnswer: true,
			ClearPendingVoice:  true,
		})
		if err != nil {
			return e.resetSession(ctx, session, fmt.Errorf("advance session: %w", err))
		}

		question := survey.QuestionByIndex(next)
		e.send(ctx, session.Phone,
			progressMessage(next, len(survey.Questions))+"\n\n"+questionPrompt(question, next, len(survey.Questions)))
		return nil
	}

	return e.completeSurvey(ctx, survey, session)
}

// completeSurvey marks the participation finished, removes the session, and
// notifies the reporting surface.
func (e *ConversationEngine) completeSurvey(ctx context.Context, survey *model.Survey, session *model.Session) error {
	duration, err := e.participations.Complete(ctx, session.ParticipationID)
	if err != nil {
		return e.resetSession(ctx, session, fmt.Errorf("complete participation: %w", err))
	}

	if err := e.sessions.Delete(ctx, session.Phone, survey.ID); err != nil {
		log.Printf("[Engine] session delete failed for %s: %v", session.Phone, err)
	}

	e.notify(survey.ID, EventParticipationCompleted, map[string]interface{}{
		"participantCode": session.Code,
		"durationSeconds": duration,
	})

	e.send(ctx, session.Phone, completionMessage(survey, session.Code))
	return nil
}

// resetSession deletes the corrupt or unrecoverable session and apologizes,
// so the respondent's next message restarts the survey cleanly.
func (e *ConversationEngine) resetSession(ctx context.Context, session *model.Session, cause error) error {
	log.Printf("[Engine] resetting session %s for %s: %v", session.ID, session.Phone, cause)
	if err := e.sessions.Delete(ctx, session.Phone, session.SurveyID); err != nil {
		log.Printf("[Engine] session delete failed during reset for %s: %v", session.Phone, err)
	}
	e.send(ctx, session.Phone, genericApology)
	return cause
}

func (e *ConversationEngine) send(ctx context.Context, to, text string) {
	if err := e.messenger.SendText(ctx, to, text); err != nil {
		log.Printf("[Engine] send to %s failed: %v", to, err)
	}
}

func (e *ConversationEngine) notify(surveyID, eventType string, payload interface{}) {
	if e.broadcaster != nil {
		e.broadcaster.BroadcastToSurvey(surveyID, eventType, payload)
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(eventType, payload); err != nil {
			log.Printf("[Engine] event publish %s failed: %v", eventType, err)
		}
	}
}
