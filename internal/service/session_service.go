package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatsurvey/internal/cache"
	"chatsurvey/internal/model"
)

var (
	// ErrSessionGone is returned when an update targets a session that no
	// longer exists. The engine recovers by restarting the conversation.
	ErrSessionGone = errors.New("session no longer exists")

	// ErrInvalidTransition is returned for a stage change outside the state
	// machine's allowed set.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// allowedTransitions lists the valid next stages per current stage. Deletion
// is allowed from any stage and handled separately.
var allowedTransitions = map[model.Stage]map[model.Stage]bool{
	model.StageInitial: {
		model.StageInitial: true,
		model.StageSurvey:  true,
	},
	model.StageSurvey: {
		model.StageSurvey:   true,
		model.StageFollowUp: true,
	},
	model.StageFollowUp: {
		model.StageFollowUp:     true,
		model.StageVoiceConfirm: true,
		model.StageSurvey:       true,
	},
	model.StageVoiceConfirm: {
		model.StageVoiceConfirm: true,
		model.StageFollowUp:     true,
		model.StageSurvey:       true,
	},
}

// SessionUpdate describes a partial session change. Nil fields are left
// untouched, so unrelated state survives the update; the Clear flags remove
// the corresponding pending variant.
type SessionUpdate struct {
	Stage              *model.Stage
	QuestionIndex      *int
	Code               *string
	ParticipantID      *string
	ParticipationID    *string
	PendingAnswer      *model.PendingAnswer
	ClearPendingAnswer bool
	PendingVoice       *model.PendingVoice
	ClearPendingVoice  bool
}

// SessionService owns live conversation sessions: one per (phone, survey)
// pair, stored in Redis, serialized per key so duplicate deliveries cannot
// race the create-if-absent check.
type SessionService struct {
	sessions cache.SessionCache
	locks    *cache.KeyMutex
}

// NewSessionService creates a new session service
func NewSessionService(sessions cache.SessionCache) *SessionService {
	return &SessionService{
		sessions: sessions,
		locks:    cache.NewKeyMutex(),
	}
}

func sessionLockKey(phone, surveyID string) string {
	return surveyID + ":" + phone
}

// GetOrCreate returns the session for the pair, creating a fresh one at
// stage initial when none exists.
func (s *SessionService) GetOrCreate(ctx context.Context, phone, surveyID string) (*model.Session, error) {
	key := sessionLockKey(phone, surveyID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	session, err := s.sessions.Get(ctx, phone, surveyID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	now := time.Now()
	session = &model.Session{
		ID:        uuid.New().String(),
		Phone:     phone,
		SurveyID:  surveyID,
		Stage:     model.StageInitial,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Set(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Update applies a partial change to the session, enforcing the stage
// transition table and question index monotonicity. It fails loudly with
// ErrSessionGone when the session vanished, so the caller can recover.
func (s *SessionService) Update(ctx context.Context, phone, surveyID string, upd SessionUpdate) (*model.Session, error) {
	key := sessionLockKey(phone, surveyID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	session, err := s.sessions.Get(ctx, phone, surveyID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionGone
	}

	if upd.Stage != nil {
		next := *upd.Stage
		if !allowedTransitions[session.Stage][next] {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.Stage, next)
		}
		session.Stage = next
	}
	if upd.QuestionIndex != nil {
		next := *upd.QuestionIndex
		if next < 0 || next < session.QuestionIndex {
			return nil, fmt.Errorf("question index must not decrease: %d -> %d", session.QuestionIndex, next)
		}
		session.QuestionIndex = next
	}
	if upd.Code != nil {
		session.Code = *upd.Code
	}
	if upd.ParticipantID != nil {
		session.ParticipantID = *upd.ParticipantID
	}
	if upd.ParticipationID != nil {
		session.ParticipationID = *upd.ParticipationID
	}
	if upd.PendingAnswer != nil {
		session.Pending.Answer = upd.PendingAnswer
	} else if upd.ClearPendingAnswer {
		session.Pending.Answer = nil
	}
	if upd.PendingVoice != nil {
		session.Pending.Voice = upd.PendingVoice
	} else if upd.ClearPendingVoice {
		session.Pending.Voice = nil
	}
	session.UpdatedAt = time.Now()

	if err := s.sessions.Set(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes the session; used on survey completion and on recovery
// resets.
func (s *SessionService) Delete(ctx context.Context, phone, surveyID string) error {
	key := sessionLockKey(phone, surveyID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	return s.sessions.Delete(ctx, phone, surveyID)
}
