package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chatsurvey/internal/model"
)

// memSessionCache is an in-memory stand-in for the Redis session cache,
// shared by the session and conversation engine tests.
type memSessionCache struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	getErr   error
	setErr   error
}

func newMemSessionCache() *memSessionCache {
	return &memSessionCache{sessions: make(map[string]*model.Session)}
}

func memSessionKey(phone, surveyID string) string {
	return surveyID + ":" + phone
}

func (c *memSessionCache) Get(ctx context.Context, phone, surveyID string) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	s, ok := c.sessions[memSessionKey(phone, surveyID)]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (c *memSessionCache) Set(ctx context.Context, session *model.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	copied := *session
	c.sessions[memSessionKey(session.Phone, session.SurveyID)] = &copied
	return nil
}

func (c *memSessionCache) Delete(ctx context.Context, phone, surveyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, memSessionKey(phone, surveyID))
	return nil
}

func (c *memSessionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func stagePtr(s model.Stage) *model.Stage { return &s }
func intPtr(n int) *int                   { return &n }
func strPtr(s string) *string             { return &s }

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	svc := NewSessionService(newMemSessionCache())
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, "+15550001", "survey-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first.Stage != model.StageInitial {
		t.Errorf("new session stage = %s, want %s", first.Stage, model.StageInitial)
	}

	second, err := svc.GetOrCreate(ctx, "+15550001", "survey-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second call created a new session: %s != %s", second.ID, first.ID)
	}
}

func TestGetOrCreateConcurrentSingleSession(t *testing.T) {
	cache := newMemSessionCache()
	svc := NewSessionService(cache)
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			s, err := svc.GetOrCreate(ctx, "+15550002", "survey-1")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()

	if cache.len() != 1 {
		t.Fatalf("expected 1 stored session, got %d", cache.len())
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("divergent session IDs under concurrency: %s != %s", ids[i], ids[0])
		}
	}
}

func TestGetOrCreateSessionsPerSurvey(t *testing.T) {
	svc := NewSessionService(newMemSessionCache())
	ctx := context.Background()

	a, _ := svc.GetOrCreate(ctx, "+15550003", "survey-a")
	b, _ := svc.GetOrCreate(ctx, "+15550003", "survey-b")
	if a.ID == b.ID {
		t.Error("same session returned for different surveys")
	}
}

func TestUpdateStageTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    model.Stage
		to      model.Stage
		allowed bool
	}{
		{"initial to survey", model.StageInitial, model.StageSurvey, true},
		{"survey to followup", model.StageSurvey, model.StageFollowUp, true},
		{"survey self loop", model.StageSurvey, model.StageSurvey, true},
		{"followup to voice confirmation", model.StageFollowUp, model.StageVoiceConfirm, true},
		{"followup back to survey", model.StageFollowUp, model.StageSurvey, true},
		{"voice confirmation back to followup", model.StageVoiceConfirm, model.StageFollowUp, true},
		{"voice confirmation to survey", model.StageVoiceConfirm, model.StageSurvey, true},
		{"initial to followup skips survey", model.StageInitial, model.StageFollowUp, false},
		{"initial to voice confirmation", model.StageInitial, model.StageVoiceConfirm, false},
		{"survey to voice confirmation skips followup", model.StageSurvey, model.StageVoiceConfirm, false},
		{"survey back to initial", model.StageSurvey, model.StageInitial, false},
		{"followup back to initial", model.StageFollowUp, model.StageInitial, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newMemSessionCache()
			svc := NewSessionService(cache)
			ctx := context.Background()

			session, err := svc.GetOrCreate(ctx, "+15550004", "survey-1")
			if err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}
			session.Stage = tt.from
			if err := cache.Set(ctx, session); err != nil {
				t.Fatalf("seed stage: %v", err)
			}

			updated, err := svc.Update(ctx, "+15550004", "survey-1", SessionUpdate{Stage: stagePtr(tt.to)})
			if tt.allowed {
				if err != nil {
					t.Fatalf("expected transition allowed, got %v", err)
				}
				if updated.Stage != tt.to {
					t.Errorf("stage = %s, want %s", updated.Stage, tt.to)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestUpdateRejectsDecreasingIndex(t *testing.T) {
	svc := NewSessionService(newMemSessionCache())
	ctx := context.Background()

	if _, err := svc.GetOrCreate(ctx, "+15550005", "survey-1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := svc.Update(ctx, "+15550005", "survey-1", SessionUpdate{QuestionIndex: intPtr(3)}); err != nil {
		t.Fatalf("advance index: %v", err)
	}

	if _, err := svc.Update(ctx, "+15550005", "survey-1", SessionUpdate{QuestionIndex: intPtr(2)}); err == nil {
		t.Error("expected decreasing index rejected")
	}
	if _, err := svc.Update(ctx, "+15550005", "survey-1", SessionUpdate{QuestionIndex: intPtr(3)}); err != nil {
		t.Errorf("same index should be allowed: %v", err)
	}
}

func TestUpdateMissingSessionReturnsErrSessionGone(t *testing.T) {
	svc := NewSessionService(newMemSessionCache())

	_, err := svc.Update(context.Background(), "+15550006", "survey-1", SessionUpdate{Code: strPtr("P-0001")})
	if !errors.Is(err, ErrSessionGone) {
		t.Fatalf("expected ErrSessionGone, got %v", err)
	}
}

func TestUpdateMergesPartialChanges(t *testing.T) {
	svc := NewSessionService(newMemSessionCache())
	ctx := context.Background()

	if _, err := svc.GetOrCreate(ctx, "+15550007", "survey-1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if _, err := svc.Update(ctx, "+15550007", "survey-1", SessionUpdate{
		Stage:         stagePtr(model.StageSurvey),
		Code:          strPtr("P-0042"),
		ParticipantID: strPtr("participant-1"),
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	pending := &model.PendingAnswer{QuestionID: "q1", Answer: "Library", Type: model.QuestionTypeChoice}
	if _, err := svc.Update(ctx, "+15550007", "survey-1", SessionUpdate{
		Stage:         stagePtr(model.StageFollowUp),
		PendingAnswer: pending,
	}); err != nil {
		t.Fatalf("stash pending: %v", err)
	}

	// An unrelated update must not disturb existing fields.
	session, err := svc.Update(ctx, "+15550007", "survey-1", SessionUpdate{
		PendingVoice: &model.PendingVoice{Transcript: "it was fine"},
	})
	if err != nil {
		t.Fatalf("voice update: %v", err)
	}
	if session.Code != "P-0042" || session.ParticipantID != "participant-1" {
		t.Errorf("identity fields lost: %+v", session)
	}
	if session.Pending.Answer == nil || session.Pending.Answer.Answer != "Library" {
		t.Errorf("pending answer lost: %+v", session.Pending)
	}
	if session.Pending.Voice == nil {
		t.Error("pending voice not stored")
	}

	// Clear flags remove exactly the named variant.
	session, err = svc.Update(ctx, "+15550007", "survey-1", SessionUpdate{ClearPendingVoice: true})
	if err != nil {
		t.Fatalf("clear voice: %v", err)
	}
	if session.Pending.Voice != nil {
		t.Error("pending voice not cleared")
	}
	if session.Pending.Answer == nil {
		t.Error("pending answer cleared by ClearPendingVoice")
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	cache := newMemSessionCache()
	svc := NewSessionService(cache)
	ctx := context.Background()

	if _, err := svc.GetOrCreate(ctx, "+15550008", "survey-1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := svc.Delete(ctx, "+15550008", "survey-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if cache.len() != 0 {
		t.Errorf("expected empty cache after delete, got %d entries", cache.len())
	}

	_, err := svc.Update(ctx, "+15550008", "survey-1", SessionUpdate{Stage: stagePtr(model.StageSurvey)})
	if !errors.Is(err, ErrSessionGone) {
		t.Fatalf("expected ErrSessionGone after delete, got %v", err)
	}
}
