package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"chatsurvey/internal/model"
)

// --- fakes ---

type fakeCatalog struct {
	survey *model.Survey
	err    error
}

func (f *fakeCatalog) Active(ctx context.Context) (*model.Survey, error) {
	return f.survey, f.err
}

type fakeParticipants struct {
	mu     sync.Mutex
	byID   map[string]*model.Participant
	nextID int
	err    error
}

func newFakeParticipants() *fakeParticipants {
	return &fakeParticipants{byID: make(map[string]*model.Participant)}
}

func (f *fakeParticipants) GetOrCreateByPhone(ctx context.Context, phone string) (*model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.byID {
		if p.Phone == phone {
			return p, nil
		}
	}
	f.nextID++
	p := &model.Participant{
		ID:        fmt.Sprintf("participant-%d", f.nextID),
		Phone:     phone,
		Code:      fmt.Sprintf("R-%04d", f.nextID),
		CreatedAt: time.Now(),
	}
	f.byID[p.ID] = p
	return p, nil
}

func (f *fakeParticipants) GetByID(ctx context.Context, id string) (*model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeParticipants) EnsureIndexes(ctx context.Context) error { return nil }

type fakeParticipations struct {
	mu     sync.Mutex
	byKey  map[string]*model.Participation
	nextID int
	err    error
}

func newFakeParticipations() *fakeParticipations {
	return &fakeParticipations{byKey: make(map[string]*model.Participation)}
}

func (f *fakeParticipations) GetOrCreate(ctx context.Context, surveyID, participantID, codePrefix string) (*model.Participation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := surveyID + ":" + participantID
	if p, ok := f.byKey[key]; ok {
		return p, nil
	}
	if codePrefix == "" {
		codePrefix = "P"
	}
	f.nextID++
	p := &model.Participation{
		ID:            fmt.Sprintf("participation-%d", f.nextID),
		SurveyID:      surveyID,
		ParticipantID: participantID,
		Code:          fmt.Sprintf("%s-%04d", codePrefix, f.nextID),
		StartedAt:     time.Now(),
	}
	f.byKey[key] = p
	return p, nil
}

func (f *fakeParticipations) GetByID(ctx context.Context, id string) (*model.Participation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byKey {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeParticipations) Complete(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byKey {
		if p.ID == id {
			now := time.Now()
			duration := int(now.Sub(p.StartedAt).Seconds())
			if duration < 0 {
				duration = 0
			}
			p.Completed = true
			p.CompletedAt = &now
			p.DurationSeconds = duration
			return duration, nil
		}
	}
	return 0, errors.New("participation not found")
}

func (f *fakeParticipations) ListBySurvey(ctx context.Context, surveyID string) ([]*model.Participation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Participation
	for _, p := range f.byKey {
		if p.SurveyID == surveyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeParticipations) CountBySurvey(ctx context.Context, surveyID string) (int64, error) {
	list, _ := f.ListBySurvey(ctx, surveyID)
	return int64(len(list)), nil
}

func (f *fakeParticipations) EnsureIndexes(ctx context.Context) error { return nil }

type fakeResponses struct {
	mu        sync.Mutex
	byKey     map[string]*model.Response
	upsertErr error
}

func newFakeResponses() *fakeResponses {
	return &fakeResponses{byKey: make(map[string]*model.Response)}
}

func (f *fakeResponses) Upsert(ctx context.Context, response *model.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	key := response.SurveyID + ":" + response.ParticipantID + ":" + response.QuestionID
	copied := *response
	f.byKey[key] = &copied
	return nil
}

func (f *fakeResponses) ListBySurvey(ctx context.Context, surveyID string) ([]*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Response
	for _, r := range f.byKey {
		if r.SurveyID == surveyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResponses) ListByParticipant(ctx context.Context, surveyID, participantID string) ([]*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Response
	for _, r := range f.byKey {
		if r.SurveyID == surveyID && r.ParticipantID == participantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResponses) CountBySurvey(ctx context.Context, surveyID string) (int64, error) {
	list, _ := f.ListBySurvey(ctx, surveyID)
	return int64(len(list)), nil
}

func (f *fakeResponses) EnsureIndexes(ctx context.Context) error { return nil }

func (f *fakeResponses) get(surveyID, participantID, questionID string) *model.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byKey[surveyID+":"+participantID+":"+questionID]
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []string
	media   []byte
	mime    string
	dlErr   error
	dlCalls int
	sendErr error
}

func (f *fakeMessenger) SendText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMessenger) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	f.mu.Lock()
	f.dlCalls++
	f.mu.Unlock()
	if f.dlErr != nil {
		return nil, "", f.dlErr
	}
	return f.media, f.mime, nil
}

func (f *fakeMessenger) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

type fakeVoiceResolver struct {
	resolution *VoiceResolution
	err        error
	calls      int
	maxBytes   int64
}

func (f *fakeVoiceResolver) Resolve(ctx context.Context, audio []byte, mimeType string, question *model.Question) (*VoiceResolution, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resolution, nil
}

func (f *fakeVoiceResolver) MaxAudioBytes() int64 {
	return f.maxBytes
}

type broadcastEvent struct {
	surveyID string
	msgType  string
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (f *fakeBroadcaster) BroadcastToSurvey(surveyID string, msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastEvent{surveyID: surveyID, msgType: msgType})
}

func (f *fakeBroadcaster) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.msgType)
	}
	return out
}

// --- harness ---

type engineHarness struct {
	engine         *ConversationEngine
	catalog        *fakeCatalog
	sessions       *SessionService
	sessionCache   *memSessionCache
	participants   *fakeParticipants
	participations *fakeParticipations
	responses      *fakeResponses
	messenger      *fakeMessenger
	voice          *fakeVoiceResolver
	broadcaster    *fakeBroadcaster
}

func newEngineHarness(survey *model.Survey) *engineHarness {
	h := &engineHarness{
		catalog:        &fakeCatalog{survey: survey},
		sessionCache:   newMemSessionCache(),
		participants:   newFakeParticipants(),
		participations: newFakeParticipations(),
		responses:      newFakeResponses(),
		messenger:      &fakeMessenger{media: []byte("audio"), mime: "audio/ogg"},
		voice:          &fakeVoiceResolver{},
		broadcaster:    &fakeBroadcaster{},
	}
	h.sessions = NewSessionService(h.sessionCache)
	h.engine = NewConversationEngine(
		h.catalog,
		h.sessions,
		h.participants,
		h.participations,
		h.responses,
		h.voice,
		h.messenger,
	)
	h.engine.SetBroadcaster(h.broadcaster)
	return h
}

func (h *engineHarness) text(t *testing.T, from, text string) {
	t.Helper()
	if err := h.engine.HandleInboundMessage(context.Background(), &model.MessageEvent{
		MessageID:  "m",
		From:       from,
		Text:       text,
		ReceivedAt: time.Now(),
	}); err != nil {
		t.Fatalf("HandleInboundMessage(%q): %v", text, err)
	}
}

func (h *engineHarness) audio(t *testing.T, from string) {
	t.Helper()
	h.audioSized(t, from, 0)
}

func (h *engineHarness) audioSized(t *testing.T, from string, size int64) {
	t.Helper()
	if err := h.engine.HandleInboundMessage(context.Background(), &model.MessageEvent{
		MessageID:      "m",
		From:           from,
		AttachmentKind: model.AttachmentAudio,
		AttachmentID:   "media-1",
		AttachmentSize: size,
		ReceivedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("HandleInboundMessage(audio): %v", err)
	}
}

func (h *engineHarness) session(t *testing.T, phone string) *model.Session {
	t.Helper()
	s, err := h.sessionCache.Get(context.Background(), phone, h.catalog.survey.ID)
	if err != nil {
		t.Fatalf("session get: %v", err)
	}
	return s
}

func yesPtr() *bool { b := true; return &b }
func noPtr() *bool  { b := false; return &b }

func testSurvey() *model.Survey {
	return &model.Survey{
		ID:       "survey-1",
		Title:    "Community Services Feedback",
		IsActive: true,
		Settings: model.SurveySettings{FollowUpDefault: true, CodePrefix: "CS"},
		Questions: []model.Question{
			{
				ID:      "q1",
				Seq:     1,
				Type:    model.QuestionTypeChoice,
				Prompt:  "Which service do you use most?",
				Options: []string{"Clinic", "Library"},
			},
			{
				ID:          "q2",
				Seq:         2,
				Type:        model.QuestionTypeRating,
				Prompt:      "How satisfied are you?",
				Scale:       &model.Scale{Min: 1, Max: 5, LowLabel: "Bad", HighLabel: "Good"},
				AskFollowUp: noPtr(),
			},
		},
	}
}

const phone = "+15551234"

// joins and leaves the session at the first question
func (h *engineHarness) join(t *testing.T) {
	t.Helper()
	h.text(t, phone, "hi")
}

// --- tests ---

func TestEngineNoActiveSurvey(t *testing.T) {
	h := newEngineHarness(nil)
	h.catalog.survey = nil

	if err := h.engine.HandleInboundMessage(context.Background(), &model.MessageEvent{From: phone, Text: "hi"}); err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if got := h.messenger.last(t); got != noActiveSurveyMessage {
		t.Errorf("reply = %q", got)
	}
	if h.sessionCache.len() != 0 {
		t.Error("session created without an active survey")
	}
}

func TestEngineJoinSendsWelcomeAndFirstQuestion(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)

	reply := h.messenger.last(t)
	if !strings.Contains(reply, "Welcome") {
		t.Errorf("missing welcome: %q", reply)
	}
	if !strings.Contains(reply, "CS-0001") {
		t.Errorf("missing participant code: %q", reply)
	}
	if !strings.Contains(reply, "Question 1 of 2") || !strings.Contains(reply, "Which service do you use most?") {
		t.Errorf("missing first question: %q", reply)
	}

	session := h.session(t, phone)
	if session == nil {
		t.Fatal("no session after join")
	}
	if session.Stage != model.StageSurvey {
		t.Errorf("stage = %s, want %s", session.Stage, model.StageSurvey)
	}
	if session.Code != "CS-0001" || session.ParticipantID == "" || session.ParticipationID == "" {
		t.Errorf("identity not recorded: %+v", session)
	}

	types := h.broadcaster.types()
	if len(types) != 1 || types[0] != EventParticipantJoined {
		t.Errorf("broadcast events = %v", types)
	}
}

func TestEngineAlreadyCompletedParticipant(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)

	// Mark the participation finished out of band, then come back.
	session := h.session(t, phone)
	if _, err := h.participations.Complete(context.Background(), session.ParticipationID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := h.sessions.Delete(context.Background(), phone, "survey-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	h.text(t, phone, "hi again")
	reply := h.messenger.last(t)
	if !strings.Contains(reply, "already completed") {
		t.Errorf("reply = %q", reply)
	}
	if h.sessionCache.len() != 0 {
		t.Error("session left behind for completed participant")
	}
}

func TestEngineInvalidAnswerRetries(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)

	h.text(t, phone, "maybe the library?")
	reply := h.messenger.last(t)
	if !strings.Contains(reply, "number from 1 to 2") {
		t.Errorf("reply = %q", reply)
	}

	session := h.session(t, phone)
	if session.Stage != model.StageSurvey || session.QuestionIndex != 0 {
		t.Errorf("state changed on invalid answer: %+v", session)
	}
	if len(h.responses.byKey) != 0 {
		t.Error("response recorded for invalid answer")
	}
}

func TestEngineAudioDuringSurveyStage(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)

	h.audio(t, phone)
	if got := h.messenger.last(t); got != typedAnswerReminder {
		t.Errorf("reply = %q", got)
	}
	if h.voice.calls != 0 {
		t.Error("voice resolver called for a primary answer")
	}
}

func TestEngineValidAnswerMovesToFollowUp(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)

	h.text(t, phone, "2")
	reply := h.messenger.last(t)
	if !strings.Contains(reply, `"Library"`) {
		t.Errorf("follow-up does not reference the answer: %q", reply)
	}
	if !strings.Contains(reply, "skip") {
		t.Errorf("follow-up missing skip hint: %q", reply)
	}

	session := h.session(t, phone)
	if session.Stage != model.StageFollowUp {
		t.Fatalf("stage = %s, want %s", session.Stage, model.StageFollowUp)
	}
	if session.Pending.Answer == nil || session.Pending.Answer.Answer != "Library" {
		t.Errorf("pending answer = %+v", session.Pending.Answer)
	}
	if len(h.responses.byKey) != 0 {
		t.Error("answer committed before follow-up resolved")
	}
}

func TestEngineFollowUpSkipCommitsWithoutComment(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)
	h.text(t, phone, "2")

	h.text(t, phone, "SKIP")

	session := h.session(t, phone)
	resp := h.responses.get("survey-1", session.ParticipantID, "q1")
	if resp == nil {
		t.Fatal("no response recorded")
	}
	if resp.Answer != "Library" || resp.FollowUp != nil || resp.Voice != nil {
		t.Errorf("response = %+v", resp)
	}

	if session.Stage != model.StageSurvey || session.QuestionIndex != 1 {
		t.Errorf("session did not advance: %+v", session)
	}
	if session.Pending.Answer != nil || session.Pending.Voice != nil {
		t.Errorf("pending state not cleared: %+v", session.Pending)
	}

	reply := h.messenger.last(t)
	if !strings.Contains(reply, "1 of 2 questions done") || !strings.Contains(reply, "Question 2 of 2") {
		t.Errorf("reply = %q", reply)
	}
}

func TestEngineFollowUpTextCommitsComment(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)
	h.text(t, phone, "1")

	h.text(t, phone, "It is close to my house")

	session := h.session(t, phone)
	resp := h.responses.get("survey-1", session.ParticipantID, "q1")
	if resp == nil {
		t.Fatal("no response recorded")
	}
	if resp.FollowUp == nil || *resp.FollowUp != "It is close to my house" {
		t.Errorf("FollowUp = %v", resp.FollowUp)
	}
}

func TestEngineFollowUpEmptyTextReprompts(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)
	h.text(t, phone, "1")

	h.text(t, phone, "   ")
	if got := h.messenger.last(t); got != stageHelpText(model.StageFollowUp) {
		t.Errorf("reply = %q", got)
	}
	if session := h.session(t, phone); session.Stage != model.StageFollowUp {
		t.Errorf("stage = %s", session.Stage)
	}
}

func TestEngineVoiceNoteConfirmYes(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.voice.resolution = &VoiceResolution{
		Transcript:      "la biblioteca está cerca",
		Translated:      "the library is close",
		Summary:         "The library is nearby",
		Language:        "es",
		DurationSeconds: 8,
	}
	h.join(t)
	h.text(t, phone, "2")

	h.audio(t, phone)
	reply := h.messenger.last(t)
	if !strings.Contains(reply, "la biblioteca está cerca") || !strings.Contains(reply, "The library is nearby") {
		t.Errorf("confirmation prompt = %q", reply)
	}
	if session := h.session(t, phone); session.Stage != model.StageVoiceConfirm {
		t.Fatalf("stage = %s, want %s", session.Stage, model.StageVoiceConfirm)
	}

	h.text(t, phone, "yes")

	session := h.session(t, phone)
	resp := h.responses.get("survey-1", session.ParticipantID, "q1")
	if resp == nil {
		t.Fatal("no response recorded")
	}
	if resp.FollowUp == nil || *resp.FollowUp != "The library is nearby" {
		t.Errorf("FollowUp = %v", resp.FollowUp)
	}
	if resp.Voice == nil || !resp.Voice.Transcribed || resp.Voice.Language != "es" {
		t.Errorf("Voice = %+v", resp.Voice)
	}
	if session.Stage != model.StageSurvey || session.QuestionIndex != 1 {
		t.Errorf("session did not advance: %+v", session)
	}
}

func TestEngineVoiceNoteConfirmNoRetries(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.voice.resolution = &VoiceResolution{Transcript: "mumble", Summary: "mumble"}
	h.join(t)
	h.text(t, phone, "2")
	h.audio(t, phone)

	h.text(t, phone, "no")

	session := h.session(t, phone)
	if session.Stage != model.StageFollowUp {
		t.Errorf("stage = %s, want %s", session.Stage, model.StageFollowUp)
	}
	if session.Pending.Voice != nil {
		t.Error("pending voice kept after rejection")
	}
	if session.Pending.Answer == nil {
		t.Error("pending answer lost on rejection")
	}
	if len(h.responses.byKey) != 0 {
		t.Error("rejected voice note committed")
	}
}

func TestEngineVoiceNoteConfirmSkip(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.voice.resolution = &VoiceResolution{Transcript: "mumble", Summary: "mumble"}
	h.join(t)
	h.text(t, phone, "2")
	h.audio(t, phone)

	h.text(t, phone, "skip")

	session := h.session(t, phone)
	resp := h.responses.get("survey-1", session.ParticipantID, "q1")
	if resp == nil {
		t.Fatal("no response recorded")
	}
	if resp.FollowUp != nil || resp.Voice != nil {
		t.Errorf("skip must commit without a comment: %+v", resp)
	}
}

func TestEngineVoiceNoteConfirmUnexpectedInput(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.voice.resolution = &VoiceResolution{Transcript: "mumble", Summary: "mumble"}
	h.join(t)
	h.text(t, phone, "2")
	h.audio(t, phone)

	h.text(t, phone, "what?")
	if got := h.messenger.last(t); got != stageHelpText(model.StageVoiceConfirm) {
		t.Errorf("reply = %q", got)
	}
	if session := h.session(t, phone); session.Stage != model.StageVoiceConfirm {
		t.Errorf("stage = %s", session.Stage)
	}
}

func TestEngineVoiceFailuresStayInFollowUp(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unavailable", ErrSpeechUnavailable, "not available"},
		{"timeout", ErrSpeechTimeout, "took too long"},
		{"rate limited", ErrSpeechRateLimited, "in a moment"},
		{"too long", ErrAudioTooLong, "too long for me"},
		{"other", errors.New("boom"), "couldn't process"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newEngineHarness(testSurvey())
			h.voice.err = tt.err
			h.join(t)
			h.text(t, phone, "2")

			h.audio(t, phone)
			reply := h.messenger.last(t)
			if !strings.Contains(reply, tt.want) {
				t.Errorf("reply = %q, want substring %q", reply, tt.want)
			}
			if session := h.session(t, phone); session.Stage != model.StageFollowUp {
				t.Errorf("stage = %s, want %s", session.Stage, model.StageFollowUp)
			}
		})
	}
}

func TestEngineOversizedVoiceNoteRejectedBeforeDownload(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.voice.maxBytes = 1024
	h.voice.resolution = &VoiceResolution{Transcript: "hi", Summary: "hi"}
	h.join(t)
	h.text(t, phone, "2")

	h.audioSized(t, phone, 4096)
	if got := h.messenger.last(t); !strings.Contains(got, "too long for me") {
		t.Errorf("reply = %q", got)
	}
	if h.messenger.dlCalls != 0 {
		t.Error("oversized audio was downloaded")
	}
	if h.voice.calls != 0 {
		t.Error("resolver called for oversized audio")
	}
	if session := h.session(t, phone); session.Stage != model.StageFollowUp {
		t.Errorf("stage = %s, want %s", session.Stage, model.StageFollowUp)
	}

	// Under the limit the note still goes through the resolver.
	h.audioSized(t, phone, 512)
	if h.messenger.dlCalls != 1 || h.voice.calls != 1 {
		t.Errorf("dlCalls = %d voice calls = %d, want 1 and 1", h.messenger.dlCalls, h.voice.calls)
	}
}

func TestEngineMediaDownloadFailureStaysInFollowUp(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.messenger.dlErr = errors.New("media gone")
	h.join(t)
	h.text(t, phone, "2")

	h.audio(t, phone)
	if got := h.messenger.last(t); !strings.Contains(got, "couldn't process") {
		t.Errorf("reply = %q", got)
	}
	if h.voice.calls != 0 {
		t.Error("resolver called after a failed download")
	}
}

func TestEngineCompletionFlow(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)
	h.text(t, phone, "1")    // q1 answer
	h.text(t, phone, "skip") // q1 follow-up skipped
	session := h.session(t, phone)
	participantID := session.ParticipantID
	participationID := session.ParticipationID

	h.text(t, phone, "4") // q2, no follow-up configured

	reply := h.messenger.last(t)
	if !strings.Contains(reply, "thank you for completing") || !strings.Contains(reply, "CS-0001") {
		t.Errorf("reply = %q", reply)
	}

	if h.sessionCache.len() != 0 {
		t.Error("session not deleted on completion")
	}

	participation, err := h.participations.GetByID(context.Background(), participationID)
	if err != nil || participation == nil {
		t.Fatalf("participation lookup: %v", err)
	}
	if !participation.Completed || participation.CompletedAt == nil {
		t.Errorf("participation not completed: %+v", participation)
	}
	if participation.DurationSeconds < 0 {
		t.Errorf("negative duration: %d", participation.DurationSeconds)
	}

	if resp := h.responses.get("survey-1", participantID, "q2"); resp == nil || resp.Answer != "4" {
		t.Errorf("rating response = %+v", resp)
	}

	types := h.broadcaster.types()
	want := []string{EventParticipantJoined, EventResponseRecorded, EventResponseRecorded, EventParticipationCompleted}
	if len(types) != len(want) {
		t.Fatalf("broadcast events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestEngineCompletionDurationSurvivesSessionReset(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)
	session := h.session(t, phone)

	// Backdate the participation start, then drop the session mid-survey.
	// The fresh session must not restart the completion clock.
	participation, err := h.participations.GetByID(context.Background(), session.ParticipationID)
	if err != nil || participation == nil {
		t.Fatalf("participation lookup: %v", err)
	}
	participation.StartedAt = time.Now().Add(-90 * time.Second)
	if err := h.sessions.Delete(context.Background(), phone, "survey-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	h.text(t, phone, "hello again") // rejoin
	h.text(t, phone, "1")
	h.text(t, phone, "skip")
	h.text(t, phone, "4")

	participation, err = h.participations.GetByID(context.Background(), session.ParticipationID)
	if err != nil || participation == nil {
		t.Fatalf("participation lookup: %v", err)
	}
	if !participation.Completed {
		t.Fatalf("participation not completed: %+v", participation)
	}
	if participation.DurationSeconds < 90 {
		t.Errorf("DurationSeconds = %d, want at least 90", participation.DurationSeconds)
	}
}

func TestEngineNoFollowUpQuestionCommitsDirectly(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)
	h.text(t, phone, "1")
	h.text(t, phone, "skip")

	// q2 has AskFollowUp=false: a valid answer must commit without an
	// elaboration step.
	h.text(t, phone, "5")
	if h.sessionCache.len() != 0 {
		t.Error("expected survey completed after the last direct-commit answer")
	}
}

func TestEnginePerQuestionFollowUpOverridesDefault(t *testing.T) {
	survey := testSurvey()
	survey.Settings.FollowUpDefault = false
	survey.Questions[0].AskFollowUp = yesPtr()

	h := newEngineHarness(survey)
	h.join(t)
	h.text(t, phone, "1")

	if session := h.session(t, phone); session.Stage != model.StageFollowUp {
		t.Errorf("stage = %s, want %s", session.Stage, model.StageFollowUp)
	}
}

func TestEnginePersistFailureResetsSession(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.responses.upsertErr = errors.New("mongo down")
	h.join(t)
	h.text(t, phone, "1")

	err := h.engine.HandleInboundMessage(context.Background(), &model.MessageEvent{From: phone, Text: "skip"})
	if err == nil {
		t.Fatal("expected error from failed persist")
	}
	if got := h.messenger.last(t); got != genericApology {
		t.Errorf("reply = %q", got)
	}
	if h.sessionCache.len() != 0 {
		t.Error("corrupt session kept after persist failure")
	}
}

func TestEngineCatalogFailureApologizes(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.catalog.err = errors.New("redis down")

	err := h.engine.HandleInboundMessage(context.Background(), &model.MessageEvent{From: phone, Text: "hi"})
	if err == nil {
		t.Fatal("expected error from catalog failure")
	}
	if got := h.messenger.last(t); got != genericApology {
		t.Errorf("reply = %q", got)
	}
}

func TestEngineSingleCuratedQuestionEndToEnd(t *testing.T) {
	survey := &model.Survey{
		ID:       "survey-agree",
		Title:    "One Question",
		IsActive: true,
		Settings: model.SurveySettings{FollowUpDefault: true},
		Questions: []model.Question{
			{ID: "q1", Seq: 1, Type: model.QuestionTypeCurated, Prompt: "Do you agree?",
				Options: []string{"Agree", "Disagree"}},
		},
	}
	h := newEngineHarness(survey)

	h.text(t, phone, "hi")
	reply := h.messenger.last(t)
	if !strings.Contains(reply, "1. Agree") || !strings.Contains(reply, "2. Disagree") {
		t.Errorf("first question = %q", reply)
	}

	h.text(t, phone, "1")
	reply = h.messenger.last(t)
	if !strings.Contains(reply, "What convinced you?") {
		t.Errorf("expected agree-flavored follow-up, got %q", reply)
	}
	session := h.session(t, phone)
	if session.Stage != model.StageFollowUp {
		t.Fatalf("stage = %s", session.Stage)
	}
	participantID := session.ParticipantID

	h.text(t, phone, "skip")
	resp := h.responses.get("survey-agree", participantID, "q1")
	if resp == nil || resp.Answer != "Agree" || resp.FollowUp != nil {
		t.Errorf("response = %+v", resp)
	}
	if h.sessionCache.len() != 0 {
		t.Error("session not removed after completion")
	}
	if !strings.Contains(h.messenger.last(t), "thank you for completing") {
		t.Errorf("completion reply = %q", h.messenger.last(t))
	}
}

func TestEngineReplayedCommitOverwrites(t *testing.T) {
	h := newEngineHarness(testSurvey())
	h.join(t)
	h.text(t, phone, "1")

	session := h.session(t, phone)
	participantID := session.ParticipantID

	// Simulate a second commit for the same question: the upsert must
	// overwrite, not duplicate.
	first := &model.Response{SurveyID: "survey-1", ParticipantID: participantID, QuestionID: "q1", Answer: "Clinic"}
	second := &model.Response{SurveyID: "survey-1", ParticipantID: participantID, QuestionID: "q1", Answer: "Library"}
	if err := h.responses.Upsert(context.Background(), first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := h.responses.Upsert(context.Background(), second); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	count, _ := h.responses.CountBySurvey(context.Background(), "survey-1")
	if count != 1 {
		t.Fatalf("CountBySurvey = %d, want 1", count)
	}
	if resp := h.responses.get("survey-1", participantID, "q1"); resp.Answer != "Library" {
		t.Errorf("Answer = %q, want last write", resp.Answer)
	}
}
