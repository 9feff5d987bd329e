package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chatsurvey/internal/model"
)

func TestVerifyChallenge(t *testing.T) {
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "secret-token")
	h := NewWebhookHandler(NewDispatcher(nil))

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid challenge echoed",
			query:      "hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345",
			wantStatus: http.StatusOK,
			wantBody:   "12345",
		},
		{
			name:       "wrong token rejected",
			query:      "hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "wrong mode rejected",
			query:      "hub.mode=unsubscribe&hub.verify_token=secret-token&hub.challenge=12345",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/webhook/whatsapp?"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.Verify(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestToEvent(t *testing.T) {
	tests := []struct {
		name     string
		msg      inboundMessage
		wantText string
		wantKind model.AttachmentKind
		wantID   string
	}{
		{
			name: "text message",
			msg: inboundMessage{
				ID: "m1", From: "+1555", Type: "text",
				Text: &struct {
					Body string `json:"body"`
				}{Body: "hello"},
			},
			wantText: "hello",
			wantKind: model.AttachmentNone,
		},
		{
			name: "audio message",
			msg: inboundMessage{
				ID: "m2", From: "+1555", Type: "audio",
				Audio: &struct {
					ID       string `json:"id"`
					MimeType string `json:"mime_type"`
					FileSize int64  `json:"file_size"`
				}{ID: "media-9", MimeType: "audio/ogg", FileSize: 2048},
			},
			wantKind: model.AttachmentAudio,
			wantID:   "media-9",
		},
		{
			name: "image message",
			msg: inboundMessage{
				ID: "m3", From: "+1555", Type: "image",
				Image: &struct {
					ID string `json:"id"`
				}{ID: "img-1"},
			},
			wantKind: model.AttachmentImage,
			wantID:   "img-1",
		},
		{
			name:     "unsupported type",
			msg:      inboundMessage{ID: "m4", From: "+1555", Type: "sticker"},
			wantKind: model.AttachmentOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := toEvent(tt.msg)
			if ev.MessageID != tt.msg.ID || ev.From != tt.msg.From {
				t.Errorf("identity = %s/%s", ev.MessageID, ev.From)
			}
			if ev.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", ev.Text, tt.wantText)
			}
			if ev.AttachmentKind != tt.wantKind {
				t.Errorf("AttachmentKind = %q, want %q", ev.AttachmentKind, tt.wantKind)
			}
			if ev.AttachmentID != tt.wantID {
				t.Errorf("AttachmentID = %q, want %q", ev.AttachmentID, tt.wantID)
			}
		})
	}
}

const webhookBody = `{
  "entry": [{
    "changes": [{
      "value": {
        "messages": [
          {"id": "m1", "from": "+15550001", "type": "text", "text": {"body": "first"}},
          {"id": "m2", "from": "+15550001", "type": "text", "text": {"body": "second"}},
          {"id": "m3", "from": "+15550002", "type": "text", "text": {"body": "other sender"}}
        ]
      }
    }]
  }]
}`

func TestReceiveDispatchesInOrderPerSender(t *testing.T) {
	var mu sync.Mutex
	bySender := make(map[string][]string)
	seen := make(chan struct{}, 8)

	dispatcher := NewDispatcher(func(ctx context.Context, ev *model.MessageEvent) error {
		mu.Lock()
		bySender[ev.From] = append(bySender[ev.From], ev.Text)
		mu.Unlock()
		seen <- struct{}{}
		return nil
	})
	h := NewWebhookHandler(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhook/whatsapp", strings.NewReader(webhookBody))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatched events")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	got := bySender["+15550001"]
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("per-sender order = %v", got)
	}
	if len(bySender["+15550002"]) != 1 {
		t.Errorf("other sender events = %v", bySender["+15550002"])
	}
}

func TestReceiveBadPayload(t *testing.T) {
	h := NewWebhookHandler(NewDispatcher(nil))

	req := httptest.NewRequest(http.MethodPost, "/v1/webhook/whatsapp", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
