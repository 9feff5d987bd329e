package chat

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"chatsurvey/internal/model"
)

// WebhookHandler receives WhatsApp Cloud API webhook callbacks and feeds
// inbound messages into the dispatcher. It acknowledges immediately; the
// conversation runs on the dispatcher's workers.
type WebhookHandler struct {
	dispatcher  *Dispatcher
	verifyToken string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(dispatcher *Dispatcher) *WebhookHandler {
	verifyToken := os.Getenv("WHATSAPP_VERIFY_TOKEN")
	if verifyToken == "" {
		verifyToken = "chatsurvey-verify"
	}
	return &WebhookHandler{
		dispatcher:  dispatcher,
		verifyToken: verifyToken,
	}
}

// Verify handles the webhook subscription GET challenge
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

// webhookPayload mirrors the Cloud API webhook envelope, trimmed to the
// fields the engine consumes
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Audio *struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
		FileSize int64  `json:"file_size"`
	} `json:"audio"`
	Image *struct {
		ID string `json:"id"`
	} `json:"image"`
}

// Receive handles inbound webhook POSTs
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("[Webhook] payload decode failed: %v", err)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.dispatcher.Enqueue(toEvent(msg))
			}
		}
	}

	// Always 200 so the transport does not retry cascades of old events
	w.WriteHeader(http.StatusOK)
}

func toEvent(msg inboundMessage) *model.MessageEvent {
	ev := &model.MessageEvent{
		MessageID:  msg.ID,
		From:       msg.From,
		ReceivedAt: time.Now(),
	}

	if msg.Text != nil {
		ev.Text = msg.Text.Body
	}

	switch {
	case msg.Audio != nil:
		ev.AttachmentKind = model.AttachmentAudio
		ev.AttachmentID = msg.Audio.ID
		ev.AttachmentSize = msg.Audio.FileSize
	case msg.Image != nil:
		ev.AttachmentKind = model.AttachmentImage
		ev.AttachmentID = msg.Image.ID
	case msg.Type != "text" && msg.Type != "":
		ev.AttachmentKind = model.AttachmentOther
	}

	return ev
}
