package model

import "time"

// AttachmentKind categorizes an inbound message attachment
type AttachmentKind string

const (
	AttachmentNone  AttachmentKind = ""
	AttachmentAudio AttachmentKind = "audio"
	AttachmentImage AttachmentKind = "image"
	AttachmentOther AttachmentKind = "other"
)

// MessageEvent is one inbound message from the chat transport
type MessageEvent struct {
	MessageID      string         `json:"messageId"`
	From           string         `json:"from"` // respondent phone number
	Text           string         `json:"text"`
	AttachmentKind AttachmentKind `json:"attachmentKind"`
	AttachmentID   string         `json:"attachmentId"` // transport media handle
	AttachmentSize int64          `json:"attachmentSize"`
	ReceivedAt     time.Time      `json:"receivedAt"`
}

// HasAudio reports whether the event carries a voice note
func (e *MessageEvent) HasAudio() bool {
	return e.AttachmentKind == AttachmentAudio && e.AttachmentID != ""
}
