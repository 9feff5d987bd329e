package service

import (
	"context"

	"chatsurvey/internal/model"
)

// Messenger is the outbound chat transport capability consumed by the engine
type Messenger interface {
	// SendText delivers one text message to a respondent
	SendText(ctx context.Context, to, text string) error

	// DownloadMedia fetches an attachment by its transport handle, returning
	// the bytes and MIME type
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// VoiceResolver turns a voice note into a candidate answer for confirmation
type VoiceResolver interface {
	Resolve(ctx context.Context, audio []byte, mimeType string, question *model.Question) (*VoiceResolution, error)

	// MaxAudioBytes is the size ceiling for voice notes; zero means no
	// limit. The engine checks the transport-reported size against it so
	// oversized audio is rejected before it is downloaded.
	MaxAudioBytes() int64
}

// Broadcaster pushes events to connected dashboards (avoids import cycle
// with the WebSocket transport)
type Broadcaster interface {
	BroadcastToSurvey(surveyID string, msgType string, payload interface{})
}

// Publisher emits fire-and-forget events to the reporting surface
type Publisher interface {
	Publish(eventType string, payload interface{}) error
}
