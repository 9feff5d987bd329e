package service

import (
	"context"
	"errors"
	"log"
	"time"

	"chatsurvey/internal/config"
	"chatsurvey/internal/model"
)

// ErrAudioTooLong is returned for voice notes above the configured size or
// duration limit, before the speech API is called.
var ErrAudioTooLong = errors.New("audio exceeds maximum length")

// SpeechClient is the slice of the speech service the voice resolver needs
type SpeechClient interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcription, error)
	Translate(ctx context.Context, text, fromLanguage string) (string, error)
	Summarize(ctx context.Context, text, questionPrompt string) (string, error)
}

// VoiceResolution is a candidate voice-derived answer with its provenance
type VoiceResolution struct {
	Transcript      string
	Translated      string
	Summary         string
	Language        string
	DurationSeconds float64
}

// VoiceService orchestrates transcription, translation, and summarization of
// a spoken answer. Only transcription failures abort the pipeline; the later
// stages fall back to the best text available so far.
type VoiceService struct {
	speech SpeechClient
	config *config.SpeechConfig
}

// NewVoiceService creates a new voice service
func NewVoiceService(speech SpeechClient, cfg *config.SpeechConfig) *VoiceService {
	return &VoiceService{
		speech: speech,
		config: cfg,
	}
}

// MaxAudioBytes returns the configured voice note size ceiling
func (s *VoiceService) MaxAudioBytes() int64 {
	return s.config.MaxAudioBytes
}

// Resolve turns a voice note into a candidate answer for the question. The
// caller presents the result to the respondent for confirmation; nothing
// here is committed.
func (s *VoiceService) Resolve(ctx context.Context, audio []byte, mimeType string, question *model.Question) (*VoiceResolution, error) {
	if int64(len(audio)) > s.config.MaxAudioBytes {
		return nil, ErrAudioTooLong
	}

	callCtx, cancel := s.callContext(ctx)
	transcription, err := s.speech.Transcribe(callCtx, audio, mimeType)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrSpeechTimeout
		}
		return nil, err
	}
	if s.config.MaxAudioSeconds > 0 && transcription.DurationSeconds > float64(s.config.MaxAudioSeconds) {
		return nil, ErrAudioTooLong
	}

	resolution := &VoiceResolution{
		Transcript:      transcription.Text,
		Translated:      transcription.Text,
		Language:        transcription.Language,
		DurationSeconds: transcription.DurationSeconds,
	}

	if transcription.Language != "" && transcription.Language != s.config.TargetLanguage {
		callCtx, cancel := s.callContext(ctx)
		translated, err := s.speech.Translate(callCtx, transcription.Text, transcription.Language)
		cancel()
		if err != nil {
			log.Printf("[Voice] translation failed, keeping original transcript: %v", err)
		} else {
			resolution.Translated = translated
		}
	}

	resolution.Summary = resolution.Translated
	callCtx, cancel = s.callContext(ctx)
	summary, err := s.speech.Summarize(callCtx, resolution.Translated, question.Prompt)
	cancel()
	if err != nil {
		log.Printf("[Voice] summarization failed, keeping translated transcript: %v", err)
	} else {
		resolution.Summary = summary
	}

	return resolution, nil
}

func (s *VoiceService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(s.config.TimeoutMS)*time.Millisecond)
}
