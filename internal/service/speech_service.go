package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatsurvey/internal/config"
)

// Typed speech failures. The conversation engine maps each to a distinct
// respondent-facing apology.
var (
	ErrSpeechUnavailable = errors.New("speech service not configured")
	ErrSpeechTimeout     = errors.New("speech service timed out")
	ErrSpeechRateLimited = errors.New("speech service rate limited")
)

// Transcription is the result of transcribing a voice note
type Transcription struct {
	Text            string  `json:"text"`
	Language        string  `json:"language"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// SpeechService calls the generative speech API for transcription,
// translation, and summarization. Each call is independently disabled when
// no API key is configured.
type SpeechService struct {
	config *config.SpeechConfig
	client *http.Client
}

// NewSpeechService creates a new speech service
func NewSpeechService(cfg *config.SpeechConfig) *SpeechService {
	return &SpeechService{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
	}
}

// Transcribe turns a voice note into text plus the detected language
func (s *SpeechService) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcription, error) {
	if !s.config.IsEnabled() {
		return nil, ErrSpeechUnavailable
	}

	prompt := `Transcribe this audio. Respond with JSON: {"text": "<transcript>", "language": "<ISO 639-1 code>", "durationSeconds": <number>}`
	parts := []map[string]interface{}{
		{"text": prompt},
		{"inline_data": map[string]string{
			"mime_type": mimeType,
			"data":      base64.StdEncoding.EncodeToString(audio),
		}},
	}

	response, err := s.callModel(ctx, s.config.Models.Transcribe, parts)
	if err != nil {
		return nil, err
	}

	var result Transcription
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("transcription response parse: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, fmt.Errorf("empty transcript")
	}
	result.Language = strings.ToLower(strings.TrimSpace(result.Language))
	return &result, nil
}

// Translate renders the text into the configured target language
func (s *SpeechService) Translate(ctx context.Context, text, fromLanguage string) (string, error) {
	if !s.config.IsEnabled() {
		return "", ErrSpeechUnavailable
	}

	prompt := fmt.Sprintf(
		`Translate the following text from %q to %q. Respond with JSON: {"text": "<translation>"}`+"\n\n%s",
		fromLanguage, s.config.TargetLanguage, text,
	)

	return s.callForText(ctx, s.config.Models.Translate, prompt)
}

// Summarize condenses a spoken answer relative to the question it answers
func (s *SpeechService) Summarize(ctx context.Context, text, questionPrompt string) (string, error) {
	if !s.config.IsEnabled() {
		return "", ErrSpeechUnavailable
	}

	prompt := fmt.Sprintf(
		`The survey question was: %q`+"\n"+
			`The respondent answered: %q`+"\n"+
			`Summarize the answer in one or two sentences, keeping the respondent's meaning. Respond with JSON: {"text": "<summary>"}`,
		questionPrompt, text,
	)

	return s.callForText(ctx, s.config.Models.Summarize, prompt)
}

func (s *SpeechService) callForText(ctx context.Context, modelName, prompt string) (string, error) {
	parts := []map[string]interface{}{{"text": prompt}}
	response, err := s.callModel(ctx, modelName, parts)
	if err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return "", fmt.Errorf("speech response parse: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", fmt.Errorf("empty speech response")
	}
	return result.Text, nil
}

func (s *SpeechService) callModel(ctx context.Context, modelName string, parts []map[string]interface{}) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": parts},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s?key=%s", s.config.ModelEndpoint(modelName), s.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrSpeechTimeout
		}
		return "", fmt.Errorf("speech API call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrSpeechRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech API status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var modelResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &modelResp); err != nil {
		return "", err
	}

	if len(modelResp.Candidates) > 0 && len(modelResp.Candidates[0].Content.Parts) > 0 {
		return modelResp.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("empty response from speech model")
}
