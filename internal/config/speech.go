package config

import (
	"os"
	"strconv"
)

// SpeechModels defines which models to use for each speech task
type SpeechModels struct {
	// Transcribe turns a voice note into text plus detected language
	Transcribe string `json:"transcribe"`

	// Translate renders a transcript into the target language
	Translate string `json:"translate"`

	// Summarize condenses a spoken answer relative to the question prompt
	Summarize string `json:"summarize"`
}

// SpeechConfig holds speech service configuration
type SpeechConfig struct {
	APIKey    string       `json:"-"` // never serialize
	BaseURL   string       `json:"baseUrl"`
	Models    SpeechModels `json:"models"`
	TimeoutMS int          `json:"timeoutMs"`

	// TargetLanguage is the language answers are normalized to (ISO 639-1)
	TargetLanguage string `json:"targetLanguage"`

	// Voice notes above either limit are rejected before the API is called
	MaxAudioBytes   int64 `json:"maxAudioBytes"`
	MaxAudioSeconds int   `json:"maxAudioSeconds"`
}

// DefaultSpeechConfig returns the default speech configuration
func DefaultSpeechConfig() *SpeechConfig {
	return &SpeechConfig{
		APIKey:  os.Getenv("SPEECH_API_KEY"),
		BaseURL: getEnvOrDefault("SPEECH_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models"),
		Models: SpeechModels{
			Transcribe: getEnvOrDefault("SPEECH_MODEL_TRANSCRIBE", "gemini-2.0-flash"),
			Translate:  getEnvOrDefault("SPEECH_MODEL_TRANSLATE", "gemini-2.0-flash"),
			Summarize:  getEnvOrDefault("SPEECH_MODEL_SUMMARIZE", "gemini-2.0-flash"),
		},
		TimeoutMS:       getEnvIntOrDefault("SPEECH_TIMEOUT_MS", 15000),
		TargetLanguage:  getEnvOrDefault("SPEECH_TARGET_LANGUAGE", "en"),
		MaxAudioBytes:   int64(getEnvIntOrDefault("SPEECH_MAX_AUDIO_BYTES", 8*1024*1024)),
		MaxAudioSeconds: getEnvIntOrDefault("SPEECH_MAX_AUDIO_SECONDS", 120),
	}
}

// IsEnabled returns true if the speech API is configured
func (c *SpeechConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// ModelEndpoint returns the full endpoint for a given model
func (c *SpeechConfig) ModelEndpoint(model string) string {
	return c.BaseURL + "/" + model + ":generateContent"
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
