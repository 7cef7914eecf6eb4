// Package speech provides the audio-synthesis collaborator: a small HTTP
// client for an ElevenLabs-compatible text-to-speech endpoint.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Synthesis defaults.
const (
	DefaultBaseURL    = "https://api.elevenlabs.io"
	DefaultVoiceID    = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID    = "eleven_multilingual_v2"
	DefaultStability  = 0.6
	DefaultSimilarity = 0.75
	DefaultTimeout    = 60 * time.Second
	// maxErrorBody bounds how much of a failed response body is kept in the error.
	maxErrorBody = 512
)

var (
	// ErrUnavailable is returned when no credentials are configured.
	ErrUnavailable = errors.New("speech synthesis unavailable")
	// ErrEmptyText is returned when asked to synthesize blank text.
	ErrEmptyText = errors.New("no text to synthesize")
	// ErrEmptyAudio is returned when the service answers 200 with no audio bytes.
	ErrEmptyAudio = errors.New("speech service returned no audio")
)

// Option configures the ElevenLabs client.
type Option func(*ElevenLabsClient)

// WithVoice sets the voice identifier.
func WithVoice(voiceID string) Option {
	return func(c *ElevenLabsClient) {
		if voiceID != "" {
			c.voiceID = voiceID
		}
	}
}

// WithModelID sets the synthesis model.
func WithModelID(modelID string) Option {
	return func(c *ElevenLabsClient) {
		if modelID != "" {
			c.modelID = modelID
		}
	}
}

// WithStability sets the voice stability parameter (0..1).
func WithStability(v float64) Option {
	return func(c *ElevenLabsClient) { c.stability = v }
}

// WithSimilarity sets the voice similarity boost parameter (0..1).
func WithSimilarity(v float64) Option {
	return func(c *ElevenLabsClient) { c.similarity = v }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *ElevenLabsClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPTimeout sets the HTTP client timeout for synthesis requests.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *ElevenLabsClient) { c.httpClient.Timeout = d }
}

// ElevenLabsClient synthesizes narration audio over HTTP.
type ElevenLabsClient struct {
	apiKey     string
	baseURL    string
	voiceID    string
	modelID    string
	stability  float64
	similarity float64
	httpClient *http.Client
}

// NewElevenLabsClient creates a client. An empty apiKey yields a client whose
// Synthesize always returns ErrUnavailable.
func NewElevenLabsClient(apiKey string, opts ...Option) *ElevenLabsClient {
	c := &ElevenLabsClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		voiceID:    DefaultVoiceID,
		modelID:    DefaultModelID,
		stability:  DefaultStability,
		similarity: DefaultSimilarity,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Voice returns the configured voice identifier.
func (c *ElevenLabsClient) Voice() string { return c.voiceID }

// Available reports whether credentials are configured.
func (c *ElevenLabsClient) Available() bool { return c.apiKey != "" }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize converts text to encoded audio bytes (MPEG by default).
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       c.modelID,
		VoiceSettings: voiceSettings{Stability: c.stability, SimilarityBoost: c.similarity},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	slog.Debug("speech.ElevenLabsClient: synthesizing", "chars", len(text), "voice", c.voiceID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("tts error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	slog.Debug("speech.ElevenLabsClient: got audio", "bytes", len(audio))
	return audio, nil
}
