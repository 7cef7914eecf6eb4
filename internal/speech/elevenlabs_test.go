package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSynthesize_Success(t *testing.T) {
	var got synthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	c := NewElevenLabsClient("key", WithBaseURL(srv.URL+"/"), WithVoice("voice-1"), WithStability(0.3), WithSimilarity(0.9))
	audio, err := c.Synthesize(context.Background(), "Breathe in slowly.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "ID3audio" {
		t.Errorf("unexpected audio %q", audio)
	}
	if got.Text != "Breathe in slowly." || got.VoiceSettings.Stability != 0.3 || got.VoiceSettings.SimilarityBoost != 0.9 {
		t.Errorf("unexpected request body %+v", got)
	}
	if got.ModelID != DefaultModelID {
		t.Errorf("expected default model id, got %s", got.ModelID)
	}
}

func TestSynthesize_NoKey(t *testing.T) {
	c := NewElevenLabsClient("")
	if c.Available() {
		t.Fatal("client without key should not be available")
	}
	if _, err := c.Synthesize(context.Background(), "hi"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	c := NewElevenLabsClient("key")
	if _, err := c.Synthesize(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestSynthesize_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewElevenLabsClient("key", WithBaseURL(srv.URL))
	_, err := c.Synthesize(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("expected status error with body, got %v", err)
	}
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewElevenLabsClient("key", WithBaseURL(srv.URL))
	if _, err := c.Synthesize(context.Background(), "hello"); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
}
