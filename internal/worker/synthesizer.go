package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Synthesizer turns page text into WAV audio. Implementations are black
// boxes; the worker only requires that the returned bytes parse as PCM WAV.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("empty text")

const defaultSynthTimeout = 90 * time.Second

// HTTPSynthesizer speaks to a standalone TTS engine over HTTP: POST
// /v1/generate/speech with a JSON body, audio/wav back.
type HTTPSynthesizer struct {
	baseURL     string
	language    string
	temperature float64
	client      *http.Client
}

// NewHTTPSynthesizer creates a synthesizer for the engine at baseURL
// (scheme, host, and port, e.g. "http://localhost:8000").
func NewHTTPSynthesizer(baseURL, language string, temperature float64, timeout time.Duration) *HTTPSynthesizer {
	if timeout <= 0 {
		timeout = defaultSynthTimeout
	}
	if language == "" {
		language = "en"
	}
	return &HTTPSynthesizer{
		baseURL:     baseURL,
		language:    language,
		temperature: temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

type synthRequest struct {
	Text        string  `json:"text"`
	Language    string  `json:"language"`
	Temperature float64 `json:"temperature,omitempty"`
}

type synthError struct {
	Detail string `json:"detail"`
}

// Synthesize requests speech for text and returns the WAV bytes.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(synthRequest{Text: text, Language: s.language, Temperature: s.temperature})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/generate/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request to %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var engineErr synthError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&engineErr); decodeErr == nil && engineErr.Detail != "" {
			return nil, fmt.Errorf("synthesis engine %s: %s", resp.Status, engineErr.Detail)
		}
		return nil, fmt.Errorf("synthesis engine returned %s", resp.Status)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("synthesis engine returned empty audio")
	}
	return audio, nil
}

// HealthCheck verifies the engine is up before a worker starts consuming.
func (s *HTTPSynthesizer) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("build health check request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("synthesis engine health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("synthesis engine unhealthy: %s", resp.Status)
	}
	return nil
}
