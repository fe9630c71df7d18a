package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adforge/api/internal/config"
	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/retry"
)

// SpeechClient synthesizes voiceover lines through the TTS provider
type SpeechClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// SynthesizeRequest represents the request for speech synthesis
type SynthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// SynthesizeResponse represents the response from speech synthesis
type SynthesizeResponse struct {
	AudioURL    string  `json:"audio_url"`
	DurationSec float64 `json:"duration_sec"`
}

// NewSpeechClient creates a new speech synthesis client
func NewSpeechClient(cfg *config.SpeechConfig) *SpeechClient {
	return &SpeechClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Synthesize renders one voiceover line and returns the audio URL and its
// duration
func (c *SpeechClient) Synthesize(ctx context.Context, text string, voice model.Voice) (string, float64, error) {
	reqBody := SynthesizeRequest{
		Text:  text,
		Voice: string(voice),
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/text-to-speech", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, &retry.HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result SynthesizeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return result.AudioURL, result.DurationSec, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SpeechClient) IsConfigured() bool {
	return c.apiKey != ""
}
