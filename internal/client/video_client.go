package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/adforge/api/internal/config"
	"github.com/adforge/api/internal/pipeline"
	"github.com/adforge/api/internal/retry"
)

// VideoClient generates motion clips through the video model API. Like image
// generation the upstream is task based: submit, then poll until the clip is
// rendered.
type VideoClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	maxWait      time.Duration
}

// GenerateClipRequest represents the request for clip generation
type GenerateClipRequest struct {
	Model           string   `json:"model"`
	Prompt          string   `json:"prompt"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	DurationSec     float64  `json:"duration_sec"`
}

// ExtendClipRequest represents the request for clip extension
type ExtendClipRequest struct {
	Model   string `json:"model"`
	ClipURL string `json:"clip_url"`
	Prompt  string `json:"prompt"`
}

// GenerateClipResponse represents the response from task submission
type GenerateClipResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ClipResult represents a completed clip generation task
type ClipResult struct {
	TaskID       string  `json:"task_id"`
	Status       string  `json:"status"`
	ClipURL      string  `json:"clip_url,omitempty"`
	LastFrameURL string  `json:"last_frame_url,omitempty"`
	DurationSec  float64 `json:"duration_sec,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// NewVideoClient creates a new video model client
func NewVideoClient(cfg *config.VideoConfig) *VideoClient {
	return &VideoClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		pollInterval: 5 * time.Second,
		maxWait:      10 * time.Minute,
	}
}

// GenerateClip submits a clip task and blocks until it resolves
func (c *VideoClient) GenerateClip(ctx context.Context, prompt string, referenceImages []string, durationSec float64) (*pipeline.Clip, error) {
	req := &GenerateClipRequest{
		Model:           c.model,
		Prompt:          prompt,
		ReferenceImages: referenceImages,
		DurationSec:     durationSec,
	}

	var submitted GenerateClipResponse
	if err := c.post(ctx, "/v1/videos/generate", req, &submitted); err != nil {
		return nil, err
	}

	return c.pollClipStatus(ctx, submitted.TaskID)
}

// ExtendClip submits an extension task continuing an existing clip
func (c *VideoClient) ExtendClip(ctx context.Context, clipURL, prompt string) (*pipeline.Clip, error) {
	req := &ExtendClipRequest{
		Model:   c.model,
		ClipURL: clipURL,
		Prompt:  prompt,
	}

	var submitted GenerateClipResponse
	if err := c.post(ctx, "/v1/videos/extend", req, &submitted); err != nil {
		return nil, err
	}

	return c.pollClipStatus(ctx, submitted.TaskID)
}

// GetClipStatus retrieves the status of a clip generation task
func (c *VideoClient) GetClipStatus(ctx context.Context, taskID string) (*ClipResult, error) {
	endpoint := fmt.Sprintf("/v1/videos/status/%s", taskID)
	var result ClipResult
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// pollClipStatus polls for clip generation completion
func (c *VideoClient) pollClipStatus(ctx context.Context, taskID string) (*pipeline.Clip, error) {
	deadline := time.Now().Add(c.maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		result, err := c.GetClipStatus(ctx, taskID)
		if err != nil {
			log.Printf("[Video API] Poll #%d (task=%s) — error: %v", attempt, taskID, err)
			return nil, err
		}

		log.Printf("[Video API] Poll #%d (task=%s) — status: %s", attempt, taskID, result.Status)

		switch result.Status {
		case "completed", "success":
			return &pipeline.Clip{
				URL:          result.ClipURL,
				LastFrameURL: result.LastFrameURL,
				DurationSec:  result.DurationSec,
			}, nil
		case "failed", "error":
			if result.Error != "" {
				return nil, fmt.Errorf("clip generation failed: %s", result.Error)
			}
			return nil, fmt.Errorf("clip generation failed: %s", result.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
			continue
		}
	}

	return nil, fmt.Errorf("clip generation timed out after %v", c.maxWait)
}

// post sends a POST request with JSON body
func (c *VideoClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *VideoClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *VideoClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Video API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &retry.HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *VideoClient) IsConfigured() bool {
	return c.apiKey != ""
}
