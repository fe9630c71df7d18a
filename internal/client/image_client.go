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
	"github.com/adforge/api/internal/retry"
)

// ImageClient generates storyboard stills through the image model API.
// Generation is asynchronous upstream: submit a task, then poll.
type ImageClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	maxWait      time.Duration
}

// GenerateImageRequest represents the request for image generation
type GenerateImageRequest struct {
	Model           string   `json:"model"`
	Prompt          string   `json:"prompt"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
}

// GenerateImageResponse represents the response from task submission
type GenerateImageResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ImageResult represents a completed image generation task
type ImageResult struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewImageClient creates a new image model client
func NewImageClient(cfg *config.ImageConfig) *ImageClient {
	return &ImageClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		pollInterval: 3 * time.Second,
		maxWait:      5 * time.Minute,
	}
}

// GenerateImage submits an image task and blocks until it resolves
func (c *ImageClient) GenerateImage(ctx context.Context, prompt string, referenceImages []string) (string, error) {
	req := &GenerateImageRequest{
		Model:           c.model,
		Prompt:          prompt,
		ReferenceImages: referenceImages,
	}

	var submitted GenerateImageResponse
	if err := c.post(ctx, "/v1/images/generate", req, &submitted); err != nil {
		return "", err
	}

	result, err := c.pollImageStatus(ctx, submitted.TaskID)
	if err != nil {
		return "", err
	}
	return result.ImageURL, nil
}

// GetImageStatus retrieves the status of an image generation task
func (c *ImageClient) GetImageStatus(ctx context.Context, taskID string) (*ImageResult, error) {
	endpoint := fmt.Sprintf("/v1/images/status/%s", taskID)
	var result ImageResult
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// pollImageStatus polls for image generation completion
func (c *ImageClient) pollImageStatus(ctx context.Context, taskID string) (*ImageResult, error) {
	deadline := time.Now().Add(c.maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		result, err := c.GetImageStatus(ctx, taskID)
		if err != nil {
			log.Printf("[Image API] Poll #%d (task=%s) — error: %v", attempt, taskID, err)
			return nil, err
		}

		log.Printf("[Image API] Poll #%d (task=%s) — status: %s", attempt, taskID, result.Status)

		switch result.Status {
		case "completed", "success":
			return result, nil
		case "failed", "error":
			if result.Error != "" {
				return nil, fmt.Errorf("image generation failed: %s", result.Error)
			}
			return nil, fmt.Errorf("image generation failed: %s", result.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
			continue
		}
	}

	return nil, fmt.Errorf("image generation timed out after %v", c.maxWait)
}

// post sends a POST request with JSON body
func (c *ImageClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
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
func (c *ImageClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *ImageClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Image API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
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
func (c *ImageClient) IsConfigured() bool {
	return c.apiKey != ""
}
