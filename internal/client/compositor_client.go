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
	"github.com/adforge/api/internal/pipeline"
	"github.com/adforge/api/internal/retry"
)

// CompositorClient talks to the rendering microservice that concatenates
// clips, applies transitions and muxes the voiceover tracks.
type CompositorClient struct {
	httpClient *http.Client
	baseURL    string
}

// CompileResponse represents the response from final compilation
type CompileResponse struct {
	OutputURL    string  `json:"output_url"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	DurationSec  float64 `json:"duration_sec"`
}

// ZipRequest represents the request for creating a ZIP archive
type ZipRequest struct {
	Files     []ZipFileEntry `json:"files"`
	OutputKey string         `json:"output_key"`
}

// ZipFileEntry represents a file to include in the ZIP
type ZipFileEntry struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// ZipResponse represents the response from ZIP creation
type ZipResponse struct {
	OutputURL string `json:"output_url"`
	Size      int64  `json:"size"`
	FileCount int    `json:"file_count"`
}

// NewCompositorClient creates a new compositor service client
func NewCompositorClient(cfg *config.CompositorConfig) *CompositorClient {
	return &CompositorClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Compile renders the final ad video from clips and audio tracks
func (c *CompositorClient) Compile(ctx context.Context, req *pipeline.CompileRequest) (*model.FinalVideoArtifact, error) {
	var result CompileResponse
	if err := c.post(ctx, "/compile", req, &result); err != nil {
		return nil, err
	}
	return &model.FinalVideoArtifact{
		VideoURL:     result.OutputURL,
		ThumbnailURL: result.ThumbnailURL,
		DurationSec:  result.DurationSec,
	}, nil
}

// CreateZip creates a ZIP archive from multiple files
func (c *CompositorClient) CreateZip(ctx context.Context, req *ZipRequest) (*ZipResponse, error) {
	var result ZipResponse
	if err := c.post(ctx, "/zip", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HealthCheck checks if the compositor service is available
func (c *CompositorClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("compositor service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// post sends a POST request with JSON body and parses the response
func (c *CompositorClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
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
func (c *CompositorClient) IsConfigured() bool {
	return c.baseURL != ""
}
