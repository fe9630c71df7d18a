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

// ScorerClient scores a candidate image against reference images through the
// vision model API. Each call returns per-dimension scores in [0,1].
type ScorerClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// CompareRequest represents the request for consistency comparison
type CompareRequest struct {
	Model           string   `json:"model"`
	CandidateImage  string   `json:"candidate_image"`
	ReferenceImages []string `json:"reference_images"`
	Context         string   `json:"context,omitempty"`
}

// CompareResponse represents the response from consistency comparison
type CompareResponse struct {
	Identity         float64 `json:"identity"`
	Continuity       float64 `json:"continuity"`
	PromptAdherence  float64 `json:"prompt_adherence"`
	TechnicalQuality float64 `json:"technical_quality"`
	Notes            string  `json:"notes,omitempty"`
}

// NewScorerClient creates a new vision scoring client
func NewScorerClient(cfg *config.ScorerConfig) *ScorerClient {
	return &ScorerClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Compare scores candidate against references and returns dimension scores
func (c *ScorerClient) Compare(ctx context.Context, candidate string, references []string, scoreContext string) (*model.DimensionScores, error) {
	reqBody := CompareRequest{
		Model:           c.model,
		CandidateImage:  candidate,
		ReferenceImages: references,
		Context:         scoreContext,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/vision/compare", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result CompareResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &model.DimensionScores{
		Identity:         result.Identity,
		Continuity:       result.Continuity,
		PromptAdherence:  result.PromptAdherence,
		TechnicalQuality: result.TechnicalQuality,
		Notes:            result.Notes,
	}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ScorerClient) IsConfigured() bool {
	return c.apiKey != ""
}
