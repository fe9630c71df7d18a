package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adforge/api/internal/batch"
	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/pipeline"
)

const variantHeadlineSystemPrompt = `You are an advertising copywriter. Given a product and a creative angle, write one short punchy headline for a social media ad. Respond with JSON only: {"headline": "..."}`

// VariantService generates ad creative variants in bulk: one headline and
// one key visual per variant, produced by a flat batch loop rather than the
// full pipeline.
type VariantService struct {
	controller *batch.Controller
	text       pipeline.TextGenerator
	image      pipeline.ImageGenerator
}

func NewVariantService(controller *batch.Controller, text pipeline.TextGenerator, image pipeline.ImageGenerator) *VariantService {
	return &VariantService{
		controller: controller,
		text:       text,
		image:      image,
	}
}

// StartBatch launches variant generation for all requested items
func (s *VariantService) StartBatch(ctx context.Context, req *model.BatchStartRequest) (*model.BatchStartResponse, error) {
	items := make([]json.RawMessage, len(req.Items))
	for i, spec := range req.Items {
		data, err := json.Marshal(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal item %d: %w", i, err)
		}
		items[i] = data
	}

	batchID, err := s.controller.Start(ctx, items, s.processVariant)
	if err != nil {
		return nil, fmt.Errorf("failed to start batch: %w", err)
	}

	batchJob, err := s.controller.Status(ctx, batchID)
	if err != nil {
		return nil, err
	}

	return &model.BatchStartResponse{
		BatchID:    batchID,
		Status:     batchJob.Status,
		TotalItems: batchJob.TotalItems,
		CreatedAt:  batchJob.CreatedAt,
	}, nil
}

// processVariant generates one headline and one key visual
func (s *VariantService) processVariant(ctx context.Context, index int, item json.RawMessage) (interface{}, error) {
	var spec model.VariantSpec
	if err := json.Unmarshal(item, &spec); err != nil {
		return nil, fmt.Errorf("invalid variant spec: %w", err)
	}

	tone := spec.Tone
	if tone == "" {
		tone = model.ToneBold
	}

	userPrompt := fmt.Sprintf("Product: %s\nAngle: %s\nTone: %s", spec.Product, spec.Angle, tone)
	raw, err := s.text.ChatCompletion(ctx, variantHeadlineSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("headline generation failed: %w", err)
	}

	var parsed struct {
		Headline string `json:"headline"`
	}
	cleaned := strings.TrimSpace(raw)
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse headline: %w", err)
	}

	imagePrompt := fmt.Sprintf("Advertising key visual for %s. Creative angle: %s. Tone: %s.", spec.Product, spec.Angle, tone)
	imageURL, err := s.image.GenerateImage(ctx, imagePrompt, nil)
	if err != nil {
		return nil, fmt.Errorf("visual generation failed: %w", err)
	}

	return &model.VariantResult{
		Headline: parsed.Headline,
		ImageURL: imageURL,
	}, nil
}

// GetStatus returns the batch record including partial results
func (s *VariantService) GetStatus(ctx context.Context, batchID string) (*model.BatchStatusResponse, error) {
	batchJob, err := s.controller.Status(ctx, batchID)
	if err != nil {
		return nil, err
	}

	return &model.BatchStatusResponse{
		BatchID:        batchJob.ID,
		Status:         batchJob.Status,
		TotalItems:     batchJob.TotalItems,
		CompletedCount: batchJob.CompletedCount,
		Results:        batchJob.Results,
		CreatedAt:      batchJob.CreatedAt,
		CompletedAt:    batchJob.CompletedAt,
	}, nil
}

// Pause requests a pause at the next item boundary
func (s *VariantService) Pause(ctx context.Context, batchID string) (*model.BatchControlResponse, error) {
	return s.control(ctx, batchID, s.controller.Pause)
}

// Resume clears a pause
func (s *VariantService) Resume(ctx context.Context, batchID string) (*model.BatchControlResponse, error) {
	return s.control(ctx, batchID, s.controller.Resume)
}

// Cancel requests cancellation at the next item boundary
func (s *VariantService) Cancel(ctx context.Context, batchID string) (*model.BatchControlResponse, error) {
	return s.control(ctx, batchID, s.controller.Cancel)
}

func (s *VariantService) control(ctx context.Context, batchID string, op func(context.Context, string) (bool, error)) (*model.BatchControlResponse, error) {
	accepted, err := op(ctx, batchID)
	if err != nil {
		return nil, err
	}

	batchJob, err := s.controller.Status(ctx, batchID)
	if err != nil {
		return nil, err
	}

	return &model.BatchControlResponse{
		Success: accepted,
		BatchID: batchID,
		Status:  batchJob.Status,
	}, nil
}
