package model

import (
	"encoding/json"
	"time"
)

// BatchJob represents one bulk workload: N items processed by a flat loop
// with incrementally visible partial results.
type BatchJob struct {
	ID             string            `json:"id"`
	Status         BatchStatus       `json:"status"`
	TotalItems     int               `json:"totalItems"`
	CompletedCount int               `json:"completedCount"`
	Results        []BatchItemResult `json:"results"`
	CreatedAt      time.Time         `json:"createdAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
}

// BatchItemResult is one per-item outcome, appended as the loop progresses
type BatchItemResult struct {
	Index   int             `json:"index"`
	Status  ItemStatus      `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// VariantSpec describes one ad creative variant to generate in bulk
type VariantSpec struct {
	Product     string      `json:"product" validate:"required,min=2,max=200"`
	Angle       string      `json:"angle" validate:"required,min=2,max=300"`
	Tone        Tone        `json:"tone,omitempty"`
	AspectRatio AspectRatio `json:"aspectRatio,omitempty"`
}

// VariantResult is the payload of a successful batch item
type VariantResult struct {
	Headline string `json:"headline"`
	ImageURL string `json:"imageUrl"`
}
