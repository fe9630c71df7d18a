package model

import (
	"encoding/json"
	"time"
)

// Job represents one pipeline run in the system
type Job struct {
	ID          string                     `json:"id"`
	Status      JobStatus                  `json:"status"`
	Progress    int                        `json:"progress"`
	CurrentStep string                     `json:"currentStep,omitempty"`
	Message     string                     `json:"message,omitempty"`
	Error       *string                    `json:"error,omitempty"`
	Payload     []byte                     `json:"-"` // Stored as JSON
	Artifacts   map[string]json.RawMessage `json:"-"` // step name -> step result
	CreatedAt   time.Time                  `json:"createdAt"`
	StartedAt   *time.Time                 `json:"startedAt,omitempty"`
	CompletedAt *time.Time                 `json:"completedAt,omitempty"`
}

// AdBrief describes the advertisement to generate
type AdBrief struct {
	Product     string      `json:"product" validate:"required,min=2,max=200"`
	Brand       string      `json:"brand" validate:"required,min=1,max=100"`
	Audience    string      `json:"audience,omitempty" validate:"max=200"`
	Tone        Tone        `json:"tone" validate:"required"`
	KeyPoints   []string    `json:"keyPoints,omitempty" validate:"max=8,dive,max=200"`
	SceneCount  int         `json:"sceneCount" validate:"required,min=1,max=8"`
	DurationSec int         `json:"durationSec" validate:"required,min=5,max=90"`
	AspectRatio AspectRatio `json:"aspectRatio" validate:"required"`
	Voice       Voice       `json:"voice,omitempty"`
}

// AdJobPayload contains the data for an ad generation job
type AdJobPayload struct {
	ProjectID       string                     `json:"projectId"`
	Brief           AdBrief                    `json:"brief"`
	ReferenceImages []string                   `json:"referenceImages,omitempty"`
	AutoApprove     bool                       `json:"autoApprove"`
	ResumeFrom      string                     `json:"resumeFrom,omitempty"`
	Artifacts       map[string]json.RawMessage `json:"artifacts,omitempty"`
}
