package model

import (
	"encoding/json"
	"time"
)

// AdStartRequest starts an ad generation job. ResumeFrom names a pipeline
// step to resume at; artifacts for every earlier step must then be supplied.
type AdStartRequest struct {
	ProjectID       string                     `json:"projectId" validate:"required,uuid4"`
	Brief           AdBrief                    `json:"brief" validate:"required"`
	ReferenceImages []string                   `json:"referenceImages,omitempty" validate:"max=10,dive,url"`
	AutoApprove     bool                       `json:"autoApprove"`
	ResumeFrom      string                     `json:"resumeFrom,omitempty"`
	Artifacts       map[string]json.RawMessage `json:"artifacts,omitempty"`
}

type AdStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type AdStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Message     string     `json:"message,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// AdResultResponse is returned once a job has completed. Artifacts holds
// every step result keyed by step name; Video is the composition output.
type AdResultResponse struct {
	JobID     string                     `json:"jobId"`
	Video     *FinalVideoArtifact        `json:"video"`
	Artifacts map[string]json.RawMessage `json:"artifacts"`
}

type AdCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

type AdApproveResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

type AdDecisionRequest struct {
	Decision        Decision `json:"decision" validate:"required"`
	ItemIndices     []int    `json:"itemIndices,omitempty" validate:"max=16"`
	ExtraReferences []string `json:"extraReferences,omitempty" validate:"max=10,dive,url"`
}

type BatchStartRequest struct {
	Items []VariantSpec `json:"items" validate:"required,min=1,max=100,dive"`
}

type BatchStartResponse struct {
	BatchID    string      `json:"batchId"`
	Status     BatchStatus `json:"status"`
	TotalItems int         `json:"totalItems"`
	CreatedAt  time.Time   `json:"createdAt"`
}

type BatchStatusResponse struct {
	BatchID        string            `json:"batchId"`
	Status         BatchStatus       `json:"status"`
	TotalItems     int               `json:"totalItems"`
	CompletedCount int               `json:"completedCount"`
	Results        []BatchItemResult `json:"results"`
	CreatedAt      time.Time         `json:"createdAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
}

type BatchControlResponse struct {
	Success bool        `json:"success"`
	BatchID string      `json:"batchId"`
	Status  BatchStatus `json:"status"`
}

type ReferenceUploadResponse struct {
	ReferenceID string    `json:"referenceId"`
	FileURL     string    `json:"fileUrl"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type ExportAssetsRequest struct {
	JobID string `json:"jobId" validate:"required,uuid4"`
}

type ExportAssetsResponse struct {
	DownloadURL string `json:"downloadUrl"`
	Size        int64  `json:"size"`
	FileCount   int    `json:"fileCount"`
	ExpiresIn   int    `json:"expiresIn"` // seconds
}
