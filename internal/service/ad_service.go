package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/pipeline"
	"github.com/adforge/api/internal/store"
)

const TaskTypeAdGenerate = "ad:generate"

// AdService manages ad generation jobs. It owns the job lifecycle on the
// request side: create and enqueue, read status and results, and signal
// control events toward the running pipeline. It never writes a running
// job's record; that is the orchestrator's alone.
type AdService struct {
	store       store.Store
	asynqClient *asynq.Client
}

func NewAdService(st store.Store, asynqClient *asynq.Client) *AdService {
	return &AdService{
		store:       st,
		asynqClient: asynqClient,
	}
}

// StartAd queues a new ad generation job
func (s *AdService) StartAd(ctx context.Context, req *model.AdStartRequest) (*model.AdStartResponse, error) {
	if req.ResumeFrom != "" {
		idx := pipeline.StepIndex(req.ResumeFrom)
		if idx < 0 {
			return nil, fmt.Errorf("unknown resume step %q", req.ResumeFrom)
		}
		for i := 0; i < idx; i++ {
			name := pipeline.Steps[i].Name
			if _, ok := req.Artifacts[name]; !ok {
				return nil, fmt.Errorf("resume from %q requires an artifact for %q", req.ResumeFrom, name)
			}
		}
	}

	jobID := uuid.New().String()
	now := time.Now()

	payload := &model.AdJobPayload{
		ProjectID:       req.ProjectID,
		Brief:           req.Brief,
		ReferenceImages: req.ReferenceImages,
		AutoApprove:     req.AutoApprove,
		ResumeFrom:      req.ResumeFrom,
		Artifacts:       req.Artifacts,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:        jobID,
		Status:    model.JobStatusQueued,
		Progress:  0,
		Payload:   payloadBytes,
		CreatedAt: now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newAdTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// The pipeline retries its own steps; a failed job is not re-run.
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("ads"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.AdStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of an ad job
func (s *AdService) GetStatus(ctx context.Context, jobID string) (*model.AdStatusResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.AdStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Message:     job.Message,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// GetResult returns the artifacts of a completed ad job
func (s *AdService) GetResult(ctx context.Context, jobID string) (*model.AdResultResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("job not completed")
	}

	resp := &model.AdResultResponse{
		JobID:     job.ID,
		Artifacts: job.Artifacts,
	}

	if raw, ok := job.Artifacts[pipeline.StepComposition]; ok {
		var video model.FinalVideoArtifact
		if err := json.Unmarshal(raw, &video); err != nil {
			return nil, fmt.Errorf("failed to unmarshal final video: %w", err)
		}
		resp.Video = &video
	}

	return resp, nil
}

// CancelAd requests cancellation of a running job. The request is
// cooperative: the pipeline observes the flag at its next step boundary, and
// a job parked at the approval gate is woken by the cancel event.
func (s *AdService) CancelAd(ctx context.Context, jobID string) (*model.AdCancelResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("job already completed")
	}

	if err := s.store.RequestCancel(ctx, jobID); err != nil {
		return nil, fmt.Errorf("failed to request cancel: %w", err)
	}
	if err := s.store.Signal(ctx, jobID, &model.ProgressEvent{
		Type:  model.EventTypeCancel,
		JobID: jobID,
	}); err != nil {
		return nil, fmt.Errorf("failed to signal cancel: %w", err)
	}

	return &model.AdCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  job.Status,
	}, nil
}

// Approve resolves the storyboard approval gate. Approved false fails the
// job with the given reason.
func (s *AdService) Approve(ctx context.Context, jobID string, approved bool, reason string) (*model.AdApproveResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusAwaitingApproval {
		return nil, fmt.Errorf("job is not awaiting approval")
	}

	data, err := json.Marshal(map[string]interface{}{
		"approved": approved,
		"reason":   reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal approval: %w", err)
	}

	if err := s.store.Signal(ctx, jobID, &model.ProgressEvent{
		Type:  model.EventTypeApproval,
		JobID: jobID,
		Data:  data,
	}); err != nil {
		return nil, fmt.Errorf("failed to signal approval: %w", err)
	}

	return &model.AdApproveResponse{Success: true, JobID: jobID}, nil
}

// SubmitDecision forwards a quality-gate decision to the waiting pipeline
func (s *AdService) SubmitDecision(ctx context.Context, jobID string, req *model.AdDecisionRequest) (*model.AdApproveResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusAwaitingApproval {
		return nil, fmt.Errorf("job is not awaiting approval")
	}

	data, err := json.Marshal(&model.DecisionPayload{
		Decision:        req.Decision,
		ItemIndices:     req.ItemIndices,
		ExtraReferences: req.ExtraReferences,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision: %w", err)
	}

	if err := s.store.Signal(ctx, jobID, &model.ProgressEvent{
		Type:  model.EventTypeDecision,
		JobID: jobID,
		Data:  data,
	}); err != nil {
		return nil, fmt.Errorf("failed to signal decision: %w", err)
	}

	return &model.AdApproveResponse{Success: true, JobID: jobID}, nil
}

func newAdTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payload),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAdGenerate, data), nil
}
