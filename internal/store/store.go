package store

import (
	"context"
	"errors"
	"time"

	"github.com/adforge/api/internal/model"
)

// ErrNotFound is returned when a job or batch id is unknown
var ErrNotFound = errors.New("not found")

// JobStore holds pipeline job records and their event channels. The job
// record for a given id has exactly one writer — the owning orchestrator
// goroutine — which is why Publish can update and broadcast without
// coordination. Control events from the outside go through Signal and never
// touch the record.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	SaveJob(ctx context.Context, job *model.Job) error

	// Publish updates the durable job record from the event and broadcasts
	// it, so a subscriber that joins late still sees last-known state via
	// GetJob.
	Publish(ctx context.Context, event *model.ProgressEvent) error

	// Signal broadcasts a control event (approval, decision, cancel notice)
	// without writing the record.
	Signal(ctx context.Context, jobID string, event *model.ProgressEvent) error

	// Subscribe returns a channel of events for the job. The channel closes
	// itself after a terminal-status event passes through, and polls the
	// record at a bounded interval so even a subscriber that joined after
	// the terminal event exits promptly. The returned func releases the
	// subscription early.
	Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, func(), error)

	// Cooperative cancellation flag, observed by the orchestrator at step
	// boundaries.
	RequestCancel(ctx context.Context, jobID string) error
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}

// BatchStore holds batch records. The record is written only by the batch
// loop; pause/cancel flags live beside it so handler writes never race the
// loop's record writes.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *model.BatchJob) error
	GetBatch(ctx context.Context, batchID string) (*model.BatchJob, error)
	SaveBatch(ctx context.Context, batch *model.BatchJob) error

	SetBatchPaused(ctx context.Context, batchID string, paused bool) error
	BatchPaused(ctx context.Context, batchID string) (bool, error)
	RequestBatchCancel(ctx context.Context, batchID string) error
	BatchCancelRequested(ctx context.Context, batchID string) (bool, error)
}

// Store is the full persistence surface, swappable between redis and memory
type Store interface {
	JobStore
	BatchStore
}

// applyEvent folds a published event into the durable job record
func applyEvent(job *model.Job, ev *model.ProgressEvent) {
	job.Status = ev.Status
	job.CurrentStep = ev.CurrentStep
	job.Progress = ev.Progress
	job.Message = ev.Message

	now := time.Now()
	if job.StartedAt == nil && ev.Status == model.JobStatusRunning {
		job.StartedAt = &now
	}
	if ev.Status.IsTerminal() {
		job.CompletedAt = &now
	}
	if ev.Status == model.JobStatusFailed && ev.Message != "" {
		msg := ev.Message
		job.Error = &msg
	}
}

// eventFromJob synthesizes a last-known-state event for late subscribers
func eventFromJob(job *model.Job) model.ProgressEvent {
	evType := model.EventTypeProgress
	switch job.Status {
	case model.JobStatusCompleted:
		evType = model.EventTypeComplete
	case model.JobStatusFailed:
		evType = model.EventTypeError
	}
	return model.ProgressEvent{
		Type:        evType,
		JobID:       job.ID,
		Status:      job.Status,
		CurrentStep: job.CurrentStep,
		Progress:    job.Progress,
		Message:     job.Message,
	}
}
