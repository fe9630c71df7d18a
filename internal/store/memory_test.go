package store

import (
	"context"
	"testing"
	"time"

	"github.com/adforge/api/internal/model"
)

func newTestJob(id string) *model.Job {
	return &model.Job{
		ID:        id,
		Status:    model.JobStatusQueued,
		CreatedAt: time.Now(),
	}
}

func TestPublishUpdatesRecordAndReachesSubscriber(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateJob(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	events, stop, err := m.Subscribe(ctx, "job-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	ev := &model.ProgressEvent{
		Type:        model.EventTypeProgress,
		JobID:       "job-1",
		Status:      model.JobStatusRunning,
		CurrentStep: "storyboard",
		Progress:    45,
		Message:     "Generating storyboard...",
	}
	if err := m.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-events:
		if got.Progress != 45 || got.CurrentStep != "storyboard" {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}

	job, err := m.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != model.JobStatusRunning || job.Progress != 45 {
		t.Errorf("record not updated by publish: %+v", job)
	}
	if job.StartedAt == nil {
		t.Error("StartedAt should be set when the job starts running")
	}
}

func TestSubscribeTerminatesOnTerminalEvent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateJob(ctx, newTestJob("job-2")); err != nil {
		t.Fatalf("create: %v", err)
	}

	events, stop, err := m.Subscribe(ctx, "job-2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	if err := m.Publish(ctx, &model.ProgressEvent{
		Type:     model.EventTypeComplete,
		JobID:    "job-2",
		Status:   model.JobStatusCompleted,
		Progress: 100,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := <-events
	if !ok {
		t.Fatal("expected the terminal event before close")
	}
	if got.Status != model.JobStatusCompleted {
		t.Errorf("unexpected event: %+v", got)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("channel should deliver nothing after the terminal event")
		}
	case <-time.After(time.Second):
		t.Error("channel should close itself after the terminal event")
	}
}

func TestLateSubscriberSeesTerminalState(t *testing.T) {
	m := NewMemory()
	m.pollInterval = 10 * time.Millisecond
	ctx := context.Background()

	if err := m.CreateJob(ctx, newTestJob("job-3")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Publish(ctx, &model.ProgressEvent{
		Type:     model.EventTypeError,
		JobID:    "job-3",
		Status:   model.JobStatusFailed,
		Progress: 70,
		Message:  "video generation failed",
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Subscribe after the terminal event already passed.
	events, stop, err := m.Subscribe(ctx, "job-3")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	select {
	case got := <-events:
		if got.Status != model.JobStatusFailed {
			t.Errorf("expected synthesized failed event, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("late subscriber should receive last-known terminal state")
	}

	job, err := m.GetJob(ctx, "job-3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Error == nil || *job.Error != "video generation failed" {
		t.Errorf("failure message should be recorded on the job: %+v", job)
	}
}

func TestSignalDoesNotTouchRecord(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateJob(ctx, newTestJob("job-4")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := m.Signal(ctx, "job-4", &model.ProgressEvent{
		Type:  model.EventTypeApproval,
		JobID: "job-4",
	}); err != nil {
		t.Fatalf("signal: %v", err)
	}

	job, err := m.GetJob(ctx, "job-4")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != model.JobStatusQueued {
		t.Errorf("control events must not write the record, status = %s", job.Status)
	}
}

func TestCancelFlag(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	cancelled, err := m.CancelRequested(ctx, "job-5")
	if err != nil || cancelled {
		t.Fatalf("fresh job should not be cancelled: %v %v", cancelled, err)
	}

	if err := m.RequestCancel(ctx, "job-5"); err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	cancelled, err = m.CancelRequested(ctx, "job-5")
	if err != nil || !cancelled {
		t.Fatalf("cancel flag should be set: %v %v", cancelled, err)
	}
}

func TestBatchFlags(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	batch := &model.BatchJob{ID: "batch-1", Status: model.BatchStatusRunning, TotalItems: 3, CreatedAt: time.Now()}
	if err := m.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	if err := m.SetBatchPaused(ctx, "batch-1", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	paused, err := m.BatchPaused(ctx, "batch-1")
	if err != nil || !paused {
		t.Fatalf("expected paused flag: %v %v", paused, err)
	}
	if err := m.SetBatchPaused(ctx, "batch-1", false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	paused, _ = m.BatchPaused(ctx, "batch-1")
	if paused {
		t.Error("expected paused flag cleared")
	}

	// The flag store never races the loop's record writes.
	batch.CompletedCount = 2
	batch.Results = append(batch.Results, model.BatchItemResult{Index: 0, Status: model.ItemStatusSuccess})
	if err := m.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("save batch: %v", err)
	}
	got, err := m.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.CompletedCount != 2 || len(got.Results) != 1 {
		t.Errorf("batch record not persisted: %+v", got)
	}
}
