package batch

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/store"
)

const defaultPauseInterval = 500 * time.Millisecond

// ProcessFunc handles one batch item. The returned payload is stored in the
// item's result entry.
type ProcessFunc func(ctx context.Context, index int, item json.RawMessage) (interface{}, error)

// Controller runs flat bulk workloads: no step graph, only an ordered item
// loop with pause/resume/cancel and incrementally visible partial results.
// The batch record is written only by the loop; control flags live beside it
// in the store.
type Controller struct {
	store         store.BatchStore
	pauseInterval time.Duration
}

func NewController(st store.BatchStore) *Controller {
	return &Controller{
		store:         st,
		pauseInterval: defaultPauseInterval,
	}
}

// Start registers the batch and launches its background loop.
func (c *Controller) Start(ctx context.Context, items []json.RawMessage, process ProcessFunc) (string, error) {
	batch := &model.BatchJob{
		ID:         uuid.New().String(),
		Status:     model.BatchStatusRunning,
		TotalItems: len(items),
		Results:    []model.BatchItemResult{},
		CreatedAt:  time.Now(),
	}

	if err := c.store.CreateBatch(ctx, batch); err != nil {
		return "", err
	}

	// The loop outlives the submitting request.
	go c.run(context.Background(), batch, items, process)

	return batch.ID, nil
}

func (c *Controller) run(ctx context.Context, batch *model.BatchJob, items []json.RawMessage, process ProcessFunc) {
	for i := 0; i < len(items); i++ {
		// Cancellation wins over pause, and both are only observed here —
		// never mid-item.
		if c.cancelRequested(ctx, batch.ID) {
			c.finish(ctx, batch, model.BatchStatusCancelled)
			return
		}

		if paused, _ := c.store.BatchPaused(ctx, batch.ID); paused {
			if cancelled := c.waitWhilePaused(ctx, batch); cancelled {
				c.finish(ctx, batch, model.BatchStatusCancelled)
				return
			}
		}

		result := model.BatchItemResult{Index: i}
		payload, err := process(ctx, i, items[i])
		if err != nil {
			// Item failures never fail the batch.
			result.Status = model.ItemStatusError
			result.Error = err.Error()
		} else {
			data, merr := json.Marshal(payload)
			if merr != nil {
				result.Status = model.ItemStatusError
				result.Error = merr.Error()
			} else {
				result.Status = model.ItemStatusSuccess
				result.Payload = data
			}
		}

		batch.Results = append(batch.Results, result)
		batch.CompletedCount++
		if err := c.store.SaveBatch(ctx, batch); err != nil {
			log.Printf("Failed to save batch %s after item %d: %v", batch.ID, i, err)
		}
	}

	c.finish(ctx, batch, model.BatchStatusCompleted)
}

// waitWhilePaused sleeps in fixed intervals until the batch is unpaused or
// cancelled, making no progress meanwhile. Returns true when cancelled.
func (c *Controller) waitWhilePaused(ctx context.Context, batch *model.BatchJob) bool {
	batch.Status = model.BatchStatusPaused
	if err := c.store.SaveBatch(ctx, batch); err != nil {
		log.Printf("Failed to mark batch %s paused: %v", batch.ID, err)
	}

	for {
		if c.cancelRequested(ctx, batch.ID) {
			return true
		}
		paused, _ := c.store.BatchPaused(ctx, batch.ID)
		if !paused {
			batch.Status = model.BatchStatusRunning
			if err := c.store.SaveBatch(ctx, batch); err != nil {
				log.Printf("Failed to mark batch %s running: %v", batch.ID, err)
			}
			return false
		}
		time.Sleep(c.pauseInterval)
	}
}

func (c *Controller) cancelRequested(ctx context.Context, batchID string) bool {
	cancelled, _ := c.store.BatchCancelRequested(ctx, batchID)
	return cancelled
}

func (c *Controller) finish(ctx context.Context, batch *model.BatchJob, status model.BatchStatus) {
	batch.Status = status
	now := time.Now()
	batch.CompletedAt = &now
	if err := c.store.SaveBatch(ctx, batch); err != nil {
		log.Printf("Failed to finalize batch %s: %v", batch.ID, err)
	}
}

// Pause requests a pause. Returns false once the batch is terminal.
func (c *Controller) Pause(ctx context.Context, batchID string) (bool, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return false, err
	}
	if batch.Status.IsTerminal() {
		return false, nil
	}
	return true, c.store.SetBatchPaused(ctx, batchID, true)
}

// Resume clears a pause. Returns false once the batch is terminal.
func (c *Controller) Resume(ctx context.Context, batchID string) (bool, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return false, err
	}
	if batch.Status.IsTerminal() {
		return false, nil
	}
	return true, c.store.SetBatchPaused(ctx, batchID, false)
}

// Cancel requests cancellation, observed at the next loop iteration.
// Returns false once the batch is terminal.
func (c *Controller) Cancel(ctx context.Context, batchID string) (bool, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return false, err
	}
	if batch.Status.IsTerminal() {
		return false, nil
	}
	return true, c.store.RequestBatchCancel(ctx, batchID)
}

// Status is a point-in-time read of the batch record.
func (c *Controller) Status(ctx context.Context, batchID string) (*model.BatchJob, error) {
	return c.store.GetBatch(ctx, batchID)
}
