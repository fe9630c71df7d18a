package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/store"
)

func newTestController() *Controller {
	c := NewController(store.NewMemory())
	c.pauseInterval = 5 * time.Millisecond
	return c
}

func rawItems(n int) []json.RawMessage {
	items := make([]json.RawMessage, n)
	for i := range items {
		items[i] = json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))
	}
	return items
}

func waitForStatus(t *testing.T, c *Controller, batchID string, want model.BatchStatus) *model.BatchJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		batch, err := c.Status(context.Background(), batchID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if batch.Status == want {
			return batch
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("batch %s never reached status %s", batchID, want)
	return nil
}

func TestBatchCompletesAllItems(t *testing.T) {
	c := newTestController()

	var mu sync.Mutex
	var processed []int

	id, err := c.Start(context.Background(), rawItems(5), func(ctx context.Context, index int, item json.RawMessage) (interface{}, error) {
		mu.Lock()
		processed = append(processed, index)
		mu.Unlock()
		return map[string]int{"index": index}, nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	batch := waitForStatus(t, c, id, model.BatchStatusCompleted)
	if batch.CompletedCount != 5 {
		t.Errorf("completed count = %d, want 5", batch.CompletedCount)
	}
	if len(batch.Results) != 5 {
		t.Fatalf("results = %d, want 5", len(batch.Results))
	}
	if batch.CompletedAt == nil {
		t.Error("completed batch has no completion time")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, idx := range processed {
		if idx != i {
			t.Fatalf("items processed out of order: %v", processed)
		}
	}
}

func TestBatchCancelFreezesResults(t *testing.T) {
	c := newTestController()

	id := make(chan string, 1)
	batchID, err := c.Start(context.Background(), rawItems(10), func(ctx context.Context, index int, item json.RawMessage) (interface{}, error) {
		if index == 2 {
			// Cancel lands between items, so item 2 still finishes.
			if _, err := c.Cancel(ctx, <-id); err != nil {
				t.Errorf("Cancel: %v", err)
			}
		}
		return index, nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id <- batchID

	batch := waitForStatus(t, c, batchID, model.BatchStatusCancelled)
	if batch.CompletedCount != 3 {
		t.Errorf("completed count = %d, want 3", batch.CompletedCount)
	}
	if len(batch.Results) != 3 {
		t.Errorf("results = %d, want 3", len(batch.Results))
	}
	if batch.CompletedAt == nil {
		t.Error("cancelled batch has no completion time")
	}
}

func TestBatchPauseResume(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	firstDone := make(chan string, 1)
	release := make(chan struct{})
	var once sync.Once

	var mu sync.Mutex
	var processed []int

	batchID, err := c.Start(ctx, rawItems(6), func(ctx context.Context, index int, item json.RawMessage) (interface{}, error) {
		mu.Lock()
		processed = append(processed, index)
		mu.Unlock()
		if index == 0 {
			once.Do(func() {
				firstDone <- "done"
				<-release
			})
		}
		return index, nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-firstDone
	ok, err := c.Pause(ctx, batchID)
	if err != nil || !ok {
		t.Fatalf("Pause = (%v, %v), want (true, nil)", ok, err)
	}
	close(release)

	batch := waitForStatus(t, c, batchID, model.BatchStatusPaused)
	if batch.CompletedCount != 1 {
		t.Errorf("completed count while paused = %d, want 1", batch.CompletedCount)
	}

	ok, err = c.Resume(ctx, batchID)
	if err != nil || !ok {
		t.Fatalf("Resume = (%v, %v), want (true, nil)", ok, err)
	}

	batch = waitForStatus(t, c, batchID, model.BatchStatusCompleted)
	if batch.CompletedCount != 6 {
		t.Errorf("completed count = %d, want 6", batch.CompletedCount)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 6 {
		t.Fatalf("processed %v, want each item exactly once", processed)
	}
	for i, idx := range processed {
		if idx != i {
			t.Fatalf("items processed out of order or duplicated: %v", processed)
		}
	}
}

func TestBatchCancelWhilePaused(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	firstDone := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	batchID, err := c.Start(ctx, rawItems(4), func(ctx context.Context, index int, item json.RawMessage) (interface{}, error) {
		if index == 0 {
			once.Do(func() {
				close(firstDone)
				<-release
			})
		}
		return index, nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-firstDone
	if _, err := c.Pause(ctx, batchID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	close(release)
	waitForStatus(t, c, batchID, model.BatchStatusPaused)

	if _, err := c.Cancel(ctx, batchID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	batch := waitForStatus(t, c, batchID, model.BatchStatusCancelled)
	if batch.CompletedCount != 1 {
		t.Errorf("completed count = %d, want 1", batch.CompletedCount)
	}
}

func TestBatchToleratesItemErrors(t *testing.T) {
	c := newTestController()

	id, err := c.Start(context.Background(), rawItems(4), func(ctx context.Context, index int, item json.RawMessage) (interface{}, error) {
		if index%2 == 1 {
			return nil, errors.New("generation refused")
		}
		return index, nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	batch := waitForStatus(t, c, id, model.BatchStatusCompleted)
	if batch.CompletedCount != 4 {
		t.Errorf("completed count = %d, want 4", batch.CompletedCount)
	}
	for _, r := range batch.Results {
		want := model.ItemStatusSuccess
		if r.Index%2 == 1 {
			want = model.ItemStatusError
		}
		if r.Status != want {
			t.Errorf("item %d status = %s, want %s", r.Index, r.Status, want)
		}
		if want == model.ItemStatusError && r.Error == "" {
			t.Errorf("item %d missing error message", r.Index)
		}
	}
}

func TestBatchControlIdempotentAfterTerminal(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	id, err := c.Start(ctx, rawItems(2), func(ctx context.Context, index int, item json.RawMessage) (interface{}, error) {
		return index, nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, c, id, model.BatchStatusCompleted)

	for name, op := range map[string]func(context.Context, string) (bool, error){
		"pause":  c.Pause,
		"resume": c.Resume,
		"cancel": c.Cancel,
	} {
		ok, err := op(ctx, id)
		if err != nil {
			t.Errorf("%s on terminal batch: %v", name, err)
		}
		if ok {
			t.Errorf("%s on terminal batch reported accepted", name)
		}
	}
}
