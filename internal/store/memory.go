package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/adforge/api/internal/model"
)

const defaultPollInterval = 500 * time.Millisecond

// Memory is the in-memory Store used in tests and redis-less development.
type Memory struct {
	mu           sync.RWMutex
	jobs         map[string]*model.Job
	cancels      map[string]bool
	subs         map[string]map[chan model.ProgressEvent]struct{}
	batches      map[string]*model.BatchJob
	batchPaused  map[string]bool
	batchCancels map[string]bool

	pollInterval time.Duration
}

func NewMemory() *Memory {
	return &Memory{
		jobs:         make(map[string]*model.Job),
		cancels:      make(map[string]bool),
		subs:         make(map[string]map[chan model.ProgressEvent]struct{}),
		batches:      make(map[string]*model.BatchJob),
		batchPaused:  make(map[string]bool),
		batchCancels: make(map[string]bool),
		pollInterval: defaultPollInterval,
	}
}

func copyJob(job *model.Job) *model.Job {
	cp := *job
	if job.Artifacts != nil {
		cp.Artifacts = make(map[string]json.RawMessage, len(job.Artifacts))
		for k, v := range job.Artifacts {
			cp.Artifacts[k] = v
		}
	}
	return &cp
}

func (m *Memory) CreateJob(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *Memory) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (m *Memory) SaveJob(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *Memory) Publish(ctx context.Context, event *model.ProgressEvent) error {
	m.mu.Lock()
	job, ok := m.jobs[event.JobID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	applyEvent(job, event)
	m.mu.Unlock()

	return m.Signal(ctx, event.JobID, event)
}

func (m *Memory) Signal(ctx context.Context, jobID string, event *model.ProgressEvent) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs[jobID] {
		select {
		case ch <- *event:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, func(), error) {
	src := make(chan model.ProgressEvent, 64)

	m.mu.Lock()
	if m.subs[jobID] == nil {
		m.subs[jobID] = make(map[chan model.ProgressEvent]struct{})
	}
	m.subs[jobID][src] = struct{}{}
	m.mu.Unlock()

	out := make(chan model.ProgressEvent, 64)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[jobID], src)
			if len(m.subs[jobID]) == 0 {
				delete(m.subs, jobID)
			}
			m.mu.Unlock()
			close(done)
		})
	}

	go func() {
		defer close(out)
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case ev := <-src:
				select {
				case out <- ev:
				default:
				}
				if ev.Status.IsTerminal() {
					stop()
					return
				}
			case <-ticker.C:
				job, err := m.GetJob(ctx, jobID)
				if err == nil && job.Status.IsTerminal() {
					ev := eventFromJob(job)
					select {
					case out <- ev:
					default:
					}
					stop()
					return
				}
			}
		}
	}()

	return out, stop, nil
}

func (m *Memory) RequestCancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[jobID] = true
	return nil
}

func (m *Memory) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancels[jobID], nil
}

func (m *Memory) CreateBatch(ctx context.Context, batch *model.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *batch
	cp.Results = append([]model.BatchItemResult(nil), batch.Results...)
	m.batches[batch.ID] = &cp
	return nil
}

func (m *Memory) GetBatch(ctx context.Context, batchID string) (*model.BatchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	batch, ok := m.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *batch
	cp.Results = append([]model.BatchItemResult(nil), batch.Results...)
	return &cp, nil
}

func (m *Memory) SaveBatch(ctx context.Context, batch *model.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[batch.ID]; !ok {
		return ErrNotFound
	}
	cp := *batch
	cp.Results = append([]model.BatchItemResult(nil), batch.Results...)
	m.batches[batch.ID] = &cp
	return nil
}

func (m *Memory) SetBatchPaused(ctx context.Context, batchID string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchPaused[batchID] = paused
	return nil
}

func (m *Memory) BatchPaused(ctx context.Context, batchID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batchPaused[batchID], nil
}

func (m *Memory) RequestBatchCancel(ctx context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCancels[batchID] = true
	return nil
}

func (m *Memory) BatchCancelRequested(ctx context.Context, batchID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batchCancels[batchID], nil
}
