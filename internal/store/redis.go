package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adforge/api/internal/model"
)

const recordTTL = 24 * time.Hour

// Redis is the Store backed by redis: JSON-blob records plus a pub/sub
// channel per job.
type Redis struct {
	client       *redis.Client
	pollInterval time.Duration
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client:       client,
		pollInterval: defaultPollInterval,
	}
}

func jobKey(jobID string) string       { return fmt.Sprintf("job:%s", jobID) }
func jobChannel(jobID string) string   { return fmt.Sprintf("job:%s:events", jobID) }
func jobCancelKey(jobID string) string { return fmt.Sprintf("job:%s:cancel", jobID) }

func batchKey(batchID string) string       { return fmt.Sprintf("batch:%s", batchID) }
func batchPausedKey(batchID string) string { return fmt.Sprintf("batch:%s:paused", batchID) }
func batchCancelKey(batchID string) string { return fmt.Sprintf("batch:%s:cancel", batchID) }

func (r *Redis) CreateJob(ctx context.Context, job *model.Job) error {
	return r.SaveJobUnchecked(ctx, job)
}

func (r *Redis) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := r.client.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec := jobRecord{Job: &model.Job{}}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	rec.Job.Payload = rec.Payload
	rec.Job.Artifacts = rec.Artifacts
	return rec.Job, nil
}

func (r *Redis) SaveJob(ctx context.Context, job *model.Job) error {
	return r.SaveJobUnchecked(ctx, job)
}

// SaveJobUnchecked writes the record without an existence check; redis SET
// covers both create and update under the single-writer assumption.
func (r *Redis) SaveJobUnchecked(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(jobRecord{Job: job, Payload: job.Payload, Artifacts: job.Artifacts})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, jobKey(job.ID), data, recordTTL).Err()
}

// jobRecord round-trips the fields the Job type hides from API responses
type jobRecord struct {
	*model.Job
	Payload   []byte                     `json:"payload,omitempty"`
	Artifacts map[string]json.RawMessage `json:"artifacts,omitempty"`
}

func (r *Redis) Publish(ctx context.Context, event *model.ProgressEvent) error {
	job, err := r.GetJob(ctx, event.JobID)
	if err != nil {
		return err
	}
	applyEvent(job, event)
	if err := r.SaveJob(ctx, job); err != nil {
		return err
	}
	return r.Signal(ctx, event.JobID, event)
}

func (r *Redis) Signal(ctx context.Context, jobID string, event *model.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, jobChannel(jobID), data).Err()
}

func (r *Redis) Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, func(), error) {
	pubsub := r.client.Subscribe(ctx, jobChannel(jobID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan model.ProgressEvent, 64)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		msgs := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev model.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				default:
				}
				if ev.Status.IsTerminal() {
					stop()
					return
				}
			case <-ticker.C:
				job, err := r.GetJob(ctx, jobID)
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

func (r *Redis) RequestCancel(ctx context.Context, jobID string) error {
	return r.client.Set(ctx, jobCancelKey(jobID), "1", recordTTL).Err()
}

func (r *Redis) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	n, err := r.client.Exists(ctx, jobCancelKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) CreateBatch(ctx context.Context, batch *model.BatchJob) error {
	return r.SaveBatch(ctx, batch)
}

func (r *Redis) GetBatch(ctx context.Context, batchID string) (*model.BatchJob, error) {
	data, err := r.client.Get(ctx, batchKey(batchID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var batch model.BatchJob
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *Redis) SaveBatch(ctx context.Context, batch *model.BatchJob) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, batchKey(batch.ID), data, recordTTL).Err()
}

func (r *Redis) SetBatchPaused(ctx context.Context, batchID string, paused bool) error {
	if !paused {
		return r.client.Del(ctx, batchPausedKey(batchID)).Err()
	}
	return r.client.Set(ctx, batchPausedKey(batchID), "1", recordTTL).Err()
}

func (r *Redis) BatchPaused(ctx context.Context, batchID string) (bool, error) {
	n, err := r.client.Exists(ctx, batchPausedKey(batchID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) RequestBatchCancel(ctx context.Context, batchID string) error {
	return r.client.Set(ctx, batchCancelKey(batchID), "1", recordTTL).Err()
}

func (r *Redis) BatchCancelRequested(ctx context.Context, batchID string) (bool, error) {
	n, err := r.client.Exists(ctx, batchCancelKey(batchID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
