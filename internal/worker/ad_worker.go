package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/adforge/api/internal/client"
	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/pipeline"
	"github.com/adforge/api/internal/retry"
	"github.com/adforge/api/internal/store"
)

// AdWorker processes ad generation tasks: each task gets its own
// orchestrator run, which is the job's single record writer.
type AdWorker struct {
	orchestrator *pipeline.Orchestrator
	mock         bool
}

// NewAdWorker creates a new ad worker. When no text client is configured the
// whole collaborator set is swapped for mocks so the pipeline still runs in
// development.
func NewAdWorker(st store.JobStore, clients pipeline.Collaborators, cfg pipeline.Config) *AdWorker {
	mock := false
	if llm, ok := clients.Text.(*client.LLMClient); ok && !llm.IsConfigured() {
		mock = true
	}
	if clients.Text == nil {
		mock = true
	}
	if mock {
		log.Printf("[Worker] No LLM configured, ad jobs will use mock collaborators")
		mocks := client.MockCollaborators()
		mocks.Scorer = clients.Scorer
		clients = mocks
	}

	return &AdWorker{
		orchestrator: pipeline.New(st, retry.NewExecutor(), clients, cfg),
		mock:         mock,
	}
}

// ProcessTask handles one ad generation task
func (w *AdWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	if w.mock {
		log.Printf("Starting ad job %s (mock)", jobID)
	} else {
		log.Printf("Starting ad job %s", jobID)
	}

	var payload model.AdJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal ad payload: %w", err)
	}

	return w.orchestrator.Run(ctx, jobID, &payload)
}
