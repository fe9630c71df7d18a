package model

import "encoding/json"

// Event types carried on a job's event channel. Progress, complete and error
// events originate from the owning orchestrator; approval, decision and cancel
// are control events signalled from outside and never touch the job record.
const (
	EventTypeProgress = "progress"
	EventTypeComplete = "complete"
	EventTypeError    = "error"
	EventTypeApproval = "approval"
	EventTypeDecision = "decision"
	EventTypeCancel   = "cancel"
)

// ProgressEvent is the transient wire-level message published for a job.
// Each publication also updates the durable job record, so a late subscriber
// can read last-known state without having observed the stream.
type ProgressEvent struct {
	Type        string          `json:"type"`
	JobID       string          `json:"jobId"`
	Status      JobStatus       `json:"status,omitempty"`
	CurrentStep string          `json:"currentStep,omitempty"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// DecisionPayload is the data attached to a decision control event
type DecisionPayload struct {
	Decision        Decision `json:"decision"`
	ItemIndices     []int    `json:"itemIndices,omitempty"`
	ExtraReferences []string `json:"extraReferences,omitempty"`
}
