package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/structhub/docintake/constants"
)

// Job is one document-processing request tracked from submission to terminal
// outcome. Created by the front door in processing state; mutated exactly once
// (to completed or failed) by the orchestrator.
type Job struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	EndpointID uuid.UUID
	Status     constants.JobStatus
	TokensUsed int64
	CreatedAt  time.Time

	Endpoint *EndpointConfig
}

// EndpointConfig is the caller-defined configuration referenced by a job.
// Schema and CallbackURL are required for a job to be processable; their
// absence is a configuration error, not a transient failure.
type EndpointConfig struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Schema       map[string]any
	AnalysisMode constants.AnalysisMode
	CallbackURL  string
}

// AuditEntry is the append-only log row written once per job regardless of
// outcome. PayloadOut is the exact object sent (or attempted) to the callback.
type AuditEntry struct {
	ID         uuid.UUID
	JobID      uuid.UUID
	PayloadOut CallbackPayload
	Error      string
	CreditUse  int64
	CreatedAt  time.Time
}

// CallbackPayload is the final outcome body delivered to the caller's webhook
// and persisted verbatim in the audit log.
type CallbackPayload struct {
	Status constants.JobStatus `json:"status"`
	Data   map[string]any      `json:"data"`
	Error  *string             `json:"error"`
	Usage  Usage               `json:"usage"`
}
