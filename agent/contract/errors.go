package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	// ErrAgentUnavailable marks an upstream reasoning failure that may succeed on retry.
	ErrAgentUnavailable = errors.New("agent unavailable")
	// ErrInvalidThread marks a thread the reasoning backend does not know. Never retried.
	ErrInvalidThread = errors.New("invalid thread")

	ErrMemoryNotFound       = errors.New("memory record not found")
	ErrIncompleteFindings   = errors.New("findings incomplete")
	ErrSynthesisUnavailable = errors.New("synthesis unavailable")
	ErrOrchestrationTimeout = errors.New("orchestration timed out")
	ErrBatchInProgress      = errors.New("batch indexing already in progress")
)
