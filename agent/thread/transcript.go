package thread

import (
	"context"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

// Transcript stores the messages exchanged on a thread, oldest first.
type Transcript interface {
	Append(ctx context.Context, msgs ...contractx.Message) error
	List(ctx context.Context, threadID string) ([]contractx.Message, error)
}
