package thread

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrInvalidThreadID = errors.New("thread id is empty")
)

// Thread is the lifecycle record of one conversation.
type Thread struct {
	ID          string    `json:"id"`
	Processed   bool      `json:"processed"`
	CreatedAt   time.Time `json:"created_at"`
	ProcessedAt time.Time `json:"processed_at,omitempty"`
}

// Store tracks which conversations have been indexed into memory.
//
// CreateIfAbsent must be safe to call concurrently for the same id: both calls
// succeed and exactly one record exists afterwards. Processed never reverts.
type Store interface {
	CreateIfAbsent(ctx context.Context, threadID string) error
	MarkProcessed(ctx context.Context, threadID string) error
	ListUnprocessed(ctx context.Context) ([]string, error)
	Get(ctx context.Context, threadID string) (Thread, error)
}

func normalizeID(threadID string) (string, error) {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return "", ErrInvalidThreadID
	}
	return id, nil
}

func notFound(threadID string) error {
	return fmt.Errorf("%w: id=%s", ErrThreadNotFound, threadID)
}
