package thread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

func TestMemoryStoreCreateIfAbsentIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.CreateIfAbsent(ctx, "t-1")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CreateIfAbsent() error = %v", err)
		}
	}

	ids, err := store.ListUnprocessed(ctx)
	if err != nil {
		t.Fatalf("ListUnprocessed() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "t-1" {
		t.Fatalf("ListUnprocessed() = %v, want [t-1]", ids)
	}
}

func TestMemoryStoreMarkProcessedNeverReverts(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	if err := store.CreateIfAbsent(ctx, "t-1"); err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if err := store.MarkProcessed(ctx, "t-1"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}

	store.now = func() time.Time { return base.Add(time.Hour) }
	if err := store.CreateIfAbsent(ctx, "t-1"); err != nil {
		t.Fatalf("CreateIfAbsent() again error = %v", err)
	}
	if err := store.MarkProcessed(ctx, "t-1"); err != nil {
		t.Fatalf("MarkProcessed() again error = %v", err)
	}

	th, err := store.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !th.Processed {
		t.Fatalf("thread reverted to unprocessed")
	}
	if !th.ProcessedAt.Equal(base) {
		t.Fatalf("ProcessedAt = %v, want %v", th.ProcessedAt, base)
	}
	if !th.CreatedAt.Equal(base) {
		t.Fatalf("CreatedAt = %v, want %v", th.CreatedAt, base)
	}

	ids, err := store.ListUnprocessed(ctx)
	if err != nil {
		t.Fatalf("ListUnprocessed() error = %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ListUnprocessed() = %v, want empty", ids)
	}
}

func TestMemoryStoreMarkProcessedUnknownThread(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	err := store.MarkProcessed(context.Background(), "missing")
	if !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("MarkProcessed() error = %v, want ErrThreadNotFound", err)
	}
}

func TestMemoryStoreRejectsBlankID(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if err := store.CreateIfAbsent(context.Background(), "  "); !errors.Is(err, ErrInvalidThreadID) {
		t.Fatalf("CreateIfAbsent() error = %v, want ErrInvalidThreadID", err)
	}
}

func TestMemoryStoreListUnprocessedOldestFirst(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		at := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return at }
		if err := store.CreateIfAbsent(ctx, id); err != nil {
			t.Fatalf("CreateIfAbsent(%s) error = %v", id, err)
		}
	}

	ids, err := store.ListUnprocessed(ctx)
	if err != nil {
		t.Fatalf("ListUnprocessed() error = %v", err)
	}
	want := []string{"c", "a", "b"}
	if len(ids) != len(want) {
		t.Fatalf("ListUnprocessed() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ListUnprocessed()[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestMemoryStoreTranscriptKeepsOrder(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.Append(ctx,
		contractx.Message{ThreadID: "t-1", Role: contractx.RoleUser, Content: "hello", CreatedAt: now},
		contractx.Message{ThreadID: "t-1", Role: contractx.RoleAssistant, Content: "hi", CreatedAt: now.Add(time.Second)},
	)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	msgs, err := store.List(ctx, "t-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hello" || msgs[1].Content != "hi" {
		t.Fatalf("List() = %#v", msgs)
	}

	msgs[0].Content = "mutated"
	again, _ := store.List(ctx, "t-1")
	if again[0].Content != "hello" {
		t.Fatalf("List() returned shared backing slice")
	}
}
