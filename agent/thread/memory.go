package thread

import (
	"context"
	"sort"
	"sync"
	"time"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

// MemoryStore keeps threads and transcripts in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	threads  map[string]*Thread
	messages map[string][]contractx.Message
	now      func() time.Time
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ Transcript = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:  make(map[string]*Thread),
		messages: make(map[string][]contractx.Message),
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateIfAbsent(ctx context.Context, threadID string) error {
	id, err := normalizeID(threadID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; ok {
		return nil
	}
	s.threads[id] = &Thread{ID: id, CreatedAt: s.now().UTC()}
	return nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, threadID string) error {
	id, err := normalizeID(threadID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[id]
	if !ok {
		return notFound(id)
	}
	if !th.Processed {
		th.Processed = true
		th.ProcessedAt = s.now().UTC()
	}
	return nil
}

func (s *MemoryStore) ListUnprocessed(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	pending := make([]*Thread, 0, len(s.threads))
	for _, th := range s.threads {
		if !th.Processed {
			cp := *th
			pending = append(pending, &cp)
		}
	}
	s.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	ids := make([]string, 0, len(pending))
	for _, th := range pending {
		ids = append(ids, th.ID)
	}
	return ids, nil
}

func (s *MemoryStore) Get(ctx context.Context, threadID string) (Thread, error) {
	id, err := normalizeID(threadID)
	if err != nil {
		return Thread{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[id]
	if !ok {
		return Thread{}, notFound(id)
	}
	return *th, nil
}

func (s *MemoryStore) Append(ctx context.Context, msgs ...contractx.Message) error {
	for _, m := range msgs {
		if _, err := normalizeID(m.ThreadID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages[m.ThreadID] = append(s.messages[m.ThreadID], m)
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, threadID string) ([]contractx.Message, error) {
	id, err := normalizeID(threadID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contractx.Message(nil), s.messages[id]...), nil
}
