package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

type Config struct {
	StoragePath   string  `split_words:"true"`
	Collection    string  `default:"conversations"`
	TopK          int     `split_words:"true" default:"3"`
	MinRelevance  float32 `split_words:"true" default:"0.3"`
	CandidatePool int     `split_words:"true" default:"20"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Collection) == "" {
		return errors.New("memory collection name is required")
	}
	if c.TopK <= 0 {
		return errors.New("memory top k must be positive")
	}
	if c.MinRelevance < 0 || c.MinRelevance > 1 {
		return errors.New("memory min relevance must be within [0,1]")
	}
	return nil
}

// EmbedFunc turns text into a vector. It matches chromem.EmbeddingFunc.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Index is the searchable store of conversation memories, one document per thread.
type Index struct {
	collection *chromem.Collection
	cfg        Config
}

var _ contractx.MemoryIndex = (*Index)(nil)

// NewIndex opens the collection, persisted on disk when cfg.StoragePath is set.
func NewIndex(cfg Config, embed EmbedFunc) (*Index, error) {
	if embed == nil {
		return nil, errors.New("memory index requires an embedding function")
	}
	if cfg.Collection == "" {
		cfg.Collection = "conversations"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.CandidatePool < cfg.TopK {
		cfg.CandidatePool = cfg.TopK
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.StoragePath != "" {
		if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
			return nil, fmt.Errorf("create memory directory: %w", err)
		}
		db, err = chromem.NewPersistentDB(cfg.StoragePath, false)
		if err != nil {
			return nil, fmt.Errorf("open memory db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(cfg.Collection, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("open memory collection: %w", err)
	}
	return &Index{collection: col, cfg: cfg}, nil
}

func (i *Index) TopK() int {
	return i.cfg.TopK
}

// Upsert writes the record, replacing any earlier record for the same thread.
func (i *Index) Upsert(ctx context.Context, rec contractx.MemoryRecord) error {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return fmt.Errorf("%w: memory record id is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(rec.Content) == "" {
		return fmt.Errorf("%w: memory record %s has no content", contractx.ErrValidation, rec.ID)
	}
	if rec.ContentLength == 0 {
		rec.ContentLength = len(rec.Content)
	}

	err := i.collection.AddDocument(ctx, chromem.Document{
		ID:       rec.ID,
		Content:  rec.Content,
		Metadata: toMetadata(rec),
	})
	if err != nil {
		return fmt.Errorf("upsert memory %s: %w", rec.ID, err)
	}
	return nil
}

func (i *Index) Get(ctx context.Context, id string) (contractx.MemoryRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return contractx.MemoryRecord{}, fmt.Errorf("%w: memory id is empty", contractx.ErrValidation)
	}
	doc, err := i.collection.GetByID(ctx, id)
	if err != nil {
		return contractx.MemoryRecord{}, fmt.Errorf("%w: id=%s", contractx.ErrMemoryNotFound, id)
	}
	return fromMetadata(doc.ID, doc.Content, doc.Metadata), nil
}

// Search returns at most topK records whose similarity clears the relevance floor,
// most similar first and, on ties, most recent conversation first.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]contractx.ScoredRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is empty", contractx.ErrValidation)
	}
	if topK <= 0 {
		topK = i.cfg.TopK
	}

	n := max(i.cfg.CandidatePool, topK)
	if count := i.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return []contractx.ScoredRecord{}, nil
	}

	results, err := i.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}

	out := make([]contractx.ScoredRecord, 0, len(results))
	for _, r := range results {
		if r.Similarity < i.cfg.MinRelevance {
			continue
		}
		out = append(out, contractx.ScoredRecord{
			MemoryRecord: fromMetadata(r.ID, r.Content, r.Metadata),
			Score:        r.Similarity,
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].ConversationTimestamp.After(out[b].ConversationTimestamp)
	})
	if len(out) > topK {
		out = out[:topK]
	}

	log.Debug().
		Str("query", query).
		Int("candidates", len(results)).
		Int("returned", len(out)).
		Msg("memory search")
	return out, nil
}
