package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
	memoryx "github.com/tanpawarit/claims-orchestrator/agent/memory"
	threadx "github.com/tanpawarit/claims-orchestrator/agent/thread"
)

type Config struct {
	RedisURL     string        `split_words:"true"`
	LeaseKey     string        `split_words:"true" default:"claims:indexer:lease"`
	LeaseTTL     time.Duration `split_words:"true" default:"15m"`
	ItemTimeout  time.Duration `split_words:"true" default:"60s"`
	ScheduleCron string        `split_words:"true" default:"*/30 * * * *"`
}

type Outcome string

const (
	OutcomeIndexed Outcome = "indexed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type ItemResult struct {
	ThreadID string  `json:"thread_id"`
	Outcome  Outcome `json:"outcome"`
	// Vanished is set when the thread disappeared between upsert and mark.
	// Such items are reported as skipped; their memory record is kept.
	Vanished bool   `json:"vanished,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Candidates int          `json:"candidates"`
	Indexed    int          `json:"indexed"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Vanished   int          `json:"vanished"`
	Items      []ItemResult `json:"items"`
}

func (r *Report) add(item ItemResult) {
	r.Items = append(r.Items, item)
	switch item.Outcome {
	case OutcomeIndexed:
		r.Indexed++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	if item.Vanished {
		r.Vanished++
	}
}

// Indexer copies finished conversations into the memory index and marks their
// threads processed. A record is always written before its thread is marked,
// so a crash in between only causes a harmless re-index on the next run.
type Indexer struct {
	threads threadx.Store
	history contractx.HistoryReader
	index   contractx.MemoryIndex
	lease   Lease
	cfg     Config
	now     func() time.Time
}

// New builds an Indexer. lease may be nil when only one run can ever happen at a time.
func New(threads threadx.Store, history contractx.HistoryReader, index contractx.MemoryIndex, lease Lease, cfg Config) (*Indexer, error) {
	if threads == nil || history == nil || index == nil {
		return nil, errors.New("indexer requires a thread store, history reader and memory index")
	}
	return &Indexer{
		threads: threads,
		history: history,
		index:   index,
		lease:   lease,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// Run indexes every thread that is unprocessed when the run starts. One bad
// thread never aborts the batch; cancellation stops it between threads.
func (ix *Indexer) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: ix.now().UTC(), Items: []ItemResult{}}

	if ix.lease != nil {
		release, ok, err := ix.lease.Acquire(ctx)
		if err != nil {
			return report, err
		}
		if !ok {
			return report, contractx.ErrBatchInProgress
		}
		defer func() {
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(relCtx); err != nil {
				log.Warn().Err(err).Msg("release indexer lease")
			}
		}()
	}

	candidates, err := ix.threads.ListUnprocessed(ctx)
	if err != nil {
		return report, fmt.Errorf("list unprocessed threads: %w", err)
	}
	report.Candidates = len(candidates)
	log.Info().Int("candidates", len(candidates)).Msg("indexing conversations")

	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = ix.now().UTC()
			log.Warn().Err(err).Int("remaining", len(candidates)-len(report.Items)).Msg("indexing interrupted")
			return report, err
		}
		report.add(ix.indexOne(ctx, id))
	}

	report.FinishedAt = ix.now().UTC()
	log.Info().
		Int("indexed", report.Indexed).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("vanished", report.Vanished).
		Msg("indexing finished")
	return report, nil
}

func (ix *Indexer) indexOne(ctx context.Context, threadID string) ItemResult {
	if ix.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.cfg.ItemTimeout)
		defer cancel()
	}
	logger := log.With().Str("thread_id", threadID).Logger()

	failed := func(stage string, err error) ItemResult {
		logger.Error().Err(err).Str("stage", stage).Msg("thread not indexed")
		return ItemResult{ThreadID: threadID, Outcome: OutcomeFailed, Error: fmt.Sprintf("%s: %v", stage, err)}
	}

	msgs, err := ix.history.FetchHistory(ctx, threadID)
	if err != nil {
		return failed("fetch history", err)
	}
	content := memoryx.FormatMessages(msgs)
	if content == "" {
		logger.Debug().Msg("thread has no messages yet")
		return ItemResult{ThreadID: threadID, Outcome: OutcomeSkipped}
	}

	now := ix.now().UTC()
	conversationAt := memoryx.EarliestTimestamp(msgs)
	if conversationAt.IsZero() {
		conversationAt = ix.threadStart(ctx, threadID, now)
	}

	rec := contractx.MemoryRecord{
		ID:                    threadID,
		Content:               content,
		ConversationTimestamp: conversationAt,
		ProcessedTimestamp:    now,
		MessageCount:          len(msgs),
		ContentLength:         len(content),
	}
	if err := ix.index.Upsert(ctx, rec); err != nil {
		return failed("upsert memory", err)
	}

	if err := ix.threads.MarkProcessed(ctx, threadID); err != nil {
		if errors.Is(err, threadx.ErrThreadNotFound) {
			logger.Warn().Msg("thread vanished after its memory was written")
			return ItemResult{ThreadID: threadID, Outcome: OutcomeSkipped, Vanished: true}
		}
		return failed("mark processed", err)
	}

	logger.Debug().Int("messages", len(msgs)).Msg("thread indexed")
	return ItemResult{ThreadID: threadID, Outcome: OutcomeIndexed}
}

// threadStart is the thread's creation time, or fallback when the store has none.
func (ix *Indexer) threadStart(ctx context.Context, threadID string, fallback time.Time) time.Time {
	th, err := ix.threads.Get(ctx, threadID)
	if err != nil || th.CreatedAt.IsZero() {
		return fallback
	}
	return th.CreatedAt.UTC()
}
