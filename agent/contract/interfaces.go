package contract

import "context"

// Specialist produces one finding for a claim.
type Specialist interface {
	Name() AgentName
	Assess(ctx context.Context, req ClaimRequest) (AgentFinding, error)
}

type Registry interface {
	ClaimReviewer() Specialist
	PolicyChecker() Specialist
	RiskAnalyzer() Specialist
}

// HistoryReader returns a thread's messages, oldest first.
type HistoryReader interface {
	FetchHistory(ctx context.Context, threadID string) ([]Message, error)
}

// AgentGateway is the capability boundary around one reasoning agent.
type AgentGateway interface {
	HistoryReader
	Name() AgentName
	Send(ctx context.Context, threadID string, message string) (Reply, error)
}

type MemoryIndex interface {
	Upsert(ctx context.Context, record MemoryRecord) error
	Get(ctx context.Context, id string) (MemoryRecord, error)
	Search(ctx context.Context, query string, topK int) ([]ScoredRecord, error)
}

type Recaller interface {
	Recall(ctx context.Context, query string) ([]Recollection, error)
}
