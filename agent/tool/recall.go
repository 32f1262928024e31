package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

const (
	ToolMemoryRecall = "conversation_memory_recall"

	DefaultRecallTopK = 3
)

// Recaller answers memory lookups with a fixed result size. It never writes.
type Recaller struct {
	index contractx.MemoryIndex
	topK  int
}

var _ contractx.Recaller = (*Recaller)(nil)

func NewRecaller(index contractx.MemoryIndex, topK int) *Recaller {
	if topK <= 0 {
		topK = DefaultRecallTopK
	}
	return &Recaller{index: index, topK: topK}
}

func (r *Recaller) Recall(ctx context.Context, query string) ([]contractx.Recollection, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: recall query is empty", contractx.ErrValidation)
	}

	hits, err := r.index.Search(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	out := make([]contractx.Recollection, 0, len(hits))
	for _, h := range hits {
		out = append(out, contractx.Recollection{
			ThreadID:              h.ID,
			Content:               h.Content,
			ConversationTimestamp: h.ConversationTimestamp,
			Score:                 h.Score,
		})
	}
	return out, nil
}

type RecallInput struct {
	Query string `json:"query"`
}

type RecallOutput struct {
	Items []contractx.Recollection `json:"items"`
}

// NewMemoryRecallTool exposes r to a tool-calling model.
func NewMemoryRecallTool(r contractx.Recaller) tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: ToolMemoryRecall,
		Desc: "Search summaries of earlier conversations for context related to the current claim. Returns the most relevant past conversations, or none.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Desc: "Short natural language search query", Required: true},
		}),
	}
	return utils.NewTool(info, func(ctx context.Context, in *RecallInput) (*RecallOutput, error) {
		if in == nil {
			return nil, fmt.Errorf("%w: recall input is missing", contractx.ErrValidation)
		}
		items, err := r.Recall(ctx, in.Query)
		if err != nil {
			return nil, err
		}
		return &RecallOutput{Items: items}, nil
	})
}
