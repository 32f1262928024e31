package tool

import (
	"github.com/cloudwego/eino/components/tool"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

// Catalog hands each agent the tools it may call.
type Catalog struct {
	recaller contractx.Recaller
}

func NewCatalog(recaller contractx.Recaller) *Catalog {
	return &Catalog{recaller: recaller}
}

// BuildForAgent returns the tools bound to agent. Only the Claim Reviewer can
// recall past conversations.
func (c *Catalog) BuildForAgent(agent contractx.AgentName) []tool.InvokableTool {
	switch agent {
	case contractx.AgentClaimReviewer:
		if c == nil || c.recaller == nil {
			return nil
		}
		return []tool.InvokableTool{NewMemoryRecallTool(c.recaller)}
	default:
		return nil
	}
}
