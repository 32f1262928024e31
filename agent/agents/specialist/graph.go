package specialist

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

type assessState struct {
	Req      contractx.ClaimRequest
	ThreadID string
	Task     string
	Reply    contractx.Reply
}

// compileAssessGraph wires compose_task -> consult_agent -> parse_finding.
func compileAssessGraph(
	ctx context.Context,
	name string,
	composeTask func(context.Context, contractx.ClaimRequest) (*assessState, error),
	consult func(context.Context, *assessState) (*assessState, error),
	parse func(context.Context, *assessState) (contractx.AgentFinding, error),
) (compose.Runnable[contractx.ClaimRequest, contractx.AgentFinding], error) {
	graph := compose.NewGraph[contractx.ClaimRequest, contractx.AgentFinding]()

	if err := graph.AddLambdaNode("compose_task", compose.InvokableLambda(composeTask)); err != nil {
		return nil, fmt.Errorf("add compose_task node: %w", err)
	}
	if err := graph.AddLambdaNode("consult_agent", compose.InvokableLambda(consult)); err != nil {
		return nil, fmt.Errorf("add consult_agent node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_finding", compose.InvokableLambda(parse)); err != nil {
		return nil, fmt.Errorf("add parse_finding node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "compose_task"); err != nil {
		return nil, fmt.Errorf("add edge start->compose_task: %w", err)
	}
	if err := graph.AddEdge("compose_task", "consult_agent"); err != nil {
		return nil, fmt.Errorf("add edge compose_task->consult_agent: %w", err)
	}
	if err := graph.AddEdge("consult_agent", "parse_finding"); err != nil {
		return nil, fmt.Errorf("add edge consult_agent->parse_finding: %w", err)
	}
	if err := graph.AddEdge("parse_finding", compose.END); err != nil {
		return nil, fmt.Errorf("add edge parse_finding->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(name))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return runner, nil
}
