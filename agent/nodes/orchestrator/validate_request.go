package orchestratornode

import (
	"strings"
	"time"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

// Stage is reported as the graph advances so callers can track a run.
type Stage string

const (
	StageAgentsRunning Stage = "AGENTS_RUNNING"
	StageSynthesizing  Stage = "SYNTHESIZING"
)

type GraphInput struct {
	RunID   string
	Request contractx.ClaimRequest
	OnStage func(Stage)
}

type GraphOutput struct {
	Findings []contractx.AgentFinding
	Decision contractx.ClaimDecision
}

type GraphState struct {
	RunID     string
	Request   contractx.ClaimRequest
	StartedAt time.Time
	OnStage   func(Stage)

	Findings []contractx.AgentFinding
	Decision contractx.ClaimDecision
}

func (s *GraphState) enter(stage Stage) {
	if s.OnStage != nil {
		s.OnStage(stage)
	}
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	req := contractx.ClaimRequest{
		ClaimID:      strings.TrimSpace(in.Request.ClaimID),
		PolicyNumber: strings.TrimSpace(in.Request.PolicyNumber),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return &GraphState{
		RunID:     in.RunID,
		Request:   req,
		StartedAt: nowFn().UTC(),
		OnStage:   in.OnStage,
	}, nil
}
