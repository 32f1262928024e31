package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

// Synthesize merges one finding per agent into a decision. It is pure: equal
// inputs always give equal outputs, whatever order the findings arrive in.
//
// A claim is approved only when coverage is valid, the risk score is below
// riskThreshold and the reviewer raised neither a fraud flag nor an
// inconsistency.
func Synthesize(findings []contractx.AgentFinding, riskThreshold float64) (contractx.ClaimDecision, error) {
	byAgent := make(map[contractx.AgentName]contractx.AgentFinding, len(findings))
	for _, f := range findings {
		if _, dup := byAgent[f.Agent]; dup {
			return contractx.ClaimDecision{}, fmt.Errorf("%w: duplicate finding from %s", contractx.ErrIncompleteFindings, f.Agent)
		}
		byAgent[f.Agent] = f
	}
	if len(byAgent) != len(contractx.AgentOrder) {
		return contractx.ClaimDecision{}, fmt.Errorf("%w: got %d findings, want %d", contractx.ErrIncompleteFindings, len(byAgent), len(contractx.AgentOrder))
	}

	review := byAgent[contractx.AgentClaimReviewer].ClaimReview
	policy := byAgent[contractx.AgentPolicyChecker].PolicyCheck
	risk := byAgent[contractx.AgentRiskAnalyzer].RiskAnalysis
	if review == nil || policy == nil || risk == nil {
		return contractx.ClaimDecision{}, fmt.Errorf("%w: a finding is missing its structured result", contractx.ErrIncompleteFindings)
	}

	approved := policy.CoverageValid &&
		risk.RiskScore < riskThreshold &&
		!review.FraudFlag &&
		len(review.Inconsistencies) == 0

	decision := contractx.DecisionNotApproved
	if approved {
		decision = contractx.DecisionApproved
	}

	parts := make([]string, 0, len(contractx.AgentOrder))
	for _, agent := range contractx.AgentOrder {
		parts = append(parts, string(agent)+": "+strings.TrimSpace(byAgent[agent].Justification))
	}

	return contractx.ClaimDecision{
		Decision:      decision,
		Justification: strings.Join(parts, "\n\n"),
	}, nil
}

func SynthesizeState(in *GraphState, riskThreshold float64) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	in.enter(StageSynthesizing)

	decision, err := Synthesize(in.Findings, riskThreshold)
	if err != nil {
		return nil, err
	}
	in.Decision = decision
	return in, nil
}
