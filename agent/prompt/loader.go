package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

var (
	//go:embed template/claim_reviewer.txt
	claimReviewerRaw string

	//go:embed template/policy_checker.txt
	policyCheckerRaw string

	//go:embed template/risk_analyzer.txt
	riskAnalyzerRaw string
)

// PromptSet holds the system prompt of each agent.
type PromptSet struct {
	ClaimReviewer string
	PolicyChecker string
	RiskAnalyzer  string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{
		ClaimReviewer: strings.TrimSpace(claimReviewerRaw),
		PolicyChecker: strings.TrimSpace(policyCheckerRaw),
		RiskAnalyzer:  strings.TrimSpace(riskAnalyzerRaw),
	}
}

// For returns the system prompt of the named agent.
func (p PromptSet) For(agent contractx.AgentName) (string, error) {
	var text string
	switch agent {
	case contractx.AgentClaimReviewer:
		text = p.ClaimReviewer
	case contractx.AgentPolicyChecker:
		text = p.PolicyChecker
	case contractx.AgentRiskAnalyzer:
		text = p.RiskAnalyzer
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: agent=%s", contractx.ErrPromptMissing, agent)
	}
	return text, nil
}
