package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

type reviewerOutput struct {
	FraudFlag       *bool    `json:"fraud_flag"`
	Inconsistencies []string `json:"inconsistencies,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Rationale       string   `json:"rationale"`
}

type policyOutput struct {
	CoverageValid *bool  `json:"coverage_valid"`
	Notes         string `json:"notes,omitempty"`
	Rationale     string `json:"rationale"`
}

type riskOutput struct {
	RiskScore *float64 `json:"risk_score"`
	RiskLevel string   `json:"risk_level,omitempty"`
	Rationale string   `json:"rationale"`
}

// parseFinding decodes an agent reply into the finding for that agent.
func parseFinding(ctx context.Context, agent contractx.AgentName, reply string) (contractx.AgentFinding, error) {
	msg := schema.AssistantMessage(stripCodeFence(reply), nil)
	finding := contractx.AgentFinding{Agent: agent}

	switch agent {
	case contractx.AgentClaimReviewer:
		out, err := decode[reviewerOutput](ctx, agent, msg)
		if err != nil {
			return contractx.AgentFinding{}, err
		}
		if out.FraudFlag == nil {
			return contractx.AgentFinding{}, fmt.Errorf("%w: agent=%s: fraud_flag is missing", contractx.ErrSchemaViolation, agent)
		}
		finding.ClaimReview = &contractx.ClaimReview{
			FraudFlag:       *out.FraudFlag,
			Inconsistencies: compact(out.Inconsistencies),
			Summary:         strings.TrimSpace(out.Summary),
		}
		finding.Justification = out.Rationale

	case contractx.AgentPolicyChecker:
		out, err := decode[policyOutput](ctx, agent, msg)
		if err != nil {
			return contractx.AgentFinding{}, err
		}
		if out.CoverageValid == nil {
			return contractx.AgentFinding{}, fmt.Errorf("%w: agent=%s: coverage_valid is missing", contractx.ErrSchemaViolation, agent)
		}
		finding.PolicyCheck = &contractx.PolicyCheck{
			CoverageValid: *out.CoverageValid,
			Notes:         strings.TrimSpace(out.Notes),
		}
		finding.Justification = out.Rationale

	case contractx.AgentRiskAnalyzer:
		out, err := decode[riskOutput](ctx, agent, msg)
		if err != nil {
			return contractx.AgentFinding{}, err
		}
		if out.RiskScore == nil {
			return contractx.AgentFinding{}, fmt.Errorf("%w: agent=%s: risk_score is missing", contractx.ErrSchemaViolation, agent)
		}
		if *out.RiskScore < 0 || *out.RiskScore > 100 {
			return contractx.AgentFinding{}, fmt.Errorf("%w: agent=%s: risk_score=%v out of range", contractx.ErrSchemaViolation, agent, *out.RiskScore)
		}
		finding.RiskAnalysis = &contractx.RiskAnalysis{
			RiskScore: *out.RiskScore,
			RiskLevel: strings.ToUpper(strings.TrimSpace(out.RiskLevel)),
		}
		finding.Justification = out.Rationale

	default:
		return contractx.AgentFinding{}, fmt.Errorf("%w: unknown agent %q", contractx.ErrValidation, agent)
	}

	finding.Justification = strings.TrimSpace(finding.Justification)
	if finding.Justification == "" {
		return contractx.AgentFinding{}, fmt.Errorf("%w: agent=%s: rationale is empty", contractx.ErrSchemaViolation, agent)
	}
	return finding, nil
}

func decode[T any](ctx context.Context, agent contractx.AgentName, msg *schema.Message) (T, error) {
	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})
	out, err := parser.Parse(ctx, msg)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: agent=%s: %v", contractx.ErrSchemaViolation, agent, err)
	}
	return out, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if v := strings.TrimSpace(it); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
