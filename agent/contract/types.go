package contract

import (
	"fmt"
	"strings"
	"time"
)

type AgentName string

const (
	AgentClaimReviewer AgentName = "Claim Reviewer"
	AgentPolicyChecker AgentName = "Policy Checker"
	AgentRiskAnalyzer  AgentName = "Risk Analyzer"
)

// AgentOrder is the fixed order findings are cited in a justification.
var AgentOrder = []AgentName{
	AgentClaimReviewer,
	AgentPolicyChecker,
	AgentRiskAnalyzer,
}

// Slug is a config- and log-friendly form of the agent name.
func (n AgentName) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(n)), " ", "_")
}

type ClaimRequest struct {
	ClaimID      string `json:"claimId"`
	PolicyNumber string `json:"policyNumber"`
}

func (r ClaimRequest) Validate() error {
	if strings.TrimSpace(r.ClaimID) == "" {
		return fmt.Errorf("%w: claim id is required", ErrValidation)
	}
	if strings.TrimSpace(r.PolicyNumber) == "" {
		return fmt.Errorf("%w: policy number is required", ErrValidation)
	}
	return nil
}

type ClaimReview struct {
	FraudFlag       bool     `json:"fraud_flag"`
	Inconsistencies []string `json:"inconsistencies,omitempty"`
	Summary         string   `json:"summary,omitempty"`
}

type PolicyCheck struct {
	CoverageValid bool   `json:"coverage_valid"`
	Notes         string `json:"notes,omitempty"`
}

type RiskAnalysis struct {
	RiskScore float64 `json:"risk_score"`
	RiskLevel string  `json:"risk_level,omitempty"`
}

// AgentFinding is one agent's structured result for a single request.
// Exactly one of the typed results is set, matching Agent.
type AgentFinding struct {
	Agent         AgentName     `json:"agent"`
	ThreadID      string        `json:"thread_id,omitempty"`
	ClaimReview   *ClaimReview  `json:"claim_review,omitempty"`
	PolicyCheck   *PolicyCheck  `json:"policy_check,omitempty"`
	RiskAnalysis  *RiskAnalysis `json:"risk_analysis,omitempty"`
	Justification string        `json:"justification"`
}

type Decision string

const (
	DecisionApproved    Decision = "APPROVED"
	DecisionNotApproved Decision = "NOT_APPROVED"
)

type ClaimDecision struct {
	Decision      Decision `json:"decision"`
	Justification string   `json:"justification"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ThreadID  string    `json:"thread_id"`
	Role      Role      `json:"role"`
	Agent     AgentName `json:"agent,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Reply struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type MemoryRecord struct {
	ID                    string    `json:"id"`
	Content               string    `json:"content"`
	ConversationTimestamp time.Time `json:"conversation_timestamp"`
	ProcessedTimestamp    time.Time `json:"processed_timestamp"`
	MessageCount          int       `json:"message_count"`
	ContentLength         int       `json:"content_length"`
}

type ScoredRecord struct {
	MemoryRecord
	Score float32 `json:"score"`
}

// Recollection is what the memory tool hands back to an agent.
type Recollection struct {
	ThreadID              string    `json:"thread_id"`
	Content               string    `json:"content"`
	ConversationTimestamp time.Time `json:"conversation_timestamp"`
	Score                 float32   `json:"score"`
}
