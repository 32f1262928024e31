package specialist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
	"github.com/tanpawarit/claims-orchestrator/pkg/retryx"
)

type Options struct {
	Retry          retryx.Policy
	AttemptTimeout time.Duration
}

// specialistImpl asks one agent for its finding on a claim. Every assessment
// runs on a fresh thread so it is later indexed as its own conversation.
type specialistImpl struct {
	name        contractx.AgentName
	gateway     contractx.AgentGateway
	opts        Options
	newThreadID func() string
	runner      compose.Runnable[contractx.ClaimRequest, contractx.AgentFinding]
}

var _ contractx.Specialist = (*specialistImpl)(nil)

func newSpecialist(ctx context.Context, gateway contractx.AgentGateway, opts Options) (*specialistImpl, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway is required", contractx.ErrValidation)
	}
	s := &specialistImpl{
		name:        gateway.Name(),
		gateway:     gateway,
		opts:        opts,
		newThreadID: uuid.NewString,
	}

	runner, err := compileAssessGraph(ctx, "specialist."+s.name.Slug(), s.composeTask, s.consult, s.parse)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	s.runner = runner
	return s, nil
}

func (s *specialistImpl) Name() contractx.AgentName {
	return s.name
}

func (s *specialistImpl) Assess(ctx context.Context, req contractx.ClaimRequest) (contractx.AgentFinding, error) {
	return s.runner.Invoke(ctx, req)
}

func (s *specialistImpl) composeTask(ctx context.Context, req contractx.ClaimRequest) (*assessState, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]string{
		"claim_id":      req.ClaimID,
		"policy_number": req.PolicyNumber,
		"instructions":  instructionsFor(s.name),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal task: %v", contractx.ErrValidation, err)
	}
	return &assessState{Req: req, ThreadID: s.newThreadID(), Task: string(payload)}, nil
}

func (s *specialistImpl) consult(ctx context.Context, st *assessState) (*assessState, error) {
	reply, err := retryx.Do(ctx, s.opts.Retry, retryable(ctx), func(ctx context.Context, attempt int) (contractx.Reply, error) {
		callCtx, cancel := s.attemptContext(ctx)
		defer cancel()

		reply, err := s.gateway.Send(callCtx, st.ThreadID, st.Task)
		if err != nil {
			log.Warn().Err(err).
				Str("agent", s.name.Slug()).
				Str("claim_id", st.Req.ClaimID).
				Str("thread_id", st.ThreadID).
				Int("attempt", attempt).
				Msg("agent call failed")
		}
		return reply, err
	})
	if err != nil {
		return nil, err
	}
	st.Reply = reply
	return st, nil
}

func (s *specialistImpl) parse(ctx context.Context, st *assessState) (contractx.AgentFinding, error) {
	finding, err := parseFinding(ctx, s.name, st.Reply.Text)
	if err != nil {
		return contractx.AgentFinding{}, err
	}
	finding.ThreadID = st.ThreadID
	return finding, nil
}

func (s *specialistImpl) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.AttemptTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.AttemptTimeout)
	}
	return context.WithCancel(ctx)
}

// retryable allows another attempt for upstream failures and per-attempt
// timeouts, but not once the caller's own context is done.
func retryable(parent context.Context) retryx.Classifier {
	return func(err error) bool {
		if parent.Err() != nil {
			return false
		}
		return errors.Is(err, contractx.ErrAgentUnavailable) || errors.Is(err, context.DeadlineExceeded)
	}
}

func instructionsFor(agent contractx.AgentName) string {
	switch agent {
	case contractx.AgentClaimReviewer:
		return "Review the claim details for completeness and consistency and flag any signs of fraud."
	case contractx.AgentPolicyChecker:
		return "Check whether the policy was active and covers the claimed loss."
	case contractx.AgentRiskAnalyzer:
		return "Score the risk of paying this claim from 0 (none) to 100 (severe)."
	default:
		return "Assess the claim."
	}
}
