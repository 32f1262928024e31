package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
	nodex "github.com/tanpawarit/claims-orchestrator/agent/nodes/orchestrator"
)

type Config struct {
	RiskThreshold  float64       `split_words:"true" default:"70"`
	RequestTimeout time.Duration `split_words:"true" default:"300s"`
}

// Validate rejects a threshold outside (0, 100]. Scores are compared with <,
// so no valid threshold silently disables approval.
func (c Config) Validate() error {
	if c.RiskThreshold <= 0 || c.RiskThreshold > 100 {
		return fmt.Errorf("%w: risk threshold must be within (0, 100], got %v", contractx.ErrValidation, c.RiskThreshold)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: request timeout must not be negative", contractx.ErrValidation)
	}
	return nil
}

type RunState string

const (
	RunPending       RunState = "PENDING"
	RunAgentsRunning RunState = RunState(nodex.StageAgentsRunning)
	RunSynthesizing  RunState = RunState(nodex.StageSynthesizing)
	RunDone          RunState = "DONE"
	RunFailed        RunState = "FAILED"
)

// Run records one adjudication from request to decision.
type Run struct {
	ID           string
	ClaimID      string
	PolicyNumber string
	State        RunState
	Findings     []contractx.AgentFinding
	Decision     contractx.ClaimDecision
	Err          error

	mu sync.Mutex
}

func (r *Run) setState(s RunState) {
	r.mu.Lock()
	r.State = s
	r.mu.Unlock()
}

type Orchestrator struct {
	models contractx.Registry
	cfg    Config

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now      func() time.Time
	newRunID func() string
}

func New(models contractx.Registry, cfg Config) (*Orchestrator, error) {
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 300 * time.Second
	}

	o := &Orchestrator{
		models:   models,
		cfg:      cfg,
		now:      time.Now,
		newRunID: uuid.NewString,
	}

	graphRunner, err := o.compileProcessClaimGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Process adjudicates one claim. The returned run is never nil; on failure its
// state is FAILED and Err holds the returned error.
func (o *Orchestrator) Process(ctx context.Context, req contractx.ClaimRequest) (*Run, error) {
	run := &Run{
		ID:           o.newRunID(),
		ClaimID:      req.ClaimID,
		PolicyNumber: req.PolicyNumber,
		State:        RunPending,
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	out, err := o.graphRunner.Invoke(runCtx, nodex.GraphInput{
		RunID:   run.ID,
		Request: req,
		OnStage: func(s nodex.Stage) { run.setState(RunState(s)) },
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: run=%s exceeded %s", contractx.ErrOrchestrationTimeout, run.ID, o.cfg.RequestTimeout)
		}
		run.setState(RunFailed)
		run.Err = err

		log.Error().Err(err).
			Str("run_id", run.ID).
			Str("claim_id", req.ClaimID).
			Msg("claim adjudication failed")
		return run, err
	}

	run.Findings = out.Findings
	run.Decision = out.Decision
	run.setState(RunDone)
	return run, nil
}

func (o *Orchestrator) ProcessClaim(ctx context.Context, req contractx.ClaimRequest) (contractx.ClaimDecision, error) {
	run, err := o.Process(ctx, req)
	if err != nil {
		return contractx.ClaimDecision{}, err
	}
	return run.Decision, nil
}
