package orchestratornode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

// DispatchAgents asks every specialist for its finding concurrently and waits
// for all of them. The first failure cancels the others and fails the run.
func DispatchAgents(ctx context.Context, in *GraphState, models contractx.Registry) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	in.enter(StageAgentsRunning)

	specialists := []contractx.Specialist{
		models.ClaimReviewer(),
		models.PolicyChecker(),
		models.RiskAnalyzer(),
	}
	findings := make([]contractx.AgentFinding, len(specialists))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specialists {
		g.Go(func() error {
			started := time.Now()
			finding, err := spec.Assess(gctx, in.Request)
			if err != nil {
				return fmt.Errorf("%s: %w", spec.Name(), err)
			}
			log.Debug().
				Str("run_id", in.RunID).
				Str("agent", spec.Name().Slug()).
				Dur("elapsed", time.Since(started)).
				Msg("finding received")
			findings[i] = finding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrSynthesisUnavailable, err)
	}

	in.Findings = findings
	return in, nil
}
