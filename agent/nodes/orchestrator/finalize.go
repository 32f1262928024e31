package orchestratornode

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

func Finalize(in *GraphState, nowFn func() time.Time) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Decision.Decision == "" {
		return GraphOutput{}, fmt.Errorf("%w: decision is empty", contractx.ErrIncompleteFindings)
	}

	log.Info().
		Str("run_id", in.RunID).
		Str("claim_id", in.Request.ClaimID).
		Str("decision", string(in.Decision.Decision)).
		Dur("elapsed", nowFn().UTC().Sub(in.StartedAt)).
		Msg("claim adjudicated")

	return GraphOutput{
		Findings: in.Findings,
		Decision: in.Decision,
	}, nil
}
