package specialist

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
	gatewayx "github.com/tanpawarit/claims-orchestrator/agent/gateway"
	llmx "github.com/tanpawarit/claims-orchestrator/agent/llm"
	promptx "github.com/tanpawarit/claims-orchestrator/agent/prompt"
	threadx "github.com/tanpawarit/claims-orchestrator/agent/thread"
	toolx "github.com/tanpawarit/claims-orchestrator/agent/tool"
)

type registryImpl struct {
	claimReviewer contractx.Specialist
	policyChecker contractx.Specialist
	riskAnalyzer  contractx.Specialist
}

func (r *registryImpl) ClaimReviewer() contractx.Specialist {
	return r.claimReviewer
}

func (r *registryImpl) PolicyChecker() contractx.Specialist {
	return r.policyChecker
}

func (r *registryImpl) RiskAnalyzer() contractx.Specialist {
	return r.riskAnalyzer
}

type Deps struct {
	Threads       threadx.Store
	Transcript    threadx.Transcript
	Catalog       *toolx.Catalog
	MaxToolRounds int
	Options       Options
}

// NewRegistry builds one gateway and specialist per agent, each on its own model.
func NewRegistry(ctx context.Context, cfg llmx.Config, deps Deps) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()
	gateways := make([]contractx.AgentGateway, 0, len(contractx.AgentOrder))
	for _, agent := range contractx.AgentOrder {
		modelCfg := cfg.OpenRouterFor(agent)
		chatModel, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, agent.Slug(), err)
		}
		systemPrompt, err := prompts.For(agent)
		if err != nil {
			return nil, err
		}

		gw, err := gatewayx.New(ctx, gatewayx.Config{
			Name:          agent,
			Model:         chatModel,
			SystemPrompt:  systemPrompt,
			Tools:         deps.Catalog.BuildForAgent(agent),
			Threads:       deps.Threads,
			Transcript:    deps.Transcript,
			MaxToolRounds: deps.MaxToolRounds,
		})
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gw)
	}

	return NewRegistryFromGateways(ctx, deps.Options, gateways...)
}

// NewRegistryFromGateways wraps ready-made gateways. Exactly one gateway per
// agent is required.
func NewRegistryFromGateways(ctx context.Context, opts Options, gateways ...contractx.AgentGateway) (contractx.Registry, error) {
	byName := make(map[contractx.AgentName]contractx.Specialist, len(gateways))
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		if _, dup := byName[gw.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate gateway for %s", contractx.ErrValidation, gw.Name())
		}
		spec, err := newSpecialist(ctx, gw, opts)
		if err != nil {
			return nil, err
		}
		byName[gw.Name()] = spec
	}

	for _, agent := range contractx.AgentOrder {
		if byName[agent] == nil {
			return nil, fmt.Errorf("%w: missing gateway for %s", contractx.ErrValidation, agent)
		}
	}

	return &registryImpl{
		claimReviewer: byName[contractx.AgentClaimReviewer],
		policyChecker: byName[contractx.AgentPolicyChecker],
		riskAnalyzer:  byName[contractx.AgentRiskAnalyzer],
	}, nil
}
