package prompt

import (
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

func TestLoadPromptSetCoversEveryAgent(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	for _, agent := range contractx.AgentOrder {
		text, err := set.For(agent)
		if err != nil {
			t.Fatalf("For(%s) error = %v", agent, err)
		}
		if !strings.Contains(text, "rationale") {
			t.Fatalf("prompt for %s does not ask for a rationale", agent)
		}
	}
}

func TestPromptSetForUnknownAgent(t *testing.T) {
	t.Parallel()

	_, err := LoadPromptSet().For(contractx.AgentName("Auditor"))
	if !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("For() error = %v, want ErrPromptMissing", err)
	}
}
