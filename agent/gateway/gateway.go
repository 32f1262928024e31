package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
	threadx "github.com/tanpawarit/claims-orchestrator/agent/thread"
)

const defaultMaxToolRounds = 4

type Config struct {
	Name          contractx.AgentName
	Model         einomodel.ToolCallingChatModel
	SystemPrompt  string
	Tools         []tool.InvokableTool
	Threads       threadx.Store
	Transcript    threadx.Transcript
	MaxToolRounds int
}

// Gateway sends messages into a thread of one reasoning agent and keeps the
// thread's lifecycle record and transcript up to date.
type Gateway struct {
	name          contractx.AgentName
	model         einomodel.ToolCallingChatModel
	systemPrompt  string
	tools         map[string]tool.InvokableTool
	threads       threadx.Store
	transcript    threadx.Transcript
	maxToolRounds int
	now           func() time.Time
}

var _ contractx.AgentGateway = (*Gateway)(nil)

func New(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("%w: chat model is required for agent=%s", contractx.ErrValidation, cfg.Name)
	}
	if cfg.Threads == nil || cfg.Transcript == nil {
		return nil, fmt.Errorf("%w: thread store and transcript are required", contractx.ErrValidation)
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		return nil, fmt.Errorf("%w: agent=%s", contractx.ErrPromptMissing, cfg.Name)
	}

	chatModel := cfg.Model
	tools := make(map[string]tool.InvokableTool, len(cfg.Tools))
	if len(cfg.Tools) > 0 {
		infos := make([]*schema.ToolInfo, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			info, err := t.Info(ctx)
			if err != nil {
				return nil, fmt.Errorf("read tool info: %w", err)
			}
			tools[info.Name] = t
			infos = append(infos, info)
		}
		bound, err := cfg.Model.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools for agent=%s: %v", contractx.ErrModelInvoke, cfg.Name, err)
		}
		chatModel = bound
	}

	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}

	return &Gateway{
		name:          cfg.Name,
		model:         chatModel,
		systemPrompt:  strings.TrimSpace(cfg.SystemPrompt),
		tools:         tools,
		threads:       cfg.Threads,
		transcript:    cfg.Transcript,
		maxToolRounds: rounds,
		now:           time.Now,
	}, nil
}

func (g *Gateway) Name() contractx.AgentName {
	return g.name
}

// Send posts message into threadID and returns the agent's final reply. The
// thread is created on first use. The transcript only grows when the agent
// answers, so a failed call can be retried on the same thread.
func (g *Gateway) Send(ctx context.Context, threadID, message string) (contractx.Reply, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return contractx.Reply{}, fmt.Errorf("%w: thread id is empty", contractx.ErrInvalidThread)
	}
	if strings.TrimSpace(message) == "" {
		return contractx.Reply{}, fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	}

	if err := g.threads.CreateIfAbsent(ctx, threadID); err != nil {
		return contractx.Reply{}, fmt.Errorf("%w: create thread %s: %w", contractx.ErrAgentUnavailable, threadID, err)
	}
	history, err := g.transcript.List(ctx, threadID)
	if err != nil {
		return contractx.Reply{}, fmt.Errorf("%w: load transcript %s: %w", contractx.ErrAgentUnavailable, threadID, err)
	}

	userMsg := contractx.Message{
		ThreadID:  threadID,
		Role:      contractx.RoleUser,
		Content:   message,
		CreatedAt: g.now().UTC(),
	}

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(g.systemPrompt))
	msgs = append(msgs, toSchemaMessages(history)...)
	msgs = append(msgs, schema.UserMessage(message))

	text, rounds, err := g.generate(ctx, msgs)
	if err != nil {
		return contractx.Reply{}, err
	}

	ts := g.now().UTC()
	replyMsg := contractx.Message{
		ThreadID:  threadID,
		Role:      contractx.RoleAssistant,
		Agent:     g.name,
		Content:   text,
		CreatedAt: ts,
	}
	if err := g.transcript.Append(ctx, userMsg, replyMsg); err != nil {
		return contractx.Reply{}, fmt.Errorf("%w: append transcript %s: %w", contractx.ErrAgentUnavailable, threadID, err)
	}

	log.Debug().
		Str("agent", g.name.Slug()).
		Str("thread_id", threadID).
		Int("tool_rounds", rounds).
		Msg("agent replied")

	return contractx.Reply{Text: text, Timestamp: ts}, nil
}

// FetchHistory returns the transcript of a known thread, oldest first.
func (g *Gateway) FetchHistory(ctx context.Context, threadID string) ([]contractx.Message, error) {
	return History{Threads: g.threads, Transcript: g.transcript}.FetchHistory(ctx, threadID)
}

func (g *Gateway) generate(ctx context.Context, msgs []*schema.Message) (string, int, error) {
	for round := 0; ; round++ {
		out, err := g.model.Generate(ctx, msgs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", round, fmt.Errorf("%w: agent=%s: %w", contractx.ErrAgentUnavailable, g.name, ctxErr)
			}
			return "", round, fmt.Errorf("%w: agent=%s: %v", contractx.ErrAgentUnavailable, g.name, err)
		}
		if out == nil {
			return "", round, fmt.Errorf("%w: agent=%s returned no message", contractx.ErrAgentUnavailable, g.name)
		}

		if len(out.ToolCalls) == 0 {
			text := strings.TrimSpace(out.Content)
			if text == "" {
				return "", round, fmt.Errorf("%w: agent=%s returned an empty reply", contractx.ErrAgentUnavailable, g.name)
			}
			return text, round, nil
		}

		if round >= g.maxToolRounds {
			return "", round, fmt.Errorf("%w: agent=%s exceeded %d tool rounds", contractx.ErrAgentUnavailable, g.name, g.maxToolRounds)
		}

		msgs = append(msgs, out)
		for _, call := range out.ToolCalls {
			msgs = append(msgs, schema.ToolMessage(g.runTool(ctx, call), call.ID))
		}
	}
}

// runTool never fails the turn: tool errors are reported back to the model.
func (g *Gateway) runTool(ctx context.Context, call schema.ToolCall) string {
	name := strings.TrimSpace(call.Function.Name)
	t, ok := g.tools[name]
	if !ok {
		log.Warn().Str("agent", g.name.Slug()).Str("tool", name).Msg("model requested unknown tool")
		return fmt.Sprintf(`{"error":"unknown tool %q"}`, name)
	}

	out, err := t.InvokableRun(ctx, call.Function.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("agent", g.name.Slug()).Str("tool", name).Msg("tool call failed")
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return out
}

func toSchemaMessages(history []contractx.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case contractx.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case contractx.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}

// History reads transcripts without going through a reasoning agent.
type History struct {
	Threads    threadx.Store
	Transcript threadx.Transcript
}

var _ contractx.HistoryReader = History{}

func (h History) FetchHistory(ctx context.Context, threadID string) ([]contractx.Message, error) {
	if _, err := h.Threads.Get(ctx, threadID); err != nil {
		if errors.Is(err, threadx.ErrThreadNotFound) || errors.Is(err, threadx.ErrInvalidThreadID) {
			return nil, fmt.Errorf("%w: %v", contractx.ErrInvalidThread, err)
		}
		return nil, fmt.Errorf("%w: lookup thread %s: %w", contractx.ErrAgentUnavailable, threadID, err)
	}
	msgs, err := h.Transcript.List(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("%w: load transcript %s: %w", contractx.ErrAgentUnavailable, threadID, err)
	}
	return msgs, nil
}
