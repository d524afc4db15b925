// Package orchestrator drives the tool-calling conversation protocol: one
// user turn in, one or more provider round trips, tool execution in call
// order, and a terminal assistant turn out.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
	"github.com/foundry-kitchen/concierge/pkg/gateway/tools"
)

// SystemPrompt is the fixed agent instruction sent on every provider round.
// Confirmation before ordering is enforced here, not in the order executor.
const SystemPrompt = "You are an AI agent for Foundry Kitchen, an AI-powered food-ordering marketplace that connects users with household and private chefs offering indigenous and experimental cuisine. Your role is to be a conversational agent that helps users discover dishes, receive personalized recommendations, and place orders.\n\nYour instructions:\n1. **Always ask for confirmation** before placing an order. For example, say 'Should I go ahead and place the order for the [item name]?' before you use the `create_order` tool.\n2. You MUST use the 'get_recommendations' tool for any user query that is asking for food or restaurant suggestions. When you do, pass the user's entire query into the 'query' parameter.\n3. When presenting a list of items, always use Markdown bullet points (`* item`) for clarity and readability. Use newlines to separate paragraphs and ideas.\n4. When an order is successfully placed, confirm this to the user by only providing the `order_id`."

// ApologyText is appended as a synthetic assistant turn when a provider round
// fails, so the conversation always stays renderable.
const ApologyText = "Sorry, something went wrong while processing your request. Please try again."

// Config tunes one orchestrator.
type Config struct {
	Model  string
	System string
	// Temperature is a pointer so an explicit 0 survives defaulting.
	Temperature *float64
	MaxTokens   int
	// ToolRounds is how many tool-resolution rounds run per user turn. Tool
	// calls in the final response are appended verbatim and executed by the
	// next user-initiated advance, never recursively.
	ToolRounds int
}

func (c Config) withDefaults() Config {
	if c.System == "" {
		c.System = SystemPrompt
	}
	if c.Temperature == nil {
		t := 0.2
		c.Temperature = &t
	}
	if c.ToolRounds <= 0 {
		c.ToolRounds = 1
	}
	return c
}

// Orchestrator owns the advance protocol for all threads. At most one
// advance runs per thread at a time; concurrent submissions are rejected
// rather than interleaved, so turn order can never corrupt.
type Orchestrator struct {
	provider core.CompletionProvider
	registry *tools.Registry
	logger   *slog.Logger
	cfg      Config

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates an orchestrator.
func New(provider core.CompletionProvider, registry *tools.Registry, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		provider: provider,
		registry: registry,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		inflight: make(map[string]struct{}),
	}
}

// Result is the outcome of one advance: the turns appended to the thread, in
// order, and the accumulated provider usage.
type Result struct {
	Appended []types.Turn
	Usage    types.Usage
}

// Advance runs one user turn through the protocol:
//
//  1. Execute any tool calls still pending at the thread tail from an earlier
//     round-limited advance and append their tool turns.
//  2. Append the user turn to a working copy of the thread.
//  3. Ask the provider for one assistant response with tools declared and
//     tool_choice auto.
//  4. No tool calls: the response is the terminal assistant turn.
//  5. Tool calls: append the assistant turn verbatim, execute every call in
//     the order received (failures still produce a tool turn with an error
//     payload), then ask the provider for exactly one more response.
//
// A provider failure at any step keeps everything appended so far and adds a
// synthetic apology turn; the returned error reports the failure for logging
// but the appended turns are always consistent and renderable.
func (o *Orchestrator) Advance(ctx context.Context, identity, threadID string, turns []types.Turn, userText string) (*Result, error) {
	if err := o.acquire(threadID); err != nil {
		return nil, err
	}
	defer o.release(threadID)

	working := types.CloneTurns(turns)
	res := &Result{}

	appendTurn := func(t types.Turn) {
		working = append(working, t)
		res.Appended = append(res.Appended, t)
	}

	// Tool calls a round-limited advance left at the thread tail execute now,
	// before the new user turn, so the provider never sees a dangling call.
	for _, t := range o.resolvePending(ctx, identity, working) {
		appendTurn(t)
	}

	appendTurn(types.UserTurn(userText))

	for round := 0; ; round++ {
		resp, err := o.provider.Complete(ctx, &types.CompletionRequest{
			Model:       o.cfg.Model,
			System:      o.cfg.System,
			Turns:       working,
			Tools:       o.registry.Specs(),
			ToolChoice:  "auto",
			Temperature: o.cfg.Temperature,
			MaxTokens:   o.cfg.MaxTokens,
		})
		if err != nil {
			o.logger.Error("provider round failed", "thread_id", threadID, "round", round, "error", err)
			appendTurn(types.AssistantTurn(ApologyText))
			return res, err
		}

		res.Usage = res.Usage.Add(resp.Usage)
		appendTurn(resp.Turn)

		if len(resp.Turn.ToolCalls) == 0 || round >= o.cfg.ToolRounds {
			return res, nil
		}

		// Execute in the order received: the provider matches results to
		// calls by id, and reordering would break that pairing.
		for _, call := range resp.Turn.ToolCalls {
			payload := o.registry.Execute(ctx, identity, call.Name, json.RawMessage(call.Arguments))
			appendTurn(types.ToolTurn(call, payload))
		}
	}
}

// resolvePending returns tool turns for the calls of a trailing assistant
// turn that no tool turn has consumed yet, executed in call order.
func (o *Orchestrator) resolvePending(ctx context.Context, identity string, turns []types.Turn) []types.Turn {
	consumed := make(map[string]bool)
	i := len(turns) - 1
	for ; i >= 0 && turns[i].Role == types.RoleTool; i-- {
		consumed[turns[i].ToolCallID] = true
	}
	if i < 0 || turns[i].Role != types.RoleAssistant || len(turns[i].ToolCalls) == 0 {
		return nil
	}

	var out []types.Turn
	for _, call := range turns[i].ToolCalls {
		if consumed[call.ID] {
			continue
		}
		payload := o.registry.Execute(ctx, identity, call.Name, json.RawMessage(call.Arguments))
		out = append(out, types.ToolTurn(call, payload))
	}
	return out
}

func (o *Orchestrator) acquire(threadID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[threadID]; busy {
		return &core.Error{
			Type:    core.ErrConflict,
			Code:    core.CodeThreadBusy,
			Message: "a conversation round is already in flight for this thread",
		}
	}
	o.inflight[threadID] = struct{}{}
	return nil
}

func (o *Orchestrator) release(threadID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, threadID)
}
