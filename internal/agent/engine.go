// Package agent implements the tool-augmented conversation loop: it feeds
// session history to the LLM, executes the tool calls the LLM requests
// against the MCP registry, and iterates until a final answer arrives or the
// turn fails.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fastgate/fastgate/internal/schema"
	"github.com/fastgate/fastgate/internal/session"
	"github.com/fastgate/fastgate/internal/shared/llmutils"
)

// turnState tracks where a turn is in its lifecycle. Transitions:
// awaitingOracle → answering (final answer), awaitingOracle → executingTools
// → awaitingOracle (tool round-trip), any → aborted (fatal error).
type turnState string

const (
	stateAwaitingOracle turnState = "awaiting_oracle"
	stateExecutingTools turnState = "executing_tools"
	stateAnswering      turnState = "answering"
	stateAborted        turnState = "aborted"
)

// Engine runs conversation turns. One Engine serves all sessions; per-session
// serialization happens through the session's turn lock, so concurrent
// ProcessMessage calls for different sessions proceed in parallel while calls
// for the same session queue up.
type Engine struct {
	provider     schema.LLMProvider
	registry     schema.ToolRegistry
	store        *session.Store
	settings     schema.AgentSettings
	systemPrompt string
	logger       *slog.Logger
}

func NewEngine(provider schema.LLMProvider, registry schema.ToolRegistry, store *session.Store, settings schema.AgentSettings, systemPrompt string) *Engine {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if settings.MaxIter <= 0 {
		settings.MaxIter = 20
	}
	return &Engine{
		provider:     provider,
		registry:     registry,
		store:        store,
		settings:     settings,
		systemPrompt: systemPrompt,
		logger:       slog.Default(),
	}
}

// ProcessMessage runs one full turn: append the user message, loop between
// the oracle and tool execution, and return the final answer text.
//
// Fatal failures come back as *TurnError; per-tool failures (bad arguments,
// tool errors) never abort the turn; they become failed tool results the
// oracle sees on its next iteration. All history appended before a fatal
// failure is retained and persisted.
func (e *Engine) ProcessMessage(ctx context.Context, sessionID, text string) (string, error) {
	sess := e.store.GetOrCreate(sessionID)
	sess.BeginTurn()
	defer sess.EndTurn()

	if err := ctx.Err(); err != nil {
		return "", newTurnError(KindCancelled, "turn cancelled before start", err)
	}

	sess.Append(schema.NewUserMessage(text))
	defer e.save(sess)

	// Fresh tool snapshot per turn. A registry that cannot be reached
	// aborts the turn rather than silently degrading to zero tools.
	tools, err := e.registry.ListTools(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", newTurnError(KindCancelled, "turn cancelled while listing tools", ctx.Err())
		}
		return "", newTurnError(KindRegistryUnavailable, "tool registry snapshot failed", err)
	}

	var defs []map[string]any
	if tools.Len() > 0 {
		defs = tools.Definitions()
	}
	validators := newValidatorSet(tools)

	opts := schema.NewChatOptions(e.settings.Model, e.settings.MaxTokens, e.settings.Temperature)
	state := stateAwaitingOracle

	for iter := 0; iter < e.settings.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return "", newTurnError(KindCancelled, "turn cancelled before oracle call", err)
		}

		messages := schema.NewMessages(schema.NewSystemMessage(e.systemPrompt))
		messages.Append(sanitizeHistory(sess.History(e.settings.MemoryWindow)))

		resp, err := e.provider.Chat(ctx, messages, defs, opts)
		if err != nil {
			state = stateAborted
			e.logger.Warn("turn aborted", "session", sessionID, "state", state, "err", err)
			if ctx.Err() != nil {
				return "", newTurnError(KindCancelled, "turn cancelled during oracle call", ctx.Err())
			}
			return "", newTurnError(KindOracleUnavailable, "oracle call failed", err)
		}

		if !resp.HasToolCalls() {
			state = stateAnswering
			answer := ""
			if resp.Content != nil {
				answer = *resp.Content
			}
			sess.Append(schema.NewAssistantMessage(&answer, nil))
			e.logger.Debug("turn complete",
				"session", sessionID, "state", state, "iterations", iter+1)
			return answer, nil
		}

		state = stateExecutingTools
		calls := normalizeCalls(resp.ToolCalls)
		sess.Append(schema.NewAssistantMessage(resp.Content, calls))
		e.logger.Debug("executing tool calls",
			"session", sessionID, "state", state, "count", len(calls), "iteration", iter+1)

		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return "", newTurnError(KindCancelled, "turn cancelled during tool execution", err)
			}
			e.executeCall(ctx, sess, tools, validators, call)
		}
		state = stateAwaitingOracle

		if err := ctx.Err(); err != nil {
			return "", newTurnError(KindCancelled, "turn cancelled after tool execution", err)
		}
	}

	return "", newTurnError(KindLoopExhausted,
		fmt.Sprintf("no final answer after %d iterations", e.settings.MaxIter), nil)
}

// executeCall validates and runs one tool call, appending exactly one tool
// result to the session. Every failure mode produces a failed result so the
// result-to-request pairing stays intact.
func (e *Engine) executeCall(ctx context.Context, sess *session.Session, tools *schema.ToolSet, validators *validatorSet, call schema.ToolCall) {
	if _, ok := tools.Get(call.Name); !ok {
		e.logger.Warn("tool call for unknown tool", "session", sess.ID, "tool", call.Name)
		sess.Append(schema.NewToolResultMessage(call.ID, call.Name,
			fmt.Sprintf("Error: unknown tool %q", call.Name), true))
		return
	}

	if err := validators.validate(call.Name, call.Arguments); err != nil {
		e.logger.Warn("tool arguments rejected", "session", sess.ID, "tool", call.Name, "err", err)
		sess.Append(schema.NewToolResultMessage(call.ID, call.Name,
			fmt.Sprintf("Error: invalid arguments: %v", err), true))
		return
	}

	result, err := e.registry.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		e.logger.Warn("tool invocation failed", "session", sess.ID, "tool", call.Name, "err", err)
		sess.Append(schema.NewToolResultMessage(call.ID, call.Name,
			fmt.Sprintf("Error: tool invocation failed: %v", err), true))
		return
	}

	if !result.OK {
		sess.Append(schema.NewToolResultMessage(call.ID, call.Name, result.Payload, true))
		return
	}

	e.logger.Debug("tool call ok", "session", sess.ID, "tool", call.Name,
		"result", llmutils.Truncate(result.Payload, 200))
	sess.Append(schema.NewToolResultMessage(call.ID, call.Name, result.Payload, false))
}

// sanitizeHistory drops tool-result messages whose requesting assistant
// message is not present, which happens when the memory window cuts between
// an assistant message carrying tool calls and its results. The chat API
// rejects a tool message with no preceding assistant tool_calls entry.
func sanitizeHistory(history schema.Messages) schema.Messages {
	seen := make(map[string]bool)
	out := schema.NewMessages()
	for _, m := range history.Messages {
		if m.Role == "assistant" {
			for _, tc := range m.ToolCalls {
				seen[tc.ID] = true
			}
		}
		if m.Role == "tool" && !seen[m.ToolCallID] {
			continue
		}
		out.Add(m)
	}
	return out
}

// normalizeCalls converts oracle tool-call requests into history tool calls,
// synthesising a correlation id for any request that arrived without one.
func normalizeCalls(requests []schema.ToolCallRequest) []schema.ToolCall {
	calls := make([]schema.ToolCall, 0, len(requests))
	for _, req := range requests {
		id := req.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		calls = append(calls, schema.ToolCall{ID: id, Name: req.Name, Arguments: req.Arguments})
	}
	return calls
}

func (e *Engine) save(sess *session.Session) {
	if err := e.store.Save(sess); err != nil {
		e.logger.Error("failed to persist session", "session", sess.ID, "err", err)
	}
}
