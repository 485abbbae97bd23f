package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fastgate/fastgate/internal/schema"
	"github.com/fastgate/fastgate/internal/session"
)

// stubOracle replays a scripted sequence of responses.
type stubOracle struct {
	mu        sync.Mutex
	responses []schema.LLMResponse
	errs      []error
	calls     int
	seen      []schema.Messages
	delay     time.Duration
}

func (o *stubOracle) Chat(ctx context.Context, messages schema.Messages, tools []map[string]any, opts schema.ChatOptions) (schema.LLMResponse, error) {
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.calls
	o.calls++
	o.seen = append(o.seen, messages.Clone())
	if i < len(o.errs) && o.errs[i] != nil {
		return schema.LLMResponse{}, o.errs[i]
	}
	if i >= len(o.responses) {
		return schema.LLMResponse{}, fmt.Errorf("unexpected oracle call %d", i)
	}
	return o.responses[i], nil
}

func (o *stubOracle) DefaultModel() string { return "test-model" }

func (o *stubOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *stubOracle) seenMessages() []schema.Messages {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]schema.Messages, len(o.seen))
	copy(out, o.seen)
	return out
}

// stubRegistry serves a fixed tool set and dispatches invocations to fn.
type stubRegistry struct {
	mu      sync.Mutex
	tools   *schema.ToolSet
	listErr error
	fn      func(name string, args map[string]any) (schema.ToolResult, error)
	invoked []string
}

func (r *stubRegistry) ListTools(ctx context.Context) (*schema.ToolSet, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	if r.tools == nil {
		return schema.NewToolSet(), nil
	}
	return r.tools, nil
}

func (r *stubRegistry) Invoke(ctx context.Context, name string, args map[string]any) (schema.ToolResult, error) {
	r.mu.Lock()
	r.invoked = append(r.invoked, name)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(name, args)
	}
	return schema.ToolResult{Name: name, OK: true, Payload: "ok"}, nil
}

func (r *stubRegistry) invokedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.invoked))
	copy(out, r.invoked)
	return out
}

func weatherToolSet() *schema.ToolSet {
	return schema.NewToolSet(schema.ToolDescriptor{
		Name:        "weather_get_weather",
		Description: "Get current weather for a city",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
	})
}

func finalAnswer(text string) schema.LLMResponse {
	return schema.LLMResponse{Content: &text, FinishReason: "stop"}
}

func toolCallResponse(calls ...schema.ToolCallRequest) schema.LLMResponse {
	return schema.LLMResponse{ToolCalls: calls, FinishReason: "tool_calls"}
}

func newTestEngine(t *testing.T, oracle schema.LLMProvider, registry schema.ToolRegistry, maxIter int) (*Engine, *session.Store) {
	t.Helper()
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	settings := schema.NewAgentSettings("test-model", maxIter, 0, 1024, 0)
	return NewEngine(oracle, registry, store, settings, ""), store
}

func roles(msgs schema.Messages) []string {
	out := make([]string, 0, msgs.Len())
	for _, m := range msgs.Messages {
		out = append(out, m.Role)
	}
	return out
}

func TestProcessMessageDirectAnswer(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{finalAnswer("hello there")}}
	registry := &stubRegistry{}
	engine, store := newTestEngine(t, oracle, registry, 5)

	answer, err := engine.ProcessMessage(context.Background(), "test:1", "hi")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if answer != "hello there" {
		t.Errorf("answer = %q, want %q", answer, "hello there")
	}

	history := store.GetOrCreate("test:1").Snapshot()
	got := roles(history)
	want := []string{"user", "assistant"}
	if len(got) != len(want) {
		t.Fatalf("history roles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d].Role = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestProcessMessageToolRoundTrip(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{
		toolCallResponse(schema.ToolCallRequest{
			ID:        "call_1",
			Name:      "weather_get_weather",
			Arguments: map[string]any{"city": "Paris"},
		}),
		finalAnswer("It is sunny in Paris, 22C."),
	}}
	registry := &stubRegistry{
		tools: weatherToolSet(),
		fn: func(name string, args map[string]any) (schema.ToolResult, error) {
			if args["city"] != "Paris" {
				t.Errorf("args[city] = %v, want Paris", args["city"])
			}
			return schema.ToolResult{CallID: "call_1", Name: name, OK: true, Payload: "sunny, 22C"}, nil
		},
	}
	engine, store := newTestEngine(t, oracle, registry, 5)

	answer, err := engine.ProcessMessage(context.Background(), "test:1", "what's the weather in Paris?")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !strings.Contains(answer, "sunny") {
		t.Errorf("answer = %q, want a weather answer", answer)
	}

	history := store.GetOrCreate("test:1").Snapshot()
	got := roles(history)
	want := []string{"user", "assistant", "tool", "assistant"}
	if len(got) != len(want) {
		t.Fatalf("history roles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d].Role = %q, want %q", i, got[i], want[i])
		}
	}

	// The tool result must correlate to the assistant's tool call.
	assistant := history.Messages[1]
	toolResult := history.Messages[2]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant tool calls = %d, want 1", len(assistant.ToolCalls))
	}
	if toolResult.ToolCallID != assistant.ToolCalls[0].ID {
		t.Errorf("tool result correlation id = %q, want %q", toolResult.ToolCallID, assistant.ToolCalls[0].ID)
	}
	if toolResult.Failed {
		t.Error("tool result marked failed, want success")
	}
	if toolResult.Text() != "sunny, 22C" {
		t.Errorf("tool result content = %q, want %q", toolResult.Text(), "sunny, 22C")
	}
}

func TestProcessMessageResultOrderMatchesCallOrder(t *testing.T) {
	tools := schema.NewToolSet(
		schema.ToolDescriptor{Name: "svc_alpha", InputSchema: json.RawMessage(`{"type":"object"}`)},
		schema.ToolDescriptor{Name: "svc_beta", InputSchema: json.RawMessage(`{"type":"object"}`)},
	)
	oracle := &stubOracle{responses: []schema.LLMResponse{
		toolCallResponse(
			schema.ToolCallRequest{ID: "c1", Name: "svc_beta", Arguments: map[string]any{}},
			schema.ToolCallRequest{ID: "c2", Name: "svc_alpha", Arguments: map[string]any{}},
		),
		finalAnswer("done"),
	}}
	registry := &stubRegistry{
		tools: tools,
		fn: func(name string, args map[string]any) (schema.ToolResult, error) {
			return schema.ToolResult{Name: name, OK: true, Payload: "from " + name}, nil
		},
	}
	engine, store := newTestEngine(t, oracle, registry, 5)

	if _, err := engine.ProcessMessage(context.Background(), "test:1", "go"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if got := registry.invokedNames(); len(got) != 2 || got[0] != "svc_beta" || got[1] != "svc_alpha" {
		t.Errorf("invocation order = %v, want [svc_beta svc_alpha]", got)
	}

	history := store.GetOrCreate("test:1").Snapshot()
	// user, assistant, tool, tool, assistant
	if history.Len() != 5 {
		t.Fatalf("history len = %d, want 5", history.Len())
	}
	if history.Messages[2].ToolCallID != "c1" || history.Messages[3].ToolCallID != "c2" {
		t.Errorf("tool result order = [%s %s], want [c1 c2]",
			history.Messages[2].ToolCallID, history.Messages[3].ToolCallID)
	}
}

func TestProcessMessageValidationFailureSkipsInvoke(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{
		toolCallResponse(schema.ToolCallRequest{
			ID:        "call_1",
			Name:      "weather_get_weather",
			Arguments: map[string]any{"location": "Paris"}, // required "city" missing
		}),
		finalAnswer("I could not fetch the weather."),
	}}
	registry := &stubRegistry{tools: weatherToolSet()}
	engine, store := newTestEngine(t, oracle, registry, 5)

	if _, err := engine.ProcessMessage(context.Background(), "test:1", "weather?"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if got := registry.invokedNames(); len(got) != 0 {
		t.Errorf("registry invoked %v, want no invocations", got)
	}

	history := store.GetOrCreate("test:1").Snapshot()
	toolResult := history.Messages[2]
	if toolResult.Role != "tool" || !toolResult.Failed {
		t.Errorf("expected failed tool result, got role=%q failed=%v", toolResult.Role, toolResult.Failed)
	}
	if !strings.Contains(toolResult.Text(), "invalid arguments") {
		t.Errorf("tool result content = %q, want validation detail", toolResult.Text())
	}
}

func TestProcessMessageUnknownToolFailsCall(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{
		toolCallResponse(schema.ToolCallRequest{ID: "c1", Name: "no_such_tool"}),
		finalAnswer("never mind"),
	}}
	registry := &stubRegistry{tools: weatherToolSet()}
	engine, store := newTestEngine(t, oracle, registry, 5)

	if _, err := engine.ProcessMessage(context.Background(), "test:1", "hm"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if got := registry.invokedNames(); len(got) != 0 {
		t.Errorf("registry invoked %v, want none", got)
	}
	history := store.GetOrCreate("test:1").Snapshot()
	if tr := history.Messages[2]; !tr.Failed || !strings.Contains(tr.Text(), "unknown tool") {
		t.Errorf("tool result = %+v, want failed unknown-tool result", tr)
	}
}

func TestProcessMessageRegistryUnavailable(t *testing.T) {
	oracle := &stubOracle{}
	registry := &stubRegistry{listErr: errors.New("connection refused")}
	engine, store := newTestEngine(t, oracle, registry, 5)

	_, err := engine.ProcessMessage(context.Background(), "test:1", "hi")
	if !IsTurnError(err, KindRegistryUnavailable) {
		t.Fatalf("err = %v, want registry_unavailable", err)
	}
	if oracle.callCount() != 0 {
		t.Errorf("oracle called %d times, want 0", oracle.callCount())
	}

	// The user message is still retained.
	history := store.GetOrCreate("test:1").Snapshot()
	if history.Len() != 1 || history.Messages[0].Role != "user" {
		t.Errorf("history = %v, want just the user message", roles(history))
	}
}

func TestProcessMessageOracleUnavailable(t *testing.T) {
	oracle := &stubOracle{errs: []error{errors.New("503 service unavailable")}}
	registry := &stubRegistry{}
	engine, store := newTestEngine(t, oracle, registry, 5)

	_, err := engine.ProcessMessage(context.Background(), "test:1", "hi")
	if !IsTurnError(err, KindOracleUnavailable) {
		t.Fatalf("err = %v, want oracle_unavailable", err)
	}
	history := store.GetOrCreate("test:1").Snapshot()
	if history.Len() != 1 {
		t.Errorf("history len = %d, want 1", history.Len())
	}
}

func TestProcessMessageLoopExhausted(t *testing.T) {
	loop := toolCallResponse(schema.ToolCallRequest{
		ID: "c", Name: "weather_get_weather", Arguments: map[string]any{"city": "Paris"},
	})
	oracle := &stubOracle{responses: []schema.LLMResponse{loop, loop, loop}}
	registry := &stubRegistry{tools: weatherToolSet()}
	engine, _ := newTestEngine(t, oracle, registry, 3)

	_, err := engine.ProcessMessage(context.Background(), "test:1", "weather forever")
	if !IsTurnError(err, KindLoopExhausted) {
		t.Fatalf("err = %v, want loop_exhausted", err)
	}
	if oracle.callCount() != 3 {
		t.Errorf("oracle called %d times, want 3", oracle.callCount())
	}
}

func TestProcessMessageToolTransportFailureIsNotFatal(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{
		toolCallResponse(schema.ToolCallRequest{
			ID: "c1", Name: "weather_get_weather", Arguments: map[string]any{"city": "Paris"},
		}),
		finalAnswer("the weather service is down"),
	}}
	registry := &stubRegistry{
		tools: weatherToolSet(),
		fn: func(name string, args map[string]any) (schema.ToolResult, error) {
			return schema.ToolResult{}, errors.New("broken pipe")
		},
	}
	engine, store := newTestEngine(t, oracle, registry, 5)

	answer, err := engine.ProcessMessage(context.Background(), "test:1", "weather?")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if answer == "" {
		t.Error("expected a final answer despite the tool failure")
	}
	history := store.GetOrCreate("test:1").Snapshot()
	if tr := history.Messages[2]; !tr.Failed || !strings.Contains(tr.Text(), "broken pipe") {
		t.Errorf("tool result = %+v, want failed result carrying the error", tr)
	}
}

func TestProcessMessageToolBusinessFailureIsNotFatal(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{
		toolCallResponse(schema.ToolCallRequest{
			ID: "c1", Name: "weather_get_weather", Arguments: map[string]any{"city": "Paris"},
		}),
		finalAnswer("no data for Paris"),
	}}
	registry := &stubRegistry{
		tools: weatherToolSet(),
		fn: func(name string, args map[string]any) (schema.ToolResult, error) {
			return schema.ToolResult{Name: name, OK: false, Payload: "city not found"}, nil
		},
	}
	engine, store := newTestEngine(t, oracle, registry, 5)

	if _, err := engine.ProcessMessage(context.Background(), "test:1", "weather?"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	history := store.GetOrCreate("test:1").Snapshot()
	if tr := history.Messages[2]; !tr.Failed || tr.Text() != "city not found" {
		t.Errorf("tool result = %+v, want failed result with tool's error text", tr)
	}
}

func TestProcessMessageCancelledBeforeStart(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{finalAnswer("never")}}
	registry := &stubRegistry{}
	engine, store := newTestEngine(t, oracle, registry, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.ProcessMessage(ctx, "test:1", "hi")
	if !IsTurnError(err, KindCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
	if store.GetOrCreate("test:1").Len() != 0 {
		t.Error("cancelled-before-start turn must not append anything")
	}
}

func TestProcessMessageSynthesizesMissingCallIDs(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{
		toolCallResponse(schema.ToolCallRequest{
			Name: "weather_get_weather", Arguments: map[string]any{"city": "Paris"},
		}),
		finalAnswer("ok"),
	}}
	registry := &stubRegistry{tools: weatherToolSet()}
	engine, store := newTestEngine(t, oracle, registry, 5)

	if _, err := engine.ProcessMessage(context.Background(), "test:1", "weather?"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	history := store.GetOrCreate("test:1").Snapshot()
	assistant := history.Messages[1]
	toolResult := history.Messages[2]
	if assistant.ToolCalls[0].ID == "" {
		t.Error("missing call id was not synthesized")
	}
	if toolResult.ToolCallID != assistant.ToolCalls[0].ID {
		t.Errorf("correlation broken: result id %q, call id %q", toolResult.ToolCallID, assistant.ToolCalls[0].ID)
	}
}

func TestProcessMessageSameSessionSerialized(t *testing.T) {
	oracle := &stubOracle{
		responses: []schema.LLMResponse{finalAnswer("first"), finalAnswer("second")},
		delay:     20 * time.Millisecond,
	}
	registry := &stubRegistry{}
	engine, store := newTestEngine(t, oracle, registry, 5)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.ProcessMessage(context.Background(), "test:1", "ping"); err != nil {
				t.Errorf("ProcessMessage: %v", err)
			}
		}()
	}
	wg.Wait()

	// Two complete turns, never interleaved: user/assistant pairs in order.
	history := store.GetOrCreate("test:1").Snapshot()
	got := roles(history)
	want := []string{"user", "assistant", "user", "assistant"}
	if len(got) != len(want) {
		t.Fatalf("history roles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history roles = %v, want %v", got, want)
		}
	}
}

func TestProcessMessageSessionsAreIndependent(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{finalAnswer("a"), finalAnswer("b")}}
	registry := &stubRegistry{}
	engine, store := newTestEngine(t, oracle, registry, 5)

	if _, err := engine.ProcessMessage(context.Background(), "test:1", "one"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if _, err := engine.ProcessMessage(context.Background(), "test:2", "two"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if n := store.GetOrCreate("test:1").Len(); n != 2 {
		t.Errorf("session test:1 len = %d, want 2", n)
	}
	if n := store.GetOrCreate("test:2").Len(); n != 2 {
		t.Errorf("session test:2 len = %d, want 2", n)
	}
	if got := store.GetOrCreate("test:2").Snapshot().Messages[0].Text(); got != "two" {
		t.Errorf("session test:2 user message = %q, want %q", got, "two")
	}
}

func TestProcessMessageCancelledDuringToolExecution(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	oracle := &stubOracle{responses: []schema.LLMResponse{
		toolCallResponse(schema.ToolCallRequest{
			ID: "c1", Name: "weather_get_weather", Arguments: map[string]any{"city": "Paris"},
		}),
	}}
	registry := &stubRegistry{
		tools: weatherToolSet(),
		fn: func(name string, args map[string]any) (schema.ToolResult, error) {
			cancel()
			return schema.ToolResult{Name: name, OK: true, Payload: "sunny, 22C"}, nil
		},
	}
	engine, store := newTestEngine(t, oracle, registry, 5)

	_, err := engine.ProcessMessage(ctx, "test:1", "weather?")
	if !IsTurnError(err, KindCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
	if oracle.callCount() != 1 {
		t.Errorf("oracle called %d times after cancellation, want 1", oracle.callCount())
	}

	// Already-completed work is retained, not rolled back.
	history := store.GetOrCreate("test:1").Snapshot()
	got := roles(history)
	want := []string{"user", "assistant", "tool"}
	if len(got) != len(want) {
		t.Fatalf("history roles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history roles = %v, want %v", got, want)
		}
	}
	if tr := history.Messages[2]; tr.Failed || tr.Text() != "sunny, 22C" {
		t.Errorf("completed tool result = %+v, want retained success", tr)
	}
}

func TestProcessMessageWindowNeverOrphansToolResults(t *testing.T) {
	oracle := &stubOracle{responses: []schema.LLMResponse{
		toolCallResponse(schema.ToolCallRequest{
			ID: "c1", Name: "weather_get_weather", Arguments: map[string]any{"city": "Paris"},
		}),
		finalAnswer("It is sunny."),
	}}
	registry := &stubRegistry{tools: weatherToolSet()}

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	// Window of 1 cuts between the assistant tool-call message and its result.
	settings := schema.NewAgentSettings("test-model", 5, 0, 1024, 1)
	engine := NewEngine(oracle, registry, store, settings, "")

	if _, err := engine.ProcessMessage(context.Background(), "test:1", "weather?"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	// Every tool message the model received must follow an assistant message
	// carrying the matching call id.
	for call, msgs := range oracle.seenMessages() {
		seen := map[string]bool{}
		for i, m := range msgs.Messages {
			if m.Role == "assistant" {
				for _, tc := range m.ToolCalls {
					seen[tc.ID] = true
				}
			}
			if m.Role == "tool" && !seen[m.ToolCallID] {
				t.Errorf("oracle call %d received orphaned tool message at index %d (roles %v)",
					call, i, roles(msgs))
			}
		}
	}
}

func TestSanitizeHistoryDropsOrphans(t *testing.T) {
	history := schema.NewMessages()
	history.AddToolResult("orphan", "t", "r", false)
	history.AddUser("hi")
	content := ""
	history.AddAssistant(&content, []schema.ToolCall{{ID: "c1", Name: "t"}})
	history.AddToolResult("c1", "t", "ok", false)

	out := sanitizeHistory(history)
	got := roles(out)
	want := []string{"user", "assistant", "tool"}
	if len(got) != len(want) {
		t.Fatalf("roles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("roles = %v, want %v", got, want)
		}
	}
}
