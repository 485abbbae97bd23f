// Package schema contains the core contracts shared across fastgate packages.
// Concrete implementations live in their respective packages; this package is
// the single canonical source of truth for every interface definition.
package schema

import (
	"context"
	"encoding/json"
)

// ToolDescriptor is the uniform shape of one remote tool: its unique name
// within a registry snapshot, a human-readable description, and the JSON
// Schema its arguments must satisfy.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolSet is one registry snapshot: the descriptors fetched from the remote
// servers before a turn's first oracle call. It is immutable for the duration
// of the turn.
type ToolSet struct {
	descriptors []ToolDescriptor
	byName      map[string]int
}

// NewToolSet builds a snapshot from descriptors, preserving order.
// A later descriptor with a duplicate name replaces the earlier one.
func NewToolSet(descriptors ...ToolDescriptor) *ToolSet {
	ts := &ToolSet{byName: make(map[string]int, len(descriptors))}
	for _, d := range descriptors {
		if i, ok := ts.byName[d.Name]; ok {
			ts.descriptors[i] = d
			continue
		}
		ts.byName[d.Name] = len(ts.descriptors)
		ts.descriptors = append(ts.descriptors, d)
	}
	return ts
}

// Get returns the descriptor with the given name.
func (ts *ToolSet) Get(name string) (ToolDescriptor, bool) {
	i, ok := ts.byName[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return ts.descriptors[i], true
}

// Len returns the number of descriptors in the snapshot.
func (ts *ToolSet) Len() int { return len(ts.descriptors) }

// All returns the descriptors in registry order.
func (ts *ToolSet) All() []ToolDescriptor {
	out := make([]ToolDescriptor, len(ts.descriptors))
	copy(out, ts.descriptors)
	return out
}

// Definitions returns all descriptors in OpenAI function-calling format.
func (ts *ToolSet) Definitions() []map[string]any {
	list := make([]map[string]any, 0, len(ts.descriptors))
	for _, d := range ts.descriptors {
		var params any
		if err := json.Unmarshal(d.InputSchema, &params); err != nil || params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		list = append(list, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  params,
			},
		})
	}
	return list
}

// ToolResult is the outcome of one tool invocation, correlated to the
// requesting ToolCall by CallID. A business-logic failure from the remote
// tool is a ToolResult with OK=false, not an error.
type ToolResult struct {
	CallID  string
	Name    string
	OK      bool
	Payload string // tool output when OK, error detail otherwise
}

// ToolRegistry is the adapter over the remote tool servers.
//
// ListTools returns a fresh descriptor snapshot; implementations must not
// serve a stale or empty snapshot silently; if the remote registry cannot
// be reached the error is surfaced to the caller.
//
// Invoke executes one tool call. Only transport-level failures are returned
// as errors; a tool that runs and reports a failure yields OK=false.
type ToolRegistry interface {
	ListTools(ctx context.Context) (*ToolSet, error)
	Invoke(ctx context.Context, name string, args map[string]any) (ToolResult, error)
}
