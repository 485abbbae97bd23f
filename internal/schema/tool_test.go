package schema

import (
	"encoding/json"
	"testing"
)

func TestToolSetLookupAndOrder(t *testing.T) {
	ts := NewToolSet(
		ToolDescriptor{Name: "b", Description: "second"},
		ToolDescriptor{Name: "a", Description: "first"},
	)

	if ts.Len() != 2 {
		t.Fatalf("len = %d, want 2", ts.Len())
	}
	if d, ok := ts.Get("a"); !ok || d.Description != "first" {
		t.Errorf("Get(a) = %+v, %v", d, ok)
	}
	if _, ok := ts.Get("missing"); ok {
		t.Error("Get(missing) should fail")
	}

	// Insertion order is preserved.
	all := ts.All()
	if all[0].Name != "b" || all[1].Name != "a" {
		t.Errorf("order = [%s %s], want [b a]", all[0].Name, all[1].Name)
	}
}

func TestToolSetDuplicateReplaces(t *testing.T) {
	ts := NewToolSet(
		ToolDescriptor{Name: "x", Description: "old"},
		ToolDescriptor{Name: "x", Description: "new"},
	)
	if ts.Len() != 1 {
		t.Fatalf("len = %d, want 1", ts.Len())
	}
	if d, _ := ts.Get("x"); d.Description != "new" {
		t.Errorf("duplicate did not replace: %q", d.Description)
	}
}

func TestDefinitionsShape(t *testing.T) {
	ts := NewToolSet(ToolDescriptor{
		Name:        "weather_get_weather",
		Description: "weather lookup",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
	})

	defs := ts.Definitions()
	if len(defs) != 1 {
		t.Fatalf("defs = %d, want 1", len(defs))
	}
	if defs[0]["type"] != "function" {
		t.Errorf("type = %v", defs[0]["type"])
	}
	fn, ok := defs[0]["function"].(map[string]any)
	if !ok || fn["name"] != "weather_get_weather" {
		t.Errorf("function = %v", defs[0]["function"])
	}
	params, ok := fn["parameters"].(map[string]any)
	if !ok || params["type"] != "object" {
		t.Errorf("parameters = %v", fn["parameters"])
	}
}

func TestDefinitionsBadSchemaFallsBack(t *testing.T) {
	ts := NewToolSet(ToolDescriptor{Name: "x", InputSchema: json.RawMessage(`not json`)})
	defs := ts.Definitions()
	fn := defs[0]["function"].(map[string]any)
	params := fn["parameters"].(map[string]any)
	if params["type"] != "object" {
		t.Errorf("fallback parameters = %v", params)
	}
}

func TestMessageText(t *testing.T) {
	if got := NewUserMessage("hi").Text(); got != "hi" {
		t.Errorf("user text = %q", got)
	}
	s := "answer"
	if got := NewAssistantMessage(&s, nil).Text(); got != "answer" {
		t.Errorf("assistant text = %q", got)
	}
	if got := NewAssistantMessage(nil, nil).Text(); got != "" {
		t.Errorf("nil assistant text = %q", got)
	}
}
