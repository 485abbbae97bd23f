package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// jsonrpcServer is a minimal HTTP MCP server for tests: it serves a mutable
// tool list and answers tools/call with a canned outcome.
type jsonrpcServer struct {
	tools   atomic.Value // []map[string]any
	isError bool
	reply   string
}

func newJSONRPCServer(reply string, tools ...map[string]any) *jsonrpcServer {
	s := &jsonrpcServer{reply: reply}
	s.tools.Store(tools)
	return s
}

func (s *jsonrpcServer) setTools(tools ...map[string]any) {
	s.tools.Store(tools)
}

func (s *jsonrpcServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any
		switch req["method"] {
		case "initialize":
			result = map[string]any{"protocolVersion": protocolVersion}
		case "tools/list":
			result = map[string]any{"tools": s.tools.Load()}
		case "tools/call":
			result = map[string]any{
				"content": []map[string]any{{"type": "text", "text": s.reply}},
				"isError": s.isError,
			}
		default:
			result = map[string]any{}
		}

		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  result,
		})
	}
}

func toolJSON(name, desc string, schema string) map[string]any {
	m := map[string]any{"name": name, "description": desc}
	if schema != "" {
		m["inputSchema"] = json.RawMessage(schema)
	}
	return m
}

func connectedManager(t *testing.T, servers map[string]ServerConfig) *Manager {
	t.Helper()
	m := NewManager(servers)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestListToolsPrefixesServerNames(t *testing.T) {
	alpha := newJSONRPCServer("ok", toolJSON("search", "find things", `{"type":"object"}`))
	beta := newJSONRPCServer("ok", toolJSON("fetch", "get a page", `{"type":"object"}`))
	srvA := httptest.NewServer(alpha.handler())
	defer srvA.Close()
	srvB := httptest.NewServer(beta.handler())
	defer srvB.Close()

	m := connectedManager(t, map[string]ServerConfig{
		"alpha": {URL: srvA.URL},
		"beta":  {URL: srvB.URL},
	})

	tools, err := m.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if tools.Len() != 2 {
		t.Fatalf("tools = %d, want 2", tools.Len())
	}
	if _, ok := tools.Get("alpha_search"); !ok {
		t.Error("missing alpha_search")
	}
	if _, ok := tools.Get("beta_fetch"); !ok {
		t.Error("missing beta_fetch")
	}
}

func TestListToolsReflectsServerChanges(t *testing.T) {
	srv := newJSONRPCServer("ok", toolJSON("one", "", `{"type":"object"}`))
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	m := connectedManager(t, map[string]ServerConfig{"s": {URL: ts.URL}})

	tools, err := m.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if tools.Len() != 1 {
		t.Fatalf("first snapshot = %d tools, want 1", tools.Len())
	}

	srv.setTools(
		toolJSON("one", "", `{"type":"object"}`),
		toolJSON("two", "", `{"type":"object"}`),
	)

	tools, err = m.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if tools.Len() != 2 {
		t.Errorf("second snapshot = %d tools, want 2 (stale snapshot served)", tools.Len())
	}
}

func TestListToolsServerDownIsUnavailable(t *testing.T) {
	srv := newJSONRPCServer("ok", toolJSON("one", "", ""))
	ts := httptest.NewServer(srv.handler())

	m := connectedManager(t, map[string]ServerConfig{"s": {URL: ts.URL}})
	ts.Close()

	_, err := m.ListTools(context.Background())
	if !errors.Is(err, ErrRegistryUnavailable) {
		t.Errorf("err = %v, want ErrRegistryUnavailable", err)
	}
}

func TestListToolsDefaultsEmptySchema(t *testing.T) {
	srv := newJSONRPCServer("ok", toolJSON("bare", "no schema", ""))
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	m := connectedManager(t, map[string]ServerConfig{"s": {URL: ts.URL}})

	tools, err := m.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	d, ok := tools.Get("s_bare")
	if !ok {
		t.Fatal("missing s_bare")
	}
	if !strings.Contains(string(d.InputSchema), `"object"`) {
		t.Errorf("schema = %s, want default object schema", d.InputSchema)
	}
}

func TestInvokeRoutesToServer(t *testing.T) {
	srv := newJSONRPCServer("sunny, 22C", toolJSON("get_weather", "", `{"type":"object"}`))
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	m := connectedManager(t, map[string]ServerConfig{"weather": {URL: ts.URL}})
	if _, err := m.ListTools(context.Background()); err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	result, err := m.Invoke(context.Background(), "weather_get_weather", map[string]any{"city": "Paris"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !result.OK || result.Payload != "sunny, 22C" {
		t.Errorf("result = %+v", result)
	}
}

func TestInvokeToolReportedError(t *testing.T) {
	srv := newJSONRPCServer("city not found", toolJSON("get_weather", "", `{"type":"object"}`))
	srv.isError = true
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	m := connectedManager(t, map[string]ServerConfig{"weather": {URL: ts.URL}})
	if _, err := m.ListTools(context.Background()); err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	result, err := m.Invoke(context.Background(), "weather_get_weather", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.OK {
		t.Error("isError response must yield OK=false")
	}
	if result.Payload != "city not found" {
		t.Errorf("payload = %q", result.Payload)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	m := connectedManager(t, map[string]ServerConfig{})

	_, err := m.Invoke(context.Background(), "nope", nil)
	if !errors.Is(err, ErrInvocation) {
		t.Errorf("err = %v, want ErrInvocation", err)
	}
}

func TestConnectRejectsEmptyServerConfig(t *testing.T) {
	m := NewManager(map[string]ServerConfig{"broken": {}})
	if err := m.Connect(context.Background()); err == nil {
		t.Error("expected error for server with neither command nor url")
	}
}
