// Package mcp implements the tool-registry adapter over MCP servers.
//
// A Manager owns the JSON-RPC connections to every configured server and
// presents them as one schema.ToolRegistry: a flat, name-unique set of tool
// descriptors plus an invoke path that routes each call back to the server
// that advertised it.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fastgate/fastgate/internal/schema"
)

// ErrRegistryUnavailable marks a failure to reach the remote tool registry.
// A ListTools that cannot produce a complete, fresh snapshot returns it; no
// stale or partial snapshot is ever served silently.
var ErrRegistryUnavailable = errors.New("tool registry unavailable")

// ErrInvocation marks a transport-level failure executing one tool call.
// Business-logic failures reported by the tool itself are not errors; they
// come back as a schema.ToolResult with OK=false.
var ErrInvocation = errors.New("tool invocation failed")

// route maps one advertised (prefixed) tool name back to its server client
// and the server-local tool name.
type route struct {
	client   *client
	origName string
}

// Manager owns the lifecycle of all MCP server connections and implements
// schema.ToolRegistry.
type Manager struct {
	servers map[string]ServerConfig
	names   []string // sorted server names, for deterministic snapshots

	mu      sync.Mutex
	clients map[string]*client
	routes  map[string]route
}

// NewManager returns a Manager configured with the given MCP servers.
func NewManager(servers map[string]ServerConfig) *Manager {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Manager{
		servers: servers,
		names:   names,
		clients: make(map[string]*client),
		routes:  make(map[string]route),
	}
}

// Connect dials every configured server concurrently. Any server that cannot
// be reached fails the whole connect: the caller must know tools are
// unavailable rather than run with a silently reduced registry.
func (m *Manager) Connect(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	connected := make([]*client, len(m.names))
	for i, name := range m.names {
		i, name := i, name
		g.Go(func() error {
			c := newClient(name, m.servers[name])
			if err := c.connect(gctx); err != nil {
				return fmt.Errorf("%w: server %q: %v", ErrRegistryUnavailable, name, err)
			}
			connected[i] = c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, c := range connected {
			if c != nil {
				c.close()
			}
		}
		return err
	}

	m.mu.Lock()
	for i, name := range m.names {
		m.clients[name] = connected[i]
	}
	m.mu.Unlock()

	slog.Info("MCP servers connected", "count", len(m.names))
	return nil
}

// ListTools implements schema.ToolRegistry. It re-fetches tools/list from
// every server so each turn starts from the freshest snapshot, and rebuilds
// the invoke routing table to match.
func (m *Manager) ListTools(ctx context.Context) (*schema.ToolSet, error) {
	m.mu.Lock()
	clients := make([]*client, 0, len(m.names))
	for _, name := range m.names {
		c, ok := m.clients[name]
		if !ok {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: server %q not connected", ErrRegistryUnavailable, name)
		}
		clients = append(clients, c)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	perServer := make([][]toolDef, len(clients))
	for i, c := range clients {
		i, c := i, c
		g.Go(func() error {
			defs, err := c.listTools(gctx)
			if err != nil {
				return fmt.Errorf("%w: server %q: %v", ErrRegistryUnavailable, c.name, err)
			}
			perServer[i] = defs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var descriptors []schema.ToolDescriptor
	routes := make(map[string]route)
	for i, c := range clients {
		for _, def := range perServer[i] {
			if def.Name == "" {
				continue
			}
			name := c.name + "_" + def.Name
			inputSchema := def.InputSchema
			if len(inputSchema) == 0 {
				inputSchema = []byte(`{"type":"object","properties":{}}`)
			}
			descriptors = append(descriptors, schema.ToolDescriptor{
				Name:        name,
				Description: def.Description,
				InputSchema: inputSchema,
			})
			routes[name] = route{client: c, origName: def.Name}
		}
	}

	m.mu.Lock()
	m.routes = routes
	m.mu.Unlock()

	slog.Debug("tool registry snapshot", "tools", len(descriptors))
	return schema.NewToolSet(descriptors...), nil
}

// Invoke implements schema.ToolRegistry. Transport failures return an error
// wrapping ErrInvocation; a tool that runs and reports failure yields a
// ToolResult with OK=false.
func (m *Manager) Invoke(ctx context.Context, name string, args map[string]any) (schema.ToolResult, error) {
	m.mu.Lock()
	r, ok := m.routes[name]
	m.mu.Unlock()
	if !ok {
		return schema.ToolResult{}, fmt.Errorf("%w: unknown tool %q", ErrInvocation, name)
	}

	outcome, err := r.client.callTool(ctx, r.origName, args)
	if err != nil {
		if ctx.Err() != nil {
			return schema.ToolResult{}, ctx.Err()
		}
		return schema.ToolResult{}, fmt.Errorf("%w: %q: %v", ErrInvocation, name, err)
	}

	return schema.ToolResult{
		Name:    name,
		OK:      !outcome.IsError,
		Payload: outcome.Text,
	}, nil
}

// Close stops all subprocess-based MCP servers owned by this manager.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		c.close()
	}
}

var _ schema.ToolRegistry = (*Manager)(nil)
