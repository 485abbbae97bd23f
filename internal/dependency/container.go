// Package dependency wires the application graph: config, LLM provider, MCP
// tool registry, session store, and the conversation engine.
package dependency

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/dig"

	"github.com/fastgate/fastgate/internal/agent"
	"github.com/fastgate/fastgate/internal/config"
	"github.com/fastgate/fastgate/internal/mcp"
	"github.com/fastgate/fastgate/internal/providers"
	"github.com/fastgate/fastgate/internal/schema"
	"github.com/fastgate/fastgate/internal/session"
)

// Container holds the dig graph. Constructors run lazily on first resolve,
// so building a Container is cheap and never touches the network.
type Container struct {
	dc *dig.Container
}

// Options tweak container construction.
type Options struct {
	ConfigPath string // empty = default ~/.fastgate/config.json
	Model      string // overrides agents.defaults.model for this process
}

// New builds the dependency graph.
func New(opts Options) (*Container, error) {
	dc := dig.New()

	constructors := []any{
		func() (*config.Config, error) {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return nil, err
			}
			if opts.Model != "" {
				cfg.Agents.Defaults.Model = opts.Model
			}
			return cfg, nil
		},
		newProvider,
		newManager,
		newStore,
		newSettings,
		newEngine,
	}
	for _, c := range constructors {
		if err := dc.Provide(c); err != nil {
			return nil, fmt.Errorf("provide constructor: %w", err)
		}
	}

	return &Container{dc: dc}, nil
}

func newProvider(cfg *config.Config) (schema.LLMProvider, error) {
	model := cfg.Agents.Defaults.Model
	match := cfg.MatchProvider(model)
	if match.Provider == nil {
		return nil, fmt.Errorf("no provider configured for model %q; run `fastgate onboard`", model)
	}
	return providers.New(providers.Params{
		APIKey:       match.Provider.APIKey,
		APIBase:      cfg.GetAPIBase(model),
		ExtraHeaders: match.Provider.ExtraHeaders,
		DefaultModel: model,
		ProviderName: match.Name,
		Timeout:      time.Duration(cfg.Agents.Defaults.RequestTimeout) * time.Second,
	}), nil
}

func newManager(cfg *config.Config) *mcp.Manager {
	timeout := time.Duration(cfg.Tools.InvokeTimeout) * time.Second
	servers := make(map[string]mcp.ServerConfig, len(cfg.Tools.MCPServers))
	for name, sc := range cfg.Tools.MCPServers {
		servers[name] = mcp.ServerConfig{
			Command: sc.Command,
			Args:    sc.Args,
			Env:     sc.Env,
			URL:     sc.URL,
			Headers: sc.Headers,
			Timeout: timeout,
		}
	}
	return mcp.NewManager(servers)
}

func newStore(cfg *config.Config) (*session.Store, error) {
	ws := cfg.WorkspacePath()
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return session.NewStore(ws)
}

func newSettings(cfg *config.Config) schema.AgentSettings {
	d := cfg.Agents.Defaults
	return schema.NewAgentSettings(d.Model, d.MaxToolIter, d.Temperature, d.MaxTokens, d.MemoryWindow)
}

func newEngine(
	provider schema.LLMProvider,
	manager *mcp.Manager,
	store *session.Store,
	settings schema.AgentSettings,
	cfg *config.Config,
) *agent.Engine {
	prompt := agent.LoadSystemPrompt(cfg.WorkspacePath())
	return agent.NewEngine(provider, manager, store, settings, prompt)
}

// Config resolves the loaded configuration.
func (c *Container) Config() (*config.Config, error) {
	var out *config.Config
	err := c.dc.Invoke(func(cfg *config.Config) { out = cfg })
	return out, err
}

// Engine resolves the conversation engine along with its dependencies.
func (c *Container) Engine() (*agent.Engine, error) {
	var out *agent.Engine
	err := c.dc.Invoke(func(e *agent.Engine) { out = e })
	return out, err
}

// Manager resolves the MCP manager. The caller owns Connect/Close.
func (c *Container) Manager() (*mcp.Manager, error) {
	var out *mcp.Manager
	err := c.dc.Invoke(func(m *mcp.Manager) { out = m })
	return out, err
}

// Store resolves the session store.
func (c *Container) Store() (*session.Store, error) {
	var out *session.Store
	err := c.dc.Invoke(func(s *session.Store) { out = s })
	return out, err
}
