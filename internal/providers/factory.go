package providers

import (
	"time"

	"github.com/fastgate/fastgate/internal/schema"
)

// Params are the raw values needed to construct a schema.LLMProvider.
// Extracted from config.Config by the caller to avoid an import cycle.
type Params struct {
	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string
	DefaultModel string
	ProviderName string // registry name, e.g. "openrouter", "anthropic"
	Timeout      time.Duration
}

// New creates the schema.LLMProvider for the given params. All supported
// providers speak either the OpenAI chat-completions format or the Anthropic
// Messages format; OpenAIProvider handles both.
func New(p Params) schema.LLMProvider {
	return NewOpenAIProvider(p)
}
