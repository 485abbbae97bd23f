package schema

// AgentSettings bundles the per-turn tunables the conversation engine needs.
// MaxIter bounds the oracle/tool iteration loop; MemoryWindow limits how many
// history messages are replayed to the oracle each turn (0 = unlimited).
type AgentSettings struct {
	Model        string
	MaxIter      int
	Temperature  float64
	MaxTokens    int
	MemoryWindow int
}

func NewAgentSettings(model string, maxIter int, temperature float64, maxTokens int, memoryWindow int) AgentSettings {
	return AgentSettings{
		Model:        model,
		MaxIter:      maxIter,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		MemoryWindow: memoryWindow,
	}
}
