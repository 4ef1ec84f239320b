package history

import "pawbot/internal/config"

// MinBudget is the smallest prompt budget Enforce works with.
const MinBudget = 64

// Config holds configuration for history enforcement.
type Config struct {
	// Window is how many dialogue entries survive the first-pass trim.
	// Default: 20
	Window int

	// MaxTokens is the model's context size.
	// Default: 128000
	MaxTokens int

	// ReserveTokens is headroom kept free for the model's reply.
	// Default: 1500
	ReserveTokens int

	// SummaryAttempts bounds summarization calls per rollover.
	// Default: 2
	SummaryAttempts int

	// SummaryMaxTokens caps the summary reply.
	// Default: 400
	SummaryMaxTokens int

	// Model is used for token estimation and the summary request.
	Model string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Window:           20,
		MaxTokens:        128000,
		ReserveTokens:    1500,
		SummaryAttempts:  2,
		SummaryMaxTokens: 400,
	}
}

// FromConfig maps the application configuration.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Window:           cfg.History.Window,
		MaxTokens:        cfg.Model.ContextTokens,
		ReserveTokens:    cfg.History.ReserveTokens,
		SummaryAttempts:  cfg.History.SummaryAttempts,
		SummaryMaxTokens: cfg.History.SummaryMaxTokens,
		Model:            cfg.Model.Name,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.ReserveTokens < 0 {
		c.ReserveTokens = 0
	}
	// keep at least MinBudget for the prompt when the context allows it
	if c.MaxTokens-c.ReserveTokens < MinBudget {
		c.ReserveTokens = max(0, c.MaxTokens-MinBudget)
	}
	if c.SummaryAttempts <= 0 {
		c.SummaryAttempts = 1
	}
	if c.SummaryMaxTokens <= 0 {
		c.SummaryMaxTokens = def.SummaryMaxTokens
	}
	return c
}
