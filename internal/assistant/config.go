package assistant

import (
	"time"

	"pawbot/internal/config"
)

// Config holds configuration for the turn orchestrator.
type Config struct {
	// Name is how the assistant introduces itself.
	Name string

	// Model, MaxOutputTokens and Temperature shape the answer request.
	Model           string
	MaxOutputTokens int
	Temperature     float64

	// ContextTokens is the model context size, used for the
	// "tokens left" footer.
	ContextTokens int

	// AllowUsers limits who may talk to the assistant. Empty allows everyone.
	AllowUsers []string

	// Triggers address the assistant in group chats.
	Triggers []string

	// TurnTimeout bounds one Handle call. Zero disables the deadline.
	TurnTimeout time.Duration

	// ReplyLimit is the largest message the transport accepts.
	// Default: 4096
	ReplyLimit int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Name:            "Душнилла",
		Model:           "gpt-4o-mini",
		MaxOutputTokens: 1500,
		Temperature:     0.8,
		ContextTokens:   128000,
		Triggers:        config.DefaultTriggers,
		TurnTimeout:     3 * time.Minute,
		ReplyLimit:      4096,
	}
}

// FromConfig maps the application configuration.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Name:            cfg.Assistant.Name,
		Model:           cfg.Model.Name,
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
		Temperature:     cfg.Model.Temperature,
		ContextTokens:   cfg.Model.ContextTokens,
		AllowUsers:      cfg.Assistant.AllowUsers,
		Triggers:        cfg.Assistant.Triggers,
		TurnTimeout:     cfg.Assistant.TurnTimeout,
		ReplyLimit:      cfg.Assistant.ReplyLimit,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = def.MaxOutputTokens
	}
	if c.ContextTokens <= 0 {
		c.ContextTokens = def.ContextTokens
	}
	if c.ReplyLimit <= 0 {
		c.ReplyLimit = def.ReplyLimit
	}
	return c
}
