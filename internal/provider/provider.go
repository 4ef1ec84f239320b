// Package provider defines the language-model collaborator: the message
// types exchanged with it, its error taxonomy and a retrying wrapper.
package provider

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Chat sends a chat request and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

// Name implements Provider.
func (f ProviderFunc) Name() string { return "func" }

// Chat implements Provider.
func (f ProviderFunc) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return f(ctx, req)
}
