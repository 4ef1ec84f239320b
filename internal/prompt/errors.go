// Package prompt assembles the message list sent to the model and parses
// the slash commands users type into a chat.
package prompt

import "errors"

// Prompt errors.
var (
	// ErrTemplateRender indicates that template rendering failed.
	ErrTemplateRender = errors.New("prompt: template render failed")
)
