package prompt

import (
	"strings"
)

// SlashCommand represents a parsed slash command.
type SlashCommand struct {
	Name string   // Command name without the slash, e.g. "source"
	Args []string // Whitespace separated arguments
	Rest string   // Everything after the command name, trimmed
}

// SlashCommandParser parses slash commands from input text.
type SlashCommandParser struct {
	commands map[string]struct{}
}

// NewSlashCommandParser creates a parser that knows the given commands.
func NewSlashCommandParser(names ...string) *SlashCommandParser {
	p := &SlashCommandParser{commands: make(map[string]struct{}, len(names))}
	for _, n := range names {
		p.RegisterCommand(n)
	}
	return p
}

// RegisterCommand registers a command name.
func (p *SlashCommandParser) RegisterCommand(name string) {
	p.commands[strings.ToLower(name)] = struct{}{}
}

// Parse parses a slash command from input text.
// Returns nil if the input is not a registered slash command.
// A "@botname" suffix on the command, as group chats add it, is ignored.
func (p *SlashCommandParser) Parse(input string) *SlashCommand {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	head, rest, _ := strings.Cut(input[1:], " ")
	if i := strings.IndexByte(head, '\n'); i >= 0 {
		rest = head[i+1:] + " " + rest
		head = head[:i]
	}
	name, _, _ := strings.Cut(head, "@")
	name = strings.ToLower(name)
	if _, ok := p.commands[name]; !ok {
		return nil
	}

	rest = strings.TrimSpace(rest)
	return &SlashCommand{
		Name: name,
		Args: strings.Fields(rest),
		Rest: rest,
	}
}

// IsCommand checks if the input starts with a registered slash command.
func (p *SlashCommandParser) IsCommand(input string) bool {
	return p.Parse(input) != nil
}
