package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Menu names a menu opened by the command. When set and Handler is nil,
	// the router synthesizes a handler that opens it.
	Menu      string
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}
