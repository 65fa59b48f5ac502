// Package commands routes prefixed text messages to registered command handlers.
package commands

import (
	"context"
	"errors"

	"github.com/jdelaire/turnbot/core"
)

var (
	ErrCommandsAlreadySet = errors.New("commands are already set")
	ErrNoScope            = errors.New("command must have a private or group handler")
	ErrInvalidName        = errors.New("command name must be non-empty without whitespace or '@'")
	ErrUnknownCommand     = errors.New("no such command")
)

// HandlerFunc runs a command with the arguments that followed its name.
type HandlerFunc func(ctx context.Context, conv *core.Conversation, args []string) error

// WrongScopeFunc is called when a command is used in a chat kind it does not
// support. isPrivate reports the scope it was invoked in.
type WrongScopeFunc func(ctx context.Context, conv *core.Conversation, cmd Command, isPrivate bool) error

// PreExecutionFunc runs before commands flagged with NeedsPreExecution. A non-nil
// error stops the command.
type PreExecutionFunc func(ctx context.Context, conv *core.Conversation, cmd Command, args []string) error

// Command is a bot command. A nil handler means the command is not available
// in that scope.
type Command struct {
	Name              string
	Description       string
	Private           HandlerFunc
	Group             HandlerFunc
	NeedsPreExecution bool
}

// AllowedInPrivate reports whether the command can be used in private chats.
func (c Command) AllowedInPrivate() bool { return c.Private != nil }

// AllowedInGroup reports whether the command can be used in groups.
func (c Command) AllowedInGroup() bool { return c.Group != nil }

func (c Command) handler(isPrivate bool) HandlerFunc {
	if isPrivate {
		return c.Private
	}
	return c.Group
}
