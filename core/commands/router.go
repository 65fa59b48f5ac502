package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/jdelaire/turnbot/core"
	"github.com/jdelaire/turnbot/core/tg"
)

// DefaultPrefix is the command prefix used by Telegram clients.
const DefaultPrefix = '/'

// Router holds the command table and its extension points. Commands are set once;
// extension points must be set before updates are dispatched.
type Router struct {
	prefix byte

	mu       sync.RWMutex
	commands map[string]Command // key: lower-cased name with prefix

	onUnknown    HandlerFunc
	onWrongScope WrongScopeFunc
	onPreExec    PreExecutionFunc
	onDefault    HandlerFunc
}

// NewRouter creates a router for the given prefix character.
func NewRouter(prefix byte) *Router {
	return &Router{
		prefix:   prefix,
		commands: make(map[string]Command),
	}
}

// Prefix returns the command prefix.
func (r *Router) Prefix() byte { return r.prefix }

// OnUnknown sets the handler for commands that are not registered.
func (r *Router) OnUnknown(fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUnknown = fn
}

// OnWrongScope sets the handler for commands used in an unsupported chat kind.
func (r *Router) OnWrongScope(fn WrongScopeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onWrongScope = fn
}

// OnPreExecution sets the hook for commands flagged with NeedsPreExecution.
func (r *Router) OnPreExecution(fn PreExecutionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPreExec = fn
}

// OnDefault sets the handler for a bare prefix without a command name.
func (r *Router) OnDefault(fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDefault = fn
}

// SetCommands installs the command table. It can succeed only once with a
// non-empty batch; an empty batch is a no-op. The batch is validated as a whole
// and the table is left untouched on error.
func (r *Router) SetCommands(cmds ...Command) error {
	if len(cmds) == 0 {
		return nil
	}

	table := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		if c.Private == nil && c.Group == nil {
			return fmt.Errorf("%w: %q", ErrNoScope, c.Name)
		}
		name, err := r.normalize(c.Name)
		if err != nil {
			return err
		}
		key := strings.ToLower(name)
		if _, dup := table[key]; dup {
			return fmt.Errorf("duplicate command %q", name)
		}
		c.Name = name
		table[key] = c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) > 0 {
		return ErrCommandsAlreadySet
	}
	r.commands = table
	return nil
}

// Commands returns the registered command names, prefix included, sorted.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for _, c := range r.commands {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the command registered under name, with or without prefix.
func (r *Router) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[r.key(name)]
	return c, ok
}

// Description returns the description of a registered command.
func (r *Router) Description(name string) (string, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return c.Description, nil
}

// IsPrivateCommand reports whether name may be used in private chats. Unknown
// names report true.
func (r *Router) IsPrivateCommand(name string) bool {
	c, ok := r.Lookup(name)
	return !ok || c.AllowedInPrivate()
}

// IsGroupCommand reports whether name may be used in groups. Unknown names
// report true.
func (r *Router) IsGroupCommand(name string) bool {
	c, ok := r.Lookup(name)
	return !ok || c.AllowedInGroup()
}

// HelpText lists the commands with their descriptions.
func (r *Router) HelpText() string {
	names := r.Commands()
	if len(names) == 0 {
		return "No commands available."
	}

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range names {
		desc, _ := r.Description(name)
		if desc == "" {
			fmt.Fprintf(&b, "  %s\n", name)
			continue
		}
		fmt.Fprintf(&b, "  %s - %s\n", name, desc)
	}
	return b.String()
}

// BotCommands returns the table in the form expected by setMyCommands.
func (r *Router) BotCommands() []tg.BotCommand {
	names := r.Commands()
	out := make([]tg.BotCommand, 0, len(names))
	for _, name := range names {
		desc, _ := r.Description(name)
		bare := strings.TrimPrefix(name, string(r.prefix))
		if desc == "" {
			desc = bare
		}
		out = append(out, tg.BotCommand{Command: bare, Description: desc})
	}
	return out
}

// Route runs the command carried by the conversation's current message.
func (r *Router) Route(ctx context.Context, conv *core.Conversation, botName string) error {
	name, args, ok := r.parse(conv.Update.Text(), botName)
	if !ok {
		return nil
	}

	r.mu.RLock()
	cmd, known := r.commands[strings.ToLower(name)]
	onUnknown, onWrongScope, onPreExec, onDefault := r.onUnknown, r.onWrongScope, r.onPreExec, r.onDefault
	r.mu.RUnlock()

	if name == string(r.prefix) {
		if onDefault == nil {
			return nil
		}
		return onDefault(ctx, conv, args)
	}

	if !known {
		if onUnknown == nil {
			return nil
		}
		return onUnknown(ctx, conv, args)
	}

	isPrivate := conv.ChatKind() == core.ChatPrivate
	h := cmd.handler(isPrivate)
	if h == nil {
		if onWrongScope == nil {
			return nil
		}
		return onWrongScope(ctx, conv, cmd, isPrivate)
	}

	if cmd.NeedsPreExecution && onPreExec != nil {
		if err := onPreExec(ctx, conv, cmd, args); err != nil {
			return fmt.Errorf("pre-execution %s: %w", cmd.Name, err)
		}
	}
	return h(ctx, conv, args)
}

// parse splits "/name@bot arg1 arg2" into the prefixed name and arguments. The
// mention is stripped only when it names this bot (or the bot name is unknown),
// so "/name@OtherBot" stays whole and routes as an unknown command. Only the
// first token is inspected for the mention.
func (r *Router) parse(text, botName string) (name string, args []string, ok bool) {
	if text == "" || text[0] != r.prefix {
		return "", nil, false
	}
	rest := text[1:]
	token, tail := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		token, tail = rest[:i], rest[i:]
	}

	if at := strings.IndexByte(token, '@'); at >= 0 {
		if target := token[at+1:]; target == "" || botName == "" || strings.EqualFold(target, botName) {
			token = token[:at]
		}
	}
	return string(r.prefix) + token, strings.Fields(tail), true
}

func (r *Router) normalize(name string) (string, error) {
	bare := strings.TrimLeft(strings.TrimSpace(name), string(r.prefix))
	if bare == "" || strings.ContainsFunc(name, unicode.IsSpace) || strings.ContainsRune(bare, '@') {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return string(r.prefix) + bare, nil
}

func (r *Router) key(name string) string {
	return strings.ToLower(string(r.prefix) + strings.TrimLeft(name, string(r.prefix)))
}

var _ core.CommandRouter = (*Router)(nil)
