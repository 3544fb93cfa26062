// Package command parses and runs the /observe and /observations chat commands.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"fieldnotes.ai/internal/markup"
	"fieldnotes.ai/internal/observation"
)

const PermPrefix = "observations"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoPermission    = errors.New("no permission")
	ErrNotPlayer       = errors.New("player only")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrNotFound        = errors.New("observation not found")
	ErrRateLimited     = errors.New("rate limited")
)

// Error carries the chat lines to show the sender alongside its kind.
type Error struct {
	Kind  error
	Lines []string
}

func (e *Error) Error() string {
	if len(e.Lines) == 0 {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + markup.Strip(strings.Join(e.Lines, " "))
}

func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, lines ...string) error {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = markup.Translate(l)
	}
	return &Error{Kind: kind, Lines: out}
}

// Sender is whoever issued a command.
type Sender interface {
	observation.Actor
	Name() string
	IsPlayer() bool
	HasPermission(node string) bool
	Location() observation.Location
}

// Coordinator is the part of the lifecycle coordinator the commands drive.
type Coordinator interface {
	Exec(ctx context.Context, fn func()) error
	Now() time.Time
	Find(id int64) (*observation.Observation, bool)
	List() []*observation.Observation
	Near(world string, p observation.Vec3, radius float64) []*observation.Observation
	RequestCreate(author string, source observation.Location, text string, expiresAt *time.Time) *observation.Observation
	Delete(o *observation.Observation, onPersisted func(error)) bool
	ReRender(o *observation.Observation) bool
	SetExpiration(o *observation.Observation, expiresAt *time.Time) bool
}

type Config struct {
	DateLayout string
	TimeZone   *time.Location
	Limiter    *Limiter
	Logger     *log.Logger
}

type runFunc func(ctx context.Context, s Sender, args []string) ([]string, error)

type subCommand struct {
	base        string
	name        string
	description string
	args        []string
	minArgs     int
	maxArgs     int
	playerOnly  bool
	rawArgs     bool
	run         runFunc
}

func (c *subCommand) permission() string {
	return PermPrefix + "." + strings.ToLower(c.base) + "." + strings.ToLower(c.name)
}

func (c *subCommand) wildcard() string {
	return PermPrefix + "." + strings.ToLower(c.base) + ".*"
}

func (c *subCommand) allowed(s Sender) bool {
	return s.HasPermission(c.permission()) || s.HasPermission(c.wildcard())
}

func (c *subCommand) command() string {
	if c.name == "" || c.base == "observe" {
		return "&7/" + c.base
	}
	return "&7/" + c.base + " &b" + c.name
}

func formatArg(arg string) string {
	arg = strings.Trim(arg, "[]")
	opts := strings.Split(arg, "|")
	for i, o := range opts {
		opts[i] = "&3" + o
	}
	return "&7<" + strings.Join(opts, "&8 | ") + "&7>"
}

func (c *subCommand) usage() string {
	parts := []string{c.command()}
	for _, a := range c.args {
		if strings.HasPrefix(a, "[") {
			parts = append(parts, "&7["+formatArg(a)+"&7]")
			continue
		}
		parts = append(parts, formatArg(a))
	}
	return strings.Join(parts, " ")
}

func (c *subCommand) helpLine() string {
	return c.command() + "&8 - &f" + c.description
}

// Dispatcher routes command lines to their sub-commands.
type Dispatcher struct {
	coord   Coordinator
	cfg     Config
	log     *log.Logger
	limiter *Limiter

	// base -> sub -> command; "observe" has a single unnamed sub.
	commands map[string]map[string]*subCommand
}

func NewDispatcher(coord Coordinator, cfg Config) *Dispatcher {
	if cfg.DateLayout == "" {
		cfg.DateLayout = observation.DefaultDateLayout
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	d := &Dispatcher{
		coord:    coord,
		cfg:      cfg,
		log:      logger,
		limiter:  cfg.Limiter,
		commands: map[string]map[string]*subCommand{},
	}
	d.register()
	return d
}

func (d *Dispatcher) add(c *subCommand) {
	for _, a := range c.args {
		if strings.HasPrefix(a, "[") {
			c.maxArgs++
			continue
		}
		c.minArgs++
		c.maxArgs++
	}
	if d.commands[c.base] == nil {
		d.commands[c.base] = map[string]*subCommand{}
	}
	d.commands[c.base][c.name] = c
}

// Dispatch runs line for s and returns the chat lines to send back.
// Failures are *Error values whose Kind is one of the package sentinels.
func (d *Dispatcher) Dispatch(ctx context.Context, s Sender, line string) ([]string, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return nil, fail(ErrUnknownCommand, "&cEmpty command!")
	}
	base := strings.ToLower(fields[0])
	subs, ok := d.commands[base]
	if !ok {
		return nil, fail(ErrUnknownCommand, "&cUnknown command &4"+fields[0]+"&c!")
	}

	rest := fields[1:]
	var c *subCommand
	if base == "observe" {
		c = subs[""]
	} else {
		if len(rest) == 0 {
			return d.help(base), nil
		}
		c, ok = subs[strings.ToLower(rest[0])]
		if !ok {
			return nil, fail(ErrUnknownCommand, "&cUnknown sub-command &4"+rest[0]+"&c!", "  &7Try &b/"+base+" help")
		}
		rest = rest[1:]
	}

	if !c.allowed(s) {
		return nil, fail(ErrNoPermission, "&cYou do not have the required permission!", "  &f&o"+c.permission())
	}
	if c.playerOnly && !s.IsPlayer() {
		return nil, fail(ErrNotPlayer, "&cYou must be a player!")
	}

	args := rest
	if !c.rawArgs {
		args = ParseArgs(strings.Join(rest, " "))
		if len(args) < c.minArgs {
			var missing []string
			for i := len(args); i < len(c.args); i++ {
				missing = append(missing, formatArg(c.args[i]))
			}
			return nil, fail(ErrInvalidArgument, "&cMissing argument(s): "+strings.Join(missing, "&7, "), "  "+c.usage())
		}
		if len(args) > c.maxArgs {
			return nil, fail(ErrInvalidArgument, "&cToo many arguments!", "  "+c.usage())
		}
	}

	out, err := c.run(ctx, s, args)
	if err != nil {
		var ce *Error
		if !errors.As(err, &ce) {
			d.log.Printf("command %q by %s: %v", line, s.Name(), err)
		}
		return nil, err
	}
	return translateAll(out), nil
}

func (d *Dispatcher) help(base string) []string {
	subs := d.commands[base]
	names := make([]string, 0, len(subs))
	for n := range subs {
		names = append(names, n)
	}
	sort.Strings(names)
	out := []string{"&7&m-----------------&r &9&l/" + base + " help&r &7&m-----------------"}
	for _, n := range names {
		out = append(out, subs[n].helpLine())
	}
	return translateAll(out)
}

func translateAll(lines []string) []string {
	for i, l := range lines {
		lines[i] = markup.Translate(l)
	}
	return lines
}

var argPattern = regexp.MustCompile(`("[^"]*"|[^"\s]\S*)\s*`)

// ParseArgs splits s on whitespace, keeping "double quoted" runs as one argument.
func ParseArgs(s string) []string {
	var out []string
	for _, m := range argPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, strings.ReplaceAll(m[1], `"`, ""))
	}
	return out
}

func (d *Dispatcher) date(t time.Time) string {
	return t.In(d.cfg.TimeZone).Format(d.cfg.DateLayout)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
