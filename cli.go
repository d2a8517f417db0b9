package keel

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Process exit codes returned by Dispatch.
const (
	ExitSuccess  = 0
	ExitFailure  = 1
	ExitNotFound = 2
)

// DefaultCommand runs when no command is supplied.
const DefaultCommand = "list"

// Command is a CLI command handler declared in a module command map.
type Command interface {
	// Description returns the one-line summary shown by list and help.
	Description() string

	// Arguments declares the flags and positional arguments of the command.
	Arguments(p *Parser)

	// Run executes the command. Returning false reports a handled failure.
	// A returned error is not handled by the dispatcher.
	Run(ctx context.Context, args *Args) (bool, error)

	// SkipArgs disables argument parsing; Run then receives nil args.
	SkipArgs() bool
}

// CommandBase carries the container and console for a command.
// Embed it and implement Description and Run.
type CommandBase struct {
	Container *Container
	TTY       *Console
}

// NewCommandBase builds a CommandBase using the console stored in c.
func NewCommandBase(c *Container) CommandBase {
	tty, err := Get[*Console](c, KeyConsole)
	if err != nil {
		tty = NewTerminalConsole()
	}
	return CommandBase{Container: c, TTY: tty}
}

func (CommandBase) Arguments(*Parser) {}

func (CommandBase) SkipArgs() bool { return false }

type positional struct {
	name  string
	usage string
}

// Parser collects a command's flags and required positional arguments.
// Flags may appear before, between or after positionals; "--" ends flag
// parsing.
type Parser struct {
	name        string
	fs          *flag.FlagSet
	positionals []positional
	rest        *positional
}

// NewParser creates a parser for the named command.
func NewParser(name string) *Parser {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return &Parser{name: name, fs: fs}
}

// String declares a string flag.
func (p *Parser) String(name, value, usage string) {
	p.fs.String(name, value, usage)
}

// Bool declares a boolean flag.
func (p *Parser) Bool(name string, value bool, usage string) {
	p.fs.Bool(name, value, usage)
}

// Int declares an integer flag.
func (p *Parser) Int(name string, value int, usage string) {
	p.fs.Int(name, value, usage)
}

// Duration declares a duration flag.
func (p *Parser) Duration(name string, value time.Duration, usage string) {
	p.fs.Duration(name, value, usage)
}

// Positional declares a required positional argument. Positionals are
// matched in declaration order.
func (p *Parser) Positional(name, usage string) {
	p.positionals = append(p.positionals, positional{name: name, usage: usage})
}

// Rest accepts any number of trailing arguments after the positionals.
// Without it, leftover arguments are rejected.
func (p *Parser) Rest(name, usage string) {
	p.rest = &positional{name: name, usage: usage}
}

// Parse parses argv. flag.ErrHelp is returned unwrapped for -h and -help.
func (p *Parser) Parse(argv []string) (*Args, error) {
	operands, err := p.parseFlags(argv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, flag.ErrHelp
		}
		return nil, ArgumentError{Command: p.name, Cause: err}
	}

	values := make(map[string]string, len(p.positionals))
	for _, pos := range p.positionals {
		if len(operands) == 0 {
			return nil, ArgumentError{Command: p.name, Cause: fmt.Errorf("%s: %w", pos.name, ErrMissingArgument)}
		}
		values[pos.name] = operands[0]
		operands = operands[1:]
	}

	if len(operands) > 0 && p.rest == nil {
		return nil, ArgumentError{Command: p.name, Cause: fmt.Errorf("%q: %w", operands[0], ErrUnexpectedArgument)}
	}

	return &Args{fs: p.fs, positionals: values, rest: operands}, nil
}

// parseFlags parses every flag in argv and returns the non-flag arguments in
// order. The flag set stops at the first non-flag argument, so parsing
// resumes after each one.
func (p *Parser) parseFlags(argv []string) ([]string, error) {
	var operands []string

	remaining := argv
	for {
		if err := p.fs.Parse(remaining); err != nil {
			return nil, err
		}

		next := p.fs.Args()
		if consumed := len(remaining) - len(next); consumed > 0 && remaining[consumed-1] == "--" {
			return append(operands, next...), nil
		}
		if len(next) == 0 {
			return operands, nil
		}

		operands = append(operands, next[0])
		remaining = next[1:]
	}
}

// Usage formats the declared parameters, one per line.
func (p *Parser) Usage() string {
	var b strings.Builder

	if len(p.positionals) > 0 || p.rest != nil {
		b.WriteString("arguments:\n")
		for _, pos := range p.positionals {
			fmt.Fprintf(&b, "  %-20s %s\n", pos.name, pos.usage)
		}
		if p.rest != nil {
			fmt.Fprintf(&b, "  %-20s %s\n", p.rest.name+"...", p.rest.usage)
		}
	}

	first := true
	p.fs.VisitAll(func(f *flag.Flag) {
		if first {
			b.WriteString("options:\n")
			first = false
		}
		line := "--" + f.Name
		if f.DefValue != "" && f.DefValue != "false" {
			fmt.Fprintf(&b, "  %-20s %s (default %s)\n", line, f.Usage, f.DefValue)
			return
		}
		fmt.Fprintf(&b, "  %-20s %s\n", line, f.Usage)
	})

	return b.String()
}

// Synopsis returns the one-line usage of the command for program.
func (p *Parser) Synopsis(program string) string {
	parts := []string{program, p.name}
	for _, pos := range p.positionals {
		parts = append(parts, "<"+pos.name+">")
	}
	if p.rest != nil {
		parts = append(parts, "["+p.rest.name+"...]")
	}
	parts = append(parts, "[OPTIONS...]")
	return strings.Join(parts, " ")
}

// Args holds the parsed arguments of a command.
type Args struct {
	fs          *flag.FlagSet
	positionals map[string]string
	rest        []string
}

func (a *Args) lookup(name string) string {
	if a == nil || a.fs == nil {
		return ""
	}
	f := a.fs.Lookup(name)
	if f == nil {
		return ""
	}
	return f.Value.String()
}

// String returns the value of a string flag.
func (a *Args) String(name string) string {
	return a.lookup(name)
}

// Bool returns the value of a boolean flag.
func (a *Args) Bool(name string) bool {
	v, _ := strconv.ParseBool(a.lookup(name))
	return v
}

// Int returns the value of an integer flag.
func (a *Args) Int(name string) int {
	v, _ := strconv.Atoi(a.lookup(name))
	return v
}

// Duration returns the value of a duration flag.
func (a *Args) Duration(name string) time.Duration {
	v, _ := time.ParseDuration(a.lookup(name))
	return v
}

// Positional returns a positional argument by name.
func (a *Args) Positional(name string) string {
	if a == nil {
		return ""
	}
	return a.positionals[name]
}

// Rest returns the trailing arguments accepted by Parser.Rest.
func (a *Args) Rest() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.rest...)
}

// Dispatcher resolves a command name to a module-declared handler, parses its
// arguments, runs it and maps the outcome to an exit code.
type Dispatcher struct {
	container *Container
	registry  *Registry
	console   *Console
	logger    *zap.Logger
	metrics   *Metrics
	program   string
}

// NewDispatcher creates a dispatcher over the commands of registry.
func NewDispatcher(c *Container, registry *Registry, program string) *Dispatcher {
	logger, err := Get[*zap.Logger](c, KeyLogger)
	if err != nil {
		logger = zap.NewNop()
	}
	console, err := Get[*Console](c, KeyConsole)
	if err != nil {
		console = NewTerminalConsole()
	}
	metrics, _ := Get[*Metrics](c, KeyMetrics)

	return &Dispatcher{
		container: c,
		registry:  registry,
		console:   console,
		logger:    logger,
		metrics:   metrics,
		program:   program,
	}
}

// Dispatch runs argv[0] (or DefaultCommand) with the remaining arguments.
//
// The returned code is ExitSuccess, ExitFailure or ExitNotFound. A non-nil
// error means the command could not be instantiated or its Run failed; the
// caller is expected to abort.
func (d *Dispatcher) Dispatch(ctx context.Context, argv []string) (int, error) {
	name := DefaultCommand
	if len(argv) > 0 {
		name, argv = argv[0], argv[1:]
	}

	// Resolve
	entry, ok := d.registry.FindCommand(name)
	if !ok {
		d.console.Error("%v", CommandNotFoundError{Command: name})
		return d.exit(name, ExitNotFound), nil
	}

	if entry.Factory == nil {
		return ExitFailure, CommandLoadError{Command: name, Module: entry.Module, Cause: ErrNilConstructor}
	}
	cmd := entry.Factory(d.container)
	if cmd == nil {
		return ExitFailure, CommandLoadError{Command: name, Module: entry.Module, Cause: ErrNilCommand}
	}

	// ParseArgs
	var args *Args
	if !cmd.SkipArgs() {
		parser := NewParser(name)
		cmd.Arguments(parser)

		parsed, err := parser.Parse(argv)
		switch {
		case errors.Is(err, flag.ErrHelp):
			d.printUsage(name, cmd, parser)
			return d.exit(name, ExitSuccess), nil
		case err != nil:
			d.console.Error("%v", err)
			d.printUsage(name, cmd, parser)
			return d.exit(name, ExitFailure), nil
		}
		args = parsed
	}

	// Execute
	d.logger.Debug("running command", zap.String("command", name), zap.String("module", entry.Module))
	success, err := cmd.Run(ctx, args)
	if err != nil {
		d.metrics.recordExit(name, ExitFailure)
		return ExitFailure, fmt.Errorf("command %q: %w", name, err)
	}
	if !success {
		return d.exit(name, ExitFailure), nil
	}
	return d.exit(name, ExitSuccess), nil
}

func (d *Dispatcher) exit(command string, code int) int {
	d.metrics.recordExit(command, code)
	return code
}

func (d *Dispatcher) printUsage(name string, cmd Command, parser *Parser) {
	d.console.Write("%s: %s", name, cmd.Description())
	d.console.Write("usage: %s\n", parser.Synopsis(d.program))
	if usage := parser.Usage(); usage != "" {
		d.console.Write("%s", strings.TrimRight(usage, "\n"))
	}
}
