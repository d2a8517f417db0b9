package keel

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/go-chi/chi/v5"
)

// BaseModuleRef is the catalog reference of the system module loaded first
// by every application.
const BaseModuleRef = "keel.base"

// Version is the keel release.
const Version = "0.4.0"

// NewBaseModule creates the system module declaring the built-in commands
// and the idle job.
func NewBaseModule(c *Container) (Module, error) {
	interval := defaultJobIdleInterval
	if cfg, err := Get[*Config](c, KeyConfig); err == nil {
		interval = cfg.Duration(CfgJobIdleInterval, defaultJobIdleInterval)
	}

	return &BaseModule{
		ModuleName:        "base",
		ModuleDescription: "keel base module",
		CommandMap: CommandMap{
			"list":        func(c *Container) Command { return &ListCmd{NewCommandBase(c)} },
			"help":        func(c *Container) Command { return &HelpCmd{NewCommandBase(c)} },
			"version":     func(c *Container) Command { return &VersionCmd{NewCommandBase(c)} },
			"runserver":   func(c *Container) Command { return &RunServerCmd{NewCommandBase(c)} },
			"route:list":  func(c *Container) Command { return &RouteListCmd{NewCommandBase(c)} },
			"job:list":    func(c *Container) Command { return &JobListCmd{NewCommandBase(c)} },
			"job:run":     func(c *Container) Command { return &JobRunCmd{NewCommandBase(c)} },
			"fixture:run": func(c *Container) Command { return &FixtureRunCmd{NewCommandBase(c)} },
		},
		JobList: []JobSpec{
			{Name: "idle", New: func(*Container) (Job, error) { return NewIdleJob(interval), nil }},
		},
	}, nil
}

func (b CommandBase) app() (*Application, error) {
	return Get[*Application](b.Container, KeyApp)
}

func (b CommandBase) registry() (*Registry, error) {
	return Get[*Registry](b.Container, KeyModules)
}

// ListCmd prints every dispatchable command.
type ListCmd struct {
	CommandBase
}

func (c *ListCmd) Description() string {
	return "list available commands"
}

func (c *ListCmd) Run(ctx context.Context, args *Args) (bool, error) {
	registry, err := c.registry()
	if err != nil {
		return false, err
	}
	program := programName(c.Container)

	c.TTY.Write("\nusage: %s <command> [OPTIONS...]\n", program)
	c.TTY.Write("available commands:")
	for _, entry := range registry.Commands() {
		cmd := entry.Factory(c.Container)
		if cmd == nil {
			return false, CommandLoadError{Command: entry.Name, Module: entry.Module, Cause: ErrNilCommand}
		}
		c.TTY.Write("%s \t %s", c.TTY.Green(entry.Name), c.TTY.White(cmd.Description()))
	}
	return true, nil
}

// HelpCmd prints the usage of a single command.
type HelpCmd struct {
	CommandBase
}

func (c *HelpCmd) Description() string {
	return "display usage information for a given command"
}

func (c *HelpCmd) Arguments(p *Parser) {
	p.Positional("command", "command to get usage details")
}

func (c *HelpCmd) Run(ctx context.Context, args *Args) (bool, error) {
	registry, err := c.registry()
	if err != nil {
		return false, err
	}

	name := args.Positional("command")
	entry, ok := registry.FindCommand(name)
	if !ok {
		c.TTY.Error("Error: command '%s' not found", name)
		return false, nil
	}
	cmd := entry.Factory(c.Container)
	if cmd == nil {
		return false, CommandLoadError{Command: name, Module: entry.Module, Cause: ErrNilCommand}
	}

	parser := NewParser(name)
	cmd.Arguments(parser)

	c.TTY.Write("%s: %s\n", name, cmd.Description())
	c.TTY.Write("usage: %s\n", parser.Synopsis(programName(c.Container)))
	if usage := parser.Usage(); usage != "" {
		c.TTY.Write("%s", strings.TrimRight(usage, "\n"))
	}
	return true, nil
}

// VersionCmd prints the keel version.
type VersionCmd struct {
	CommandBase
}

func (c *VersionCmd) Description() string {
	return "display keel version"
}

func (c *VersionCmd) Run(ctx context.Context, args *Args) (bool, error) {
	c.TTY.Write("keel version %s", Version)
	return true, nil
}

// RunServerCmd serves the application router until interrupted.
type RunServerCmd struct {
	CommandBase
}

func (c *RunServerCmd) Description() string {
	return "run the HTTP server"
}

func (c *RunServerCmd) Arguments(p *Parser) {
	p.String("addr", "", "listen address (defaults to server_address)")
}

func (c *RunServerCmd) Run(ctx context.Context, args *Args) (bool, error) {
	app, err := c.app()
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := func(*Container, os.Signal) { cancel() }
	signals := app.Signals()
	removeInterrupt := signals.AddHandler(os.Interrupt, stop)
	defer removeInterrupt()
	removeTerm := signals.AddHandler(syscall.SIGTERM, stop)
	defer removeTerm()
	signals.Start()
	defer signals.Stop()

	server := NewServer(app, args.String("addr"))
	c.TTY.Write("Starting server on %s, press CTRL+C to stop...", server.Addr())
	if err := server.ListenAndServe(ctx); err != nil {
		c.TTY.Error("Error: %v", err)
		return false, nil
	}
	return true, nil
}

// RouteListCmd prints the routes registered on the application router.
type RouteListCmd struct {
	CommandBase
}

func (c *RouteListCmd) Description() string {
	return "list routes"
}

func (c *RouteListCmd) Run(ctx context.Context, args *Args) (bool, error) {
	app, err := c.app()
	if err != nil {
		return false, err
	}

	tw := tabwriter.NewWriter(c.TTY.Out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Endpoint\tMethods")
	err = chi.Walk(app.Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		_, err := fmt.Fprintf(tw, "%s\t%s\n", route, method)
		return err
	})
	if err != nil {
		return false, err
	}
	return true, tw.Flush()
}

// JobListCmd prints the jobs declared by each module.
type JobListCmd struct {
	CommandBase
}

func (c *JobListCmd) Description() string {
	return "list registered job workers"
}

func (c *JobListCmd) Run(ctx context.Context, args *Args) (bool, error) {
	registry, err := c.registry()
	if err != nil {
		return false, err
	}

	current := ""
	for _, entry := range registry.Jobs() {
		if entry.Module != current {
			current = entry.Module
			c.TTY.Write("Worker Jobs for module %s:", current)
		}
		c.TTY.Write("%s", c.TTY.Bold("   "+entry.Spec.Name))
	}
	return true, nil
}

// JobRunCmd runs every declared job in the job loop until interrupted.
type JobRunCmd struct {
	CommandBase
}

func (c *JobRunCmd) Description() string {
	return "run all job workers"
}

func (c *JobRunCmd) Run(ctx context.Context, args *Args) (bool, error) {
	app, err := c.app()
	if err != nil {
		return false, err
	}
	registry, err := c.registry()
	if err != nil {
		return false, err
	}

	entries := registry.Jobs()
	for _, entry := range entries {
		c.TTY.Write("Preparing job '%s'...", entry.Spec.Name)
	}
	runner, err := NewJobRunner(c.Container, entries)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := app.Signals()
	remove := signals.AddHandler(os.Interrupt, func(*Container, os.Signal) {
		c.TTY.Write("\nCtrl+C pressed, exiting...")
		cancel()
	})
	defer remove()
	signals.Start()
	defer signals.Stop()

	c.TTY.Write("\nRunning jobs, press CTRL+C to abort...")
	if err := runner.Run(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FixtureRunCmd runs the declared fixtures in load order.
type FixtureRunCmd struct {
	CommandBase
}

func (c *FixtureRunCmd) Description() string {
	return "run fixtures"
}

func (c *FixtureRunCmd) Arguments(p *Parser) {
	p.String("name", "", "run only the fixture with this name")
}

func (c *FixtureRunCmd) Run(ctx context.Context, args *Args) (bool, error) {
	registry, err := c.registry()
	if err != nil {
		return false, err
	}

	only := args.String("name")
	ran := 0
	for _, entry := range registry.Fixtures() {
		if only != "" && entry.Spec.Name != only {
			continue
		}

		c.TTY.Write("Running fixture '%s' from module %s...", entry.Spec.Name, entry.Module)
		fixture, err := entry.Spec.New(c.Container)
		if err != nil {
			return false, JobError{Job: entry.Spec.Name, Module: entry.Module, Cause: err}
		}
		if fixture == nil {
			return false, JobError{Job: entry.Spec.Name, Module: entry.Module, Cause: ErrNilJob}
		}
		if err := fixture.Run(ctx, c.Container); err != nil {
			return false, JobError{Job: entry.Spec.Name, Module: entry.Module, Cause: err}
		}
		ran++
	}

	if only != "" && ran == 0 {
		c.TTY.Error("Error: fixture '%s' not found", only)
		return false, nil
	}
	c.TTY.Success("%d fixture(s) executed", ran)
	return true, nil
}

func programName(c *Container) string {
	if app, err := Get[*Application](c, KeyApp); err == nil && app.ProgramName() != "" {
		return app.ProgramName()
	}
	return "keel"
}
