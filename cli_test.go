package keel_test

import (
	"errors"
	"flag"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junioryono/keel"
	"github.com/junioryono/keel/internal/testutil"
)

func newCLIApp(t *testing.T, commands map[string]keel.CommandFactory) (*keel.Application, *testutil.AppBuilder) {
	t.Helper()

	mb := testutil.NewModuleBuilder("cli")
	for name, factory := range commands {
		mb.WithCommand(name, factory)
	}

	b := testutil.NewAppBuilder(t).WithModule("cli", mb.Factory())
	return b.Build([]string{"cli"}), b
}

func TestDispatcher_ExitCodes(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Result: true}
		app, _ := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, nil)})

		testutil.AssertDispatch(t, app, keel.ExitSuccess, "greet")
		assert.Equal(t, int32(1), cmd.Runs.Load())
	})

	t.Run("run reports failure", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Result: false}
		app, _ := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, nil)})

		testutil.AssertDispatch(t, app, keel.ExitFailure, "greet")
	})

	t.Run("unknown command", func(t *testing.T) {
		t.Parallel()

		var created atomic.Int32
		cmd := &testutil.TestCommand{Result: true}
		app, b := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, &created)})

		testutil.AssertDispatch(t, app, keel.ExitNotFound, "nope")
		assert.Contains(t, b.Err.String(), `command "nope" not found`)
		assert.Zero(t, created.Load())
		assert.Zero(t, cmd.Runs.Load())
	})
}

func TestDispatcher_Arguments(t *testing.T) {
	declare := func(p *keel.Parser) {
		p.Positional("name", "user name")
		p.Int("count", 1, "repetitions")
		p.Bool("loud", false, "shout")
		p.String("greeting", "hello", "greeting word")
		p.Duration("wait", time.Second, "pause")
	}

	t.Run("parsed values reach run", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Result: true, Declare: func(p *keel.Parser) {
			declare(p)
			p.Rest("files", "extra files")
		}}
		app, _ := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, nil)})

		testutil.AssertDispatch(t, app, keel.ExitSuccess, "greet", "--count", "3", "ada", "-loud", "extra", "--wait", "2s")

		args := cmd.Args()
		require.NotNil(t, args)
		assert.Equal(t, "ada", args.Positional("name"))
		assert.Equal(t, 3, args.Int("count"))
		assert.True(t, args.Bool("loud"))
		assert.Equal(t, "hello", args.String("greeting"))
		assert.Equal(t, 2*time.Second, args.Duration("wait"))
		assert.Equal(t, []string{"extra"}, args.Rest())
	})

	t.Run("invalid flag value", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Result: true, Declare: declare}
		app, b := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, nil)})

		testutil.AssertDispatch(t, app, keel.ExitFailure, "greet", "--count", "many", "ada")
		assert.Zero(t, cmd.Runs.Load())
		assert.Contains(t, b.Out.String(), "usage: keel-test greet <name> [OPTIONS...]")
	})

	t.Run("unknown flag", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Result: true, Declare: declare}
		app, _ := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, nil)})

		testutil.AssertDispatch(t, app, keel.ExitFailure, "greet", "--nope", "ada")
		assert.Zero(t, cmd.Runs.Load())
	})

	t.Run("invalid arguments after a positional", func(t *testing.T) {
		tests := []struct {
			name string
			argv []string
			want error
		}{
			{name: "invalid flag value", argv: []string{"ada", "--count=bad"}},
			{name: "unknown flag", argv: []string{"ada", "--bogus"}},
			{name: "extra positional", argv: []string{"ada", "extra"}, want: keel.ErrUnexpectedArgument},
			{name: "extra after terminator", argv: []string{"--", "ada", "--count=2"}, want: keel.ErrUnexpectedArgument},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				cmd := &testutil.TestCommand{Result: true, Declare: declare}
				app, b := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, nil)})

				testutil.AssertDispatch(t, app, keel.ExitFailure, append([]string{"greet"}, tt.argv...)...)
				assert.Zero(t, cmd.Runs.Load())
				assert.Contains(t, b.Out.String(), "usage: keel-test greet <name> [OPTIONS...]")
				if tt.want != nil {
					assert.Contains(t, b.Err.String(), tt.want.Error())
				}
			})
		}
	})

	t.Run("terminator ends flag parsing", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Result: true, Declare: func(p *keel.Parser) {
			declare(p)
			p.Rest("files", "extra files")
		}}
		app, _ := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, nil)})

		testutil.AssertDispatch(t, app, keel.ExitSuccess, "greet", "--count=2", "--", "-ada", "--loud")

		args := cmd.Args()
		require.NotNil(t, args)
		assert.Equal(t, "-ada", args.Positional("name"))
		assert.Equal(t, 2, args.Int("count"))
		assert.False(t, args.Bool("loud"))
		assert.Equal(t, []string{"--loud"}, args.Rest())
	})

	t.Run("missing positional", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Result: true, Declare: declare}
		app, b := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, nil)})

		testutil.AssertDispatch(t, app, keel.ExitFailure, "greet")
		assert.Zero(t, cmd.Runs.Load())
		assert.Contains(t, b.Err.String(), "missing required argument")
	})

	t.Run("help flag prints usage", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Result: true, Declare: declare, Desc: "greet a user"}
		app, b := newCLIApp(t, map[string]keel.CommandFactory{"greet": testutil.CommandFactory(cmd, nil)})

		testutil.AssertDispatch(t, app, keel.ExitSuccess, "greet", "-h")
		assert.Zero(t, cmd.Runs.Load())

		out := b.Out.String()
		assert.Contains(t, out, "greet: greet a user")
		assert.Contains(t, out, "arguments:")
		assert.Contains(t, out, "--count")
		assert.Contains(t, out, "(default hello)")
	})

	t.Run("skip args passes nil", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Result: true, Skip: true, Declare: declare}
		app, _ := newCLIApp(t, map[string]keel.CommandFactory{"raw": testutil.CommandFactory(cmd, nil)})

		testutil.AssertDispatch(t, app, keel.ExitSuccess, "raw", "--anything", "goes")
		assert.True(t, cmd.ReceivedNilArgs())
	})
}

func TestDispatcher_Errors(t *testing.T) {
	t.Run("run error propagates", func(t *testing.T) {
		t.Parallel()

		cmd := &testutil.TestCommand{Err: testutil.ErrIntentional}
		app, _ := newCLIApp(t, map[string]keel.CommandFactory{"boom": testutil.CommandFactory(cmd, nil)})

		code, err := app.Run(t.Context(), []string{"boom"})
		assert.Equal(t, keel.ExitFailure, code)
		assert.ErrorIs(t, err, testutil.ErrIntentional)
	})

	t.Run("factory returning nil", func(t *testing.T) {
		t.Parallel()

		app, _ := newCLIApp(t, map[string]keel.CommandFactory{
			"nil": func(*keel.Container) keel.Command { return nil },
		})

		code, err := app.Run(t.Context(), []string{"nil"})
		assert.Equal(t, keel.ExitFailure, code)

		var loadErr keel.CommandLoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, "nil", loadErr.Command)
		assert.Equal(t, "cli", loadErr.Module)
		assert.ErrorIs(t, err, keel.ErrNilCommand)
	})

	t.Run("nil factory", func(t *testing.T) {
		t.Parallel()

		app, _ := newCLIApp(t, map[string]keel.CommandFactory{"nil": nil})

		_, err := app.Run(t.Context(), []string{"nil"})
		assert.ErrorIs(t, err, keel.ErrNilConstructor)
	})
}

func TestDispatcher_DefaultCommand(t *testing.T) {
	t.Parallel()

	app, b := newCLIApp(t, map[string]keel.CommandFactory{
		"greet": testutil.CommandFactory(&testutil.TestCommand{Desc: "greet a user"}, nil),
	})

	testutil.AssertDispatch(t, app, keel.ExitSuccess)
	assert.Contains(t, b.Out.String(), "available commands:")
	assert.Contains(t, b.Out.String(), "greet a user")
}

func TestDispatcher_FirstModuleWins(t *testing.T) {
	t.Parallel()

	first := &testutil.TestCommand{Result: true}
	second := &testutil.TestCommand{Result: true}

	app := testutil.NewAppBuilder(t).
		WithModule("a", testutil.NewModuleBuilder("a").WithCommand("dup", testutil.CommandFactory(first, nil)).Factory()).
		WithModule("b", testutil.NewModuleBuilder("b").WithCommand("dup", testutil.CommandFactory(second, nil)).Factory()).
		Build([]string{"a", "b"})

	testutil.AssertDispatch(t, app, keel.ExitSuccess, "dup")
	assert.Equal(t, int32(1), first.Runs.Load())
	assert.Zero(t, second.Runs.Load())
}

func TestParser(t *testing.T) {
	t.Run("help is returned unwrapped", func(t *testing.T) {
		p := keel.NewParser("cmd")
		_, err := p.Parse([]string{"-help"})
		assert.True(t, errors.Is(err, flag.ErrHelp))
	})

	t.Run("argument errors name the command", func(t *testing.T) {
		p := keel.NewParser("cmd")
		p.Positional("target", "target")

		_, err := p.Parse(nil)

		var argErr keel.ArgumentError
		require.ErrorAs(t, err, &argErr)
		assert.Equal(t, "cmd", argErr.Command)
		assert.ErrorIs(t, err, keel.ErrMissingArgument)
		assert.Equal(t, "cmd: target: missing required argument", err.Error())
	})

	t.Run("synopsis and usage", func(t *testing.T) {
		p := keel.NewParser("user:add")
		p.Positional("email", "user email")
		p.Bool("admin", false, "grant admin rights")

		assert.Equal(t, "app user:add <email> [OPTIONS...]", p.Synopsis("app"))

		p.Rest("roles", "extra roles")
		assert.Equal(t, "app user:add <email> [roles...] [OPTIONS...]", p.Synopsis("app"))

		usage := p.Usage()
		assert.Contains(t, usage, "arguments:\n  email")
		assert.Contains(t, usage, "options:\n  --admin")
		assert.Contains(t, usage, "roles...")
		assert.NotContains(t, usage, "(default false)")
	})

	t.Run("nil args are safe", func(t *testing.T) {
		var args *keel.Args
		assert.Empty(t, args.String("x"))
		assert.False(t, args.Bool("x"))
		assert.Zero(t, args.Int("x"))
		assert.Zero(t, args.Duration("x"))
		assert.Empty(t, args.Positional("x"))
		assert.Nil(t, args.Rest())
	})
}
