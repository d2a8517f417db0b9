// Command keel builds an application from a YAML configuration file and
// dispatches a CLI command against it.
//
// The configuration path is read from KEEL_CONFIG and defaults to keel.yaml
// in the working directory. The file lists the module and factory references
// to load:
//
//	modules: [keel.pgsql, keel.redis]
//	factories: [keel.pgsql.factory, keel.redis.factory]
//	db_host: localhost
//	log_level: info
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/junioryono/keel"
	"github.com/junioryono/keel/contrib/pgsql"
	"github.com/junioryono/keel/contrib/redis"
)

const (
	configEnv     = "KEEL_CONFIG"
	defaultConfig = "keel.yaml"
)

func main() {
	code, err := run(context.Background(), keel.NewTerminalConsole(), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(keel.ExitFailure)
	}
	os.Exit(code)
}

// run builds the application and dispatches args. A non-nil error means the
// application could not be built or the command failed unexpectedly.
func run(ctx context.Context, console *keel.Console, args []string) (int, error) {
	cfg, err := loadConfig()
	if err != nil {
		return keel.ExitFailure, err
	}

	app, err := keel.New(cfg,
		keel.WithCatalog(newCatalog()),
		keel.WithConsole(console),
		keel.WithProgramName("keel"),
	)
	if err != nil {
		return keel.ExitFailure, err
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger().Warn("shutdown failed", zap.Error(err))
		}
	}()

	if err := app.Build(nil); err != nil {
		app.Logger().Error("build failed", zap.Error(err))
		return keel.ExitFailure, err
	}

	return app.Run(ctx, args)
}

func newCatalog() *keel.Catalog {
	catalog := keel.NewCatalog()
	catalog.MustRegisterModule(pgsql.ModuleRef, pgsql.New)
	catalog.MustRegisterFactory(pgsql.FactoryRef, pgsql.Factory)
	catalog.MustRegisterModule(redis.ModuleRef, redis.New)
	catalog.MustRegisterFactory(redis.FactoryRef, redis.Factory)
	return catalog
}

// loadConfig reads the file named by KEEL_CONFIG. Without the variable a
// missing keel.yaml yields an empty configuration.
func loadConfig() (*keel.Config, error) {
	path, explicit := os.LookupEnv(configEnv)
	if !explicit || path == "" {
		path = defaultConfig
	}

	cfg, err := keel.LoadConfig(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return keel.NewConfig(nil), nil
		}
		return nil, err
	}
	return cfg, nil
}
