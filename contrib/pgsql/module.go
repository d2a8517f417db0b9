package pgsql

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/junioryono/keel"
)

// New creates the pgsql module.
func New(c *keel.Container) (keel.Module, error) {
	return &keel.BaseModule{
		ModuleName:        "pgsql",
		ModuleDescription: "PostgreSQL database support",
		CommandMap: keel.CommandMap{
			"db:check": func(c *keel.Container) keel.Command {
				return &CheckCmd{CommandBase: keel.NewCommandBase(c)}
			},
		},
	}, nil
}

// CheckCmd verifies the database connection.
type CheckCmd struct {
	keel.CommandBase
}

func (c *CheckCmd) Description() string {
	return "check database connection"
}

func (c *CheckCmd) Run(ctx context.Context, _ *keel.Args) (bool, error) {
	db, err := keel.Get[*sqlx.DB](c.Container, KeyDB)
	if err != nil {
		c.TTY.Error("Error: no database configured: %v", err)
		return false, nil
	}

	var one int
	if err := db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		c.TTY.Error("Error: database check failed: %v", err)
		return false, nil
	}

	c.TTY.Success("database connection OK")
	return true, nil
}
