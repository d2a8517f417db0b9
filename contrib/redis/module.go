package redis

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/junioryono/keel"
)

const checkTimeout = 5 * time.Second

// New creates the redis module.
func New(c *keel.Container) (keel.Module, error) {
	return &keel.BaseModule{
		ModuleName:        "redis",
		ModuleDescription: "Redis support",
		CommandMap: keel.CommandMap{
			"redis:check": func(c *keel.Container) keel.Command {
				return &CheckCmd{CommandBase: keel.NewCommandBase(c)}
			},
		},
	}, nil
}

// CheckCmd verifies the Redis connection.
type CheckCmd struct {
	keel.CommandBase
}

func (c *CheckCmd) Description() string {
	return "check redis connection"
}

func (c *CheckCmd) Run(ctx context.Context, _ *keel.Args) (bool, error) {
	client, err := keel.Get[*goredis.Client](c.Container, KeyRedis)
	if err != nil {
		c.TTY.Error("Error: no redis client configured: %v", err)
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.TTY.Error("Error: redis check failed: %v", err)
		return false, nil
	}

	c.TTY.Success("redis connection OK")
	return true, nil
}
