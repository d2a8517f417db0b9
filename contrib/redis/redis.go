// Package redis provides a Redis client factory and the "redis" module.
package redis

import (
	"crypto/tls"
	"net"
	"strconv"

	goredis "github.com/go-redis/redis/v8"

	"github.com/junioryono/keel"
)

// Container key holding the Redis client.
const KeyRedis = "redis"

// Catalog references.
const (
	FactoryRef = "keel.redis.factory"
	ModuleRef  = "keel.redis"
)

// Configuration keys.
const (
	CfgRedisHost     = "redis_host"
	CfgRedisPort     = "redis_port"
	CfgRedisPassword = "redis_password"
	CfgRedisDB       = "redis_db"
	CfgRedisSSL      = "redis_ssl"
)

// Options builds client options from cfg.
func Options(cfg *keel.Config) *goredis.Options {
	opts := &goredis.Options{
		Addr:     net.JoinHostPort(cfg.String(CfgRedisHost, "localhost"), strconv.Itoa(cfg.Int(CfgRedisPort, 6379))),
		Password: cfg.String(CfgRedisPassword, ""),
		DB:       cfg.Int(CfgRedisDB, 0),
	}
	if cfg.Bool(CfgRedisSSL, false) {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Factory creates a client from the container config and stores it under
// KeyRedis. Connections are established lazily.
func Factory(c *keel.Container) error {
	cfg, err := keel.Get[*keel.Config](c, keel.KeyConfig)
	if err != nil {
		return err
	}

	c.Add(KeyRedis, goredis.NewClient(Options(cfg)))
	return nil
}
