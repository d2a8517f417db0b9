package keel

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration keys read by the core.
const (
	CfgLogLevel        = "log_level"
	CfgLogFormat       = "log_format"
	CfgServerAddress   = "server_address"
	CfgJobIdleInterval = "job_idle_interval"
	CfgJobTimeout      = "job_timeout"
	CfgMetricsEnabled  = "metrics_enabled"
	CfgModules         = "modules"
	CfgFactories       = "factories"
)

const (
	defaultServerAddress   = ":5000"
	defaultJobIdleInterval = 15 * time.Second
)

// Config is a flat key/value configuration store.
// Nested maps loaded from YAML are flattened with "." separators.
type Config struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewConfig creates a Config from values; nested maps are flattened.
func NewConfig(values map[string]any) *Config {
	cfg := &Config{values: make(map[string]any)}
	flatten("", values, cfg.values)
	return cfg
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig parses YAML configuration data.
func ParseConfig(data []byte) (*Config, error) {
	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return NewConfig(values), nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			flatten(full, nested, out)
			continue
		}
		out[full] = value
	}
}

// Get returns the raw value stored under key.
func (c *Config) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.values[key]
	return value, ok
}

// Set stores value under key.
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Keys returns all configuration keys in sorted order.
func (c *Config) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.values))
	for key := range c.values {
		keys = append(keys, key)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// String returns the value under key as a string, or def when absent.
func (c *Config) String(key, def string) string {
	value, ok := c.Get(key)
	if !ok || value == nil {
		return def
	}
	return fmt.Sprint(value)
}

// Int returns the value under key as an int, or def when absent or invalid.
func (c *Config) Int(key string, def int) int {
	value, ok := c.Get(key)
	if !ok {
		return def
	}

	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the value under key as a bool, or def when absent or invalid.
// Strings such as "1", "true" and "yes" are accepted.
func (c *Config) Bool(key string, def bool) bool {
	value, ok := c.Get(key)
	if !ok {
		return def
	}

	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off", "":
			return false
		}
	}
	return def
}

// Duration returns the value under key as a time.Duration, or def when absent
// or invalid. Integers are read as seconds.
func (c *Config) Duration(key string, def time.Duration) time.Duration {
	value, ok := c.Get(key)
	if !ok {
		return def
	}

	switch v := value.(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

// Strings returns the value under key as a string slice.
// A single string value is split on commas.
func (c *Config) Strings(key string) []string {
	value, ok := c.Get(key)
	if !ok || value == nil {
		return nil
	}

	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}
