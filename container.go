package keel

import (
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Well-known container keys populated by the Application.
const (
	KeyConfig    = "config"
	KeyApp       = "app"
	KeyContainer = "di"
	KeyModules   = "modules"
	KeyServices  = "svc_manager"
	KeyEvents    = "event_manager"
	KeySignals   = "signal_manager"
	KeyConsole   = "tty"
	KeyLogger    = "logger"
	KeyMetrics   = "metrics"
	KeyRouter    = "router"
)

// Container is a process-scoped keyed store for singleton-like objects.
//
// Keys are unique: Add overwrites, Get on a missing key fails with
// KeyNotFoundError, and no key is ever removed. The container enforces no
// type constraints; callers read values back with the generic Get helper.
//
// Example:
//
//	c := keel.NewContainer()
//	c.Add(keel.KeyConfig, cfg)
//
//	cfg, err := keel.Get[*keel.Config](c, keel.KeyConfig)
type Container struct {
	id string

	mu      sync.RWMutex
	entries map[string]any
	order   []string
}

// NewContainer creates an empty container that holds itself under KeyContainer.
func NewContainer() *Container {
	c := &Container{
		id:      uuid.NewString(),
		entries: make(map[string]any),
	}
	c.entries[KeyContainer] = c
	c.order = []string{KeyContainer}
	return c
}

// ID returns the unique identifier generated for this container.
func (c *Container) ID() string {
	return c.id
}

// Add stores value under key, replacing any previous value.
func (c *Container) Add(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = value
}

// Get returns the value stored under key.
func (c *Container) Get(key string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.entries[key]
	if !ok {
		return nil, KeyNotFoundError{Key: key}
	}
	return value, nil
}

// MustGet is like Get but panics when key is absent.
func (c *Container) MustGet(key string) any {
	value, err := c.Get(key)
	if err != nil {
		panic(err)
	}
	return value
}

// Has reports whether key was added.
func (c *Container) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Keys returns the stored keys in sorted order.
func (c *Container) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

type entry struct {
	key   string
	value any
}

// entriesInOrder returns a snapshot of the stored values in the order their
// keys were first added.
func (c *Container) entriesInOrder() []entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]entry, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, entry{key: key, value: c.entries[key]})
	}
	return out
}

// Get returns the value stored under key asserted to T.
//
// Example:
//
//	logger, err := keel.Get[*zap.Logger](c, keel.KeyLogger)
func Get[T any](c *Container, key string) (T, error) {
	var zero T

	value, err := c.Get(key)
	if err != nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, TypeMismatchError{
			Key:      key,
			Expected: reflect.TypeOf((*T)(nil)).Elem(),
			Actual:   reflect.TypeOf(value),
		}
	}

	return typed, nil
}

// MustGet is like Get but panics on a missing key or a type mismatch.
func MustGet[T any](c *Container, key string) T {
	value, err := Get[T](c, key)
	if err != nil {
		panic(err)
	}
	return value
}
