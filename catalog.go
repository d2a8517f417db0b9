package keel

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog is the explicit registration table resolving module and factory
// references. It is populated at process startup; there is no global catalog.
//
// Example:
//
//	catalog := keel.NewCatalog()
//	catalog.MustRegisterModule("billing", billing.New)
//	catalog.MustRegisterFactory("pgsql", pgsql.Factory)
type Catalog struct {
	mu        sync.RWMutex
	modules   map[string]ModuleFactory
	factories map[string]Factory
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		modules:   make(map[string]ModuleFactory),
		factories: make(map[string]Factory),
	}
}

// RegisterModule binds ref to a module factory. A reference can be bound once.
func (c *Catalog) RegisterModule(ref string, factory ModuleFactory) error {
	if ref == "" {
		return fmt.Errorf("module reference: %w", ErrEmptyName)
	}
	if factory == nil {
		return fmt.Errorf("module %q: %w", ref, ErrNilConstructor)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.modules[ref]; exists {
		return fmt.Errorf("module %q: %w", ref, ErrDuplicateRef)
	}
	c.modules[ref] = factory
	return nil
}

// MustRegisterModule is like RegisterModule but panics on error.
func (c *Catalog) MustRegisterModule(ref string, factory ModuleFactory) {
	if err := c.RegisterModule(ref, factory); err != nil {
		panic(err)
	}
}

// RegisterFactory binds ref to a bootstrap factory. A reference can be bound once.
func (c *Catalog) RegisterFactory(ref string, factory Factory) error {
	if ref == "" {
		return fmt.Errorf("factory reference: %w", ErrEmptyName)
	}
	if factory == nil {
		return fmt.Errorf("factory %q: %w", ref, ErrNotCallable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[ref]; exists {
		return fmt.Errorf("factory %q: %w", ref, ErrDuplicateRef)
	}
	c.factories[ref] = factory
	return nil
}

// MustRegisterFactory is like RegisterFactory but panics on error.
func (c *Catalog) MustRegisterFactory(ref string, factory Factory) {
	if err := c.RegisterFactory(ref, factory); err != nil {
		panic(err)
	}
}

// Module returns the module factory bound to ref.
func (c *Catalog) Module(ref string) (ModuleFactory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	factory, ok := c.modules[ref]
	return factory, ok
}

// Factory returns the bootstrap factory bound to ref.
func (c *Catalog) Factory(ref string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	factory, ok := c.factories[ref]
	return factory, ok
}

// ModuleRefs returns every registered module reference in sorted order.
func (c *Catalog) ModuleRefs() []string {
	c.mu.RLock()
	refs := make([]string, 0, len(c.modules))
	for ref := range c.modules {
		refs = append(refs, ref)
	}
	c.mu.RUnlock()

	sort.Strings(refs)
	return refs
}

// FactoryRefs returns every registered factory reference in sorted order.
func (c *Catalog) FactoryRefs() []string {
	c.mu.RLock()
	refs := make([]string, 0, len(c.factories))
	for ref := range c.factories {
		refs = append(refs, ref)
	}
	c.mu.RUnlock()

	sort.Strings(refs)
	return refs
}
