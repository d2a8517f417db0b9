package keel

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// CommandEntry is a command declared by a loaded module.
type CommandEntry struct {
	Name    string
	Module  string
	Factory CommandFactory
}

// JobEntry is a job declared by a loaded module.
type JobEntry struct {
	Module string
	Spec   JobSpec
}

// FixtureEntry is a fixture declared by a loaded module.
type FixtureEntry struct {
	Module string
	Spec   FixtureSpec
}

// Registry loads module references into descriptors and aggregates their
// declarations. Modules are kept in load order, keyed by reference.
//
// Registry is NOT thread-safe. It is populated once during the build phase
// and read-only afterwards.
type Registry struct {
	container *Container
	catalog   *Catalog
	system    []string
	logger    *zap.Logger

	order   []string
	modules map[string]Module
	names   map[string]string // module name -> ref
}

// NewRegistry creates a Registry resolving references through catalog.
// The system references are always loaded before caller-supplied ones.
func NewRegistry(c *Container, catalog *Catalog, system ...string) *Registry {
	logger, err := Get[*zap.Logger](c, KeyLogger)
	if err != nil {
		logger = zap.NewNop()
	}

	return &Registry{
		container: c,
		catalog:   catalog,
		system:    append([]string(nil), system...),
		logger:    logger,
		modules:   make(map[string]Module),
		names:     make(map[string]string),
	}
}

// Load resolves, validates and instantiates every reference in order, with
// system references prepended. Any failure aborts the load.
func (r *Registry) Load(refs []string) error {
	all := make([]string, 0, len(r.system)+len(refs))
	all = append(all, r.system...)
	all = append(all, refs...)

	for _, ref := range all {
		if err := r.load(ref); err != nil {
			return err
		}
	}

	r.logger.Debug("modules loaded", zap.Strings("modules", r.order))
	return nil
}

func (r *Registry) load(ref string) error {
	factory, ok := r.catalog.Module(ref)
	if !ok {
		return ModuleLoadError{Ref: ref, Cause: ErrModuleNotFound}
	}

	module, err := factory(r.container)
	if err != nil {
		return ModuleLoadError{Ref: ref, Cause: err}
	}
	if module == nil {
		return ModuleShapeError{Ref: ref, Cause: ErrNilModule}
	}
	if err := validateModule(module); err != nil {
		return ModuleShapeError{Ref: ref, Field: err.field, Cause: err.cause}
	}

	name := module.Name()
	if existing, dup := r.names[name]; dup {
		return DuplicateModuleError{Name: name, Ref: ref, Existing: existing}
	}
	if _, dup := r.modules[ref]; dup {
		return DuplicateModuleError{Name: name, Ref: ref, Existing: ref}
	}

	r.names[name] = ref
	r.modules[ref] = module
	r.order = append(r.order, ref)

	r.logger.Debug("module registered", zap.String("ref", ref), zap.String("module", name))
	return nil
}

type shapeViolation struct {
	field string
	cause error
}

// validateModule checks the parts of the contract the type system cannot.
func validateModule(m Module) *shapeViolation {
	if m.Name() == "" {
		return &shapeViolation{field: "name", cause: ErrEmptyName}
	}

	for event, priorities := range m.Events() {
		if event == "" {
			return &shapeViolation{field: "events", cause: ErrEmptyName}
		}
		for priority, handlers := range priorities {
			for _, h := range handlers {
				if h == nil {
					return &shapeViolation{
						field: "events",
						cause: fmt.Errorf("%s[%d]: %w", event, priority, ErrNilHandler),
					}
				}
			}
		}
	}

	for _, job := range m.Jobs() {
		if job.Name == "" {
			return &shapeViolation{field: "jobs", cause: ErrEmptyName}
		}
		if job.New == nil {
			return &shapeViolation{field: "jobs", cause: fmt.Errorf("%s: %w", job.Name, ErrNilJob)}
		}
	}

	for _, fixture := range m.Fixtures() {
		if fixture.Name == "" || fixture.New == nil {
			return &shapeViolation{field: "fixtures", cause: fmt.Errorf("%q: %w", fixture.Name, ErrNilConstructor)}
		}
	}

	return nil
}

// Len returns the number of loaded modules.
func (r *Registry) Len() int {
	return len(r.order)
}

// Refs returns the loaded references in load order.
func (r *Registry) Refs() []string {
	return append([]string(nil), r.order...)
}

// Modules returns the loaded modules in load order.
func (r *Registry) Modules() []Module {
	modules := make([]Module, 0, len(r.order))
	for _, ref := range r.order {
		modules = append(modules, r.modules[ref])
	}
	return modules
}

// Get returns the module loaded from ref.
func (r *Registry) Get(ref string) (Module, bool) {
	m, ok := r.modules[ref]
	return m, ok
}

// ByName returns the loaded module declaring name.
func (r *Registry) ByName(name string) (Module, bool) {
	ref, ok := r.names[name]
	if !ok {
		return nil, false
	}
	return r.modules[ref], true
}

// ServiceMap aggregates every module's services in load order. Later modules
// override earlier bindings with the same name.
func (r *Registry) ServiceMap() (ServiceMap, error) {
	aggregated := make(ServiceMap)

	for _, ref := range r.order {
		module := r.modules[ref]

		// Sorted for deterministic error reporting.
		services := module.Services()
		names := make([]string, 0, len(services))
		for name := range services {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			constructor := services[name]
			if name == "" {
				return nil, ServiceMapShapeError{Module: module.Name(), Service: name, Cause: ErrEmptyName}
			}
			if constructor == nil {
				return nil, ServiceMapShapeError{Module: module.Name(), Service: name, Cause: ErrNilConstructor}
			}

			if _, overridden := aggregated[name]; overridden {
				r.logger.Debug("service binding overridden",
					zap.String("service", name),
					zap.String("module", module.Name()),
				)
			}
			aggregated[name] = constructor
		}
	}

	return aggregated, nil
}

// RegisterEvents adds every module's event declarations to em in load order.
func (r *Registry) RegisterEvents(em *EventManager) error {
	for _, ref := range r.order {
		module := r.modules[ref]
		if err := em.AddHandlers(module.Events()); err != nil {
			return ModuleShapeError{Ref: ref, Field: "events", Cause: err}
		}
	}
	return nil
}

// FindCommand scans modules in load order; the first module declaring name wins.
func (r *Registry) FindCommand(name string) (CommandEntry, bool) {
	for _, ref := range r.order {
		module := r.modules[ref]
		if factory, ok := module.Commands()[name]; ok {
			return CommandEntry{Name: name, Module: module.Name(), Factory: factory}, true
		}
	}
	return CommandEntry{}, false
}

// Commands returns the dispatchable commands sorted by name. When several
// modules declare a command, the entry FindCommand would dispatch is kept.
func (r *Registry) Commands() []CommandEntry {
	seen := make(map[string]struct{})
	var entries []CommandEntry

	for _, ref := range r.order {
		module := r.modules[ref]
		for name, factory := range module.Commands() {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			entries = append(entries, CommandEntry{Name: name, Module: module.Name(), Factory: factory})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Jobs returns every declared job in load order.
func (r *Registry) Jobs() []JobEntry {
	var entries []JobEntry
	for _, ref := range r.order {
		module := r.modules[ref]
		for _, spec := range module.Jobs() {
			entries = append(entries, JobEntry{Module: module.Name(), Spec: spec})
		}
	}
	return entries
}

// Fixtures returns every declared fixture in load order.
func (r *Registry) Fixtures() []FixtureEntry {
	var entries []FixtureEntry
	for _, ref := range r.order {
		module := r.modules[ref]
		for _, spec := range module.Fixtures() {
			entries = append(entries, FixtureEntry{Module: module.Name(), Spec: spec})
		}
	}
	return entries
}
