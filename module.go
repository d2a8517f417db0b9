package keel

// ServiceConstructor builds a service instance from the container.
// It is invoked at most once per locator for a given service name.
type ServiceConstructor func(c *Container) (any, error)

// ServiceMap binds service names to constructors.
type ServiceMap map[string]ServiceConstructor

// CommandFactory instantiates a CLI command handler.
type CommandFactory func(c *Container) Command

// CommandMap binds command names to handler factories.
type CommandMap map[string]CommandFactory

// EventHandlerFactory instantiates a short-lived event handler for one dispatch.
type EventHandlerFactory func(c *Container) EventHandler

// EventMap declares event handlers as event name -> priority -> ordered handlers.
type EventMap map[string]map[int][]EventHandlerFactory

// JobFactory instantiates a long-lived job.
type JobFactory func(c *Container) (Job, error)

// JobSpec names a job declared by a module.
type JobSpec struct {
	Name string
	New  JobFactory
}

// FixtureFactory instantiates a one-time setup task.
type FixtureFactory func(c *Container) (Fixture, error)

// FixtureSpec names a fixture declared by a module.
type FixtureSpec struct {
	Name string
	New  FixtureFactory
}

// Module is a declarative unit bundling services, commands, events, jobs and
// fixtures, plus a build hook that runs once after global wiring completes.
//
// Module names must be unique across an application. Service and command
// names should be unique too, unless the goal is to explicitly override an
// entry declared by an earlier module.
type Module interface {
	// Name returns the unique module identifier.
	Name() string

	// Description returns a human readable summary.
	Description() string

	// Services returns the service map; services are constructed lazily.
	Services() ServiceMap

	// Commands returns the CLI command map.
	Commands() CommandMap

	// Events returns the event handler declarations.
	Events() EventMap

	// Jobs returns the long-lived jobs run by job:run.
	Jobs() []JobSpec

	// Fixtures returns the one-time tasks run by fixture:run.
	Fixtures() []FixtureSpec

	// Build is called once all modules are loaded and the service map and
	// event manager are populated. Route registration belongs here.
	Build(parent *Application) error
}

// ModuleFactory instantiates a module with the container.
type ModuleFactory func(c *Container) (Module, error)

// BaseModule implements Module from plain fields.
// Embed it and override Build for modules that need a build hook.
//
// Example:
//
//	type Module struct {
//	    keel.BaseModule
//	}
//
//	func New(c *keel.Container) (keel.Module, error) {
//	    return &Module{BaseModule: keel.BaseModule{
//	        ModuleName:        "billing",
//	        ModuleDescription: "billing module",
//	        ServiceMap: keel.ServiceMap{
//	            "billing.invoices": NewInvoiceService,
//	        },
//	    }}, nil
//	}
type BaseModule struct {
	ModuleName        string
	ModuleDescription string
	ServiceMap        ServiceMap
	CommandMap        CommandMap
	EventMap          EventMap
	JobList           []JobSpec
	FixtureList       []FixtureSpec

	// OnBuild is invoked by Build when set.
	OnBuild func(parent *Application) error
}

var _ Module = (*BaseModule)(nil)

func (m *BaseModule) Name() string {
	return m.ModuleName
}

func (m *BaseModule) Description() string {
	return m.ModuleDescription
}

func (m *BaseModule) Services() ServiceMap {
	return m.ServiceMap
}

func (m *BaseModule) Commands() CommandMap {
	return m.CommandMap
}

func (m *BaseModule) Events() EventMap {
	return m.EventMap
}

func (m *BaseModule) Jobs() []JobSpec {
	return m.JobList
}

func (m *BaseModule) Fixtures() []FixtureSpec {
	return m.FixtureList
}

func (m *BaseModule) Build(parent *Application) error {
	if m.OnBuild == nil {
		return nil
	}
	return m.OnBuild(parent)
}

// StaticModule returns a ModuleFactory that always yields m.
func StaticModule(m Module) ModuleFactory {
	return func(*Container) (Module, error) {
		return m, nil
	}
}
