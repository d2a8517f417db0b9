// Package keel composes applications from declarative modules.
//
// # Overview
//
// An application is assembled from modules. Each module declares services,
// CLI commands, event handlers, jobs and fixtures, plus a build hook that runs
// once everything is wired. keel provides:
//   - A keyed Container for process-wide singletons
//   - A Registry that loads and validates modules by catalog reference
//   - A lazy ServiceLocator caching one instance per service name
//   - An EventManager dispatching events in ascending priority order
//   - A CLI Dispatcher mapping outcomes to exit codes 0, 1 and 2
//   - A sequential JobRunner for long-lived background jobs
//
// # Basic Usage
//
// Register modules and factories in a Catalog, create the application, build
// it and dispatch a command:
//
//	catalog := keel.NewCatalog()
//	catalog.MustRegisterFactory(pgsql.FactoryRef, pgsql.Factory)
//	catalog.MustRegisterModule("billing", billing.New)
//
//	app, err := keel.New(cfg, keel.WithCatalog(catalog))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//
//	if err := app.Build([]string{"billing"}, pgsql.FactoryRef); err != nil {
//	    log.Fatal(err)
//	}
//
//	code, err := app.Run(ctx, os.Args[1:])
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.Exit(code)
//
// # Build Order
//
// Build runs the following steps once, failing fast on the first error:
//
//  1. Factories populate the container (database handles, clients).
//  2. The base module and then the requested modules are loaded in order.
//  3. Service maps are merged; a later module overrides an earlier binding.
//  4. Event handlers are registered with the event manager.
//  5. Every module's Build hook runs, exactly once.
//
// # Modules
//
// Modules implement the Module interface, usually by embedding BaseModule:
//
//	func New(c *keel.Container) (keel.Module, error) {
//	    return &keel.BaseModule{
//	        ModuleName: "billing",
//	        ServiceMap: keel.ServiceMap{
//	            "billing.invoices": func(c *keel.Container) (any, error) {
//	                return NewInvoiceService(keel.MustGet[*sqlx.DB](c, pgsql.KeyDB)), nil
//	            },
//	        },
//	        CommandMap: keel.CommandMap{
//	            "invoice:send": func(c *keel.Container) keel.Command {
//	                return &SendCmd{CommandBase: keel.NewCommandBase(c)}
//	            },
//	        },
//	        EventMap: keel.EventMap{
//	            "invoice.created": {10: {keel.HandlerOf(auditInvoice)}},
//	        },
//	        OnBuild: func(app *keel.Application) error {
//	            app.Router().Get("/invoices", listInvoices)
//	            return nil
//	        },
//	    }, nil
//	}
//
// # Services
//
// Services are constructed on first lookup and cached for the lifetime of the
// locator:
//
//	locator := app.Services()
//	invoices, err := keel.Resolve[*InvoiceService](locator, "billing.invoices")
//
// Services implementing Disposable are closed by Application.Close, most
// recently constructed first.
//
// # Events
//
// Handlers run in ascending priority order; handlers sharing a priority run in
// registration order. Each handler receives the payload returned by the
// previous one:
//
//	out, err := app.Events().Dispatch(ctx, "invoice.created", invoice)
//
// # Commands
//
// Commands are dispatched by name. The first loaded module declaring a name
// wins. Dispatch returns ExitSuccess, ExitFailure when arguments are invalid or
// Run reports false, and ExitNotFound for unknown commands.
//
// # HTTP
//
// The runserver command serves Application.Router. InitMiddleware guarantees
// module build hooks have run before any handler; ContainerMiddleware and
// FromContext expose the container to handlers.
package keel
