package keel

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/junioryono/keel/internal/cache"
)

var (
	constructorType = reflect.TypeOf(ServiceConstructor(nil))
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
)

// ServiceLocator lazily constructs services from an aggregated ServiceMap and
// caches one instance per name for the locator's lifetime.
//
// Constructors are bound by name in a dig container and extracted on first
// use. Lookups are safe for concurrent use. Construction of a given name is
// serialized, so concurrent first lookups observe the same instance.
// Constructors may resolve other services, but a constructor that resolves
// its own name (directly or through a cycle) never completes.
type ServiceLocator struct {
	container *Container
	instances *cache.InstanceCache
	logger    *zap.Logger
	metrics   *Metrics

	// dig.Container is not safe for concurrent use.
	digMu        sync.Mutex
	digContainer *dig.Container
	bound        map[string]error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewServiceLocator creates a locator for services.
// The map is copied; later changes to it are not observed.
func NewServiceLocator(c *Container, services ServiceMap) *ServiceLocator {
	logger, err := Get[*zap.Logger](c, KeyLogger)
	if err != nil {
		logger = zap.NewNop()
	}
	metrics, _ := Get[*Metrics](c, KeyMetrics)

	l := &ServiceLocator{
		container:    c,
		instances:    cache.New(),
		logger:       logger,
		metrics:      metrics,
		digContainer: dig.New(),
		bound:        make(map[string]error, len(services)),
		locks:        make(map[string]*sync.Mutex),
	}

	for name, constructor := range services {
		// A binding that dig rejects is reported when the name is first used.
		l.bound[name] = l.digContainer.Provide(func() ServiceConstructor { return constructor }, dig.Name(name))
	}

	return l
}

// Get returns the instance for name, constructing it on first use.
func (l *ServiceLocator) Get(name string) (any, error) {
	if instance, ok := l.instances.Get(name); ok {
		return instance, nil
	}

	if _, ok := l.bound[name]; !ok {
		return nil, ServiceNotFoundError{Name: name, Available: l.Names()}
	}

	lock := l.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have finished construction while we waited.
	if instance, ok := l.instances.Peek(name); ok {
		return instance, nil
	}

	constructor, err := l.constructor(name)
	var instance any
	if err == nil {
		instance, err = l.construct(name, constructor)
	}
	l.metrics.recordService(name, err)
	if err != nil {
		l.logger.Error("service construction failed", zap.String("service", name), zap.Error(err))
		return nil, err
	}

	l.logger.Debug("service constructed", zap.String("service", name))
	return l.instances.Set(name, instance), nil
}

// constructor extracts the constructor bound to name from the dig container
// through a dynamically built dig.In parameter.
func (l *ServiceLocator) constructor(name string) (ServiceConstructor, error) {
	if err := l.bound[name]; err != nil {
		return nil, ServiceLoadError{Name: name, Cause: err}
	}

	paramType := reflect.StructOf([]reflect.StructField{
		{
			Name:      "In",
			Type:      reflect.TypeOf(dig.In{}),
			Anonymous: true,
		},
		{
			Name: "Constructor",
			Type: constructorType,
			Tag:  reflect.StructTag("name:" + strconv.Quote(name)),
		},
	})

	var constructor ServiceConstructor
	extractor := reflect.MakeFunc(
		reflect.FuncOf([]reflect.Type{paramType}, []reflect.Type{errorType}, false),
		func(args []reflect.Value) []reflect.Value {
			constructor, _ = args[0].FieldByName("Constructor").Interface().(ServiceConstructor)
			return []reflect.Value{reflect.Zero(errorType)}
		},
	)

	l.digMu.Lock()
	err := l.digContainer.Invoke(extractor.Interface())
	l.digMu.Unlock()

	if err != nil {
		return nil, ServiceLoadError{Name: name, Cause: err}
	}
	return constructor, nil
}

func (l *ServiceLocator) lockFor(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[name] = lock
	}
	return lock
}

func (l *ServiceLocator) construct(name string, constructor ServiceConstructor) (instance any, err error) {
	if constructor == nil {
		return nil, ServiceLoadError{Name: name, Cause: ErrNilConstructor}
	}

	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = ServiceLoadError{
				Name:  name,
				Cause: ConstructorPanicError{Name: name, Panic: r, Stack: debug.Stack()},
			}
		}
	}()

	instance, err = constructor(l.container)
	if err != nil {
		return nil, ServiceLoadError{Name: name, Cause: err}
	}
	if instance == nil {
		return nil, ServiceLoadError{Name: name, Cause: ErrNilInstance}
	}

	return instance, nil
}

// MustGet is like Get but panics on error.
func (l *ServiceLocator) MustGet(name string) any {
	instance, err := l.Get(name)
	if err != nil {
		panic(err)
	}
	return instance
}

// Has reports whether name is bound in the service map.
func (l *ServiceLocator) Has(name string) bool {
	_, ok := l.bound[name]
	return ok
}

// Names returns every bound service name in sorted order.
func (l *ServiceLocator) Names() []string {
	names := make([]string, 0, len(l.bound))
	for name := range l.bound {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns the instance cache statistics.
func (l *ServiceLocator) Stats() cache.Statistics {
	return l.instances.Stats()
}

// Close disposes every constructed instance implementing Disposable,
// most recently constructed first.
func (l *ServiceLocator) Close() error {
	lm := newLifecycleManager()
	for _, instance := range l.instances.Drain() {
		lm.track(instance)
	}
	return lm.dispose()
}

// Resolve returns the service registered under name asserted to T.
//
// Example:
//
//	users, err := keel.Resolve[*UserService](locator, "auth.users")
func Resolve[T any](l *ServiceLocator, name string) (T, error) {
	var zero T

	instance, err := l.Get(name)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, ServiceLoadError{
			Name: name,
			Cause: TypeMismatchError{
				Key:      name,
				Expected: reflect.TypeOf((*T)(nil)).Elem(),
				Actual:   reflect.TypeOf(instance),
			},
		}
	}

	return typed, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](l *ServiceLocator, name string) T {
	typed, err := Resolve[T](l, name)
	if err != nil {
		panic(fmt.Errorf("resolve %q: %w", name, err))
	}
	return typed
}
