package keel

import (
	"fmt"

	"go.uber.org/zap"
)

// Factory populates container entries needed by modules, such as a
// database connection. Factories run before modules are loaded.
type Factory func(c *Container) error

type resolvedFactory struct {
	ref string
	fn  Factory
}

// RunFactories resolves every entry of factories, then invokes them in order
// with the container. Accepted entries are a Factory, a func(*Container) error,
// a func(*Container), or a string reference registered in catalog.
//
// Resolution happens before any factory runs, so a bad entry anywhere in the
// list leaves the container untouched.
func RunFactories(c *Container, catalog *Catalog, factories []any) error {
	logger, err := Get[*zap.Logger](c, KeyLogger)
	if err != nil {
		logger = zap.NewNop()
	}

	resolved := make([]resolvedFactory, 0, len(factories))
	for i, f := range factories {
		r, err := resolveFactory(catalog, f)
		if err != nil {
			return FactoryError{Index: i, Ref: r.ref, Cause: err}
		}
		resolved = append(resolved, r)
	}

	for i, r := range resolved {
		if err := r.fn(c); err != nil {
			return FactoryError{Index: i, Ref: r.ref, Cause: err}
		}
		logger.Debug("factory completed", zap.Int("index", i), zap.String("ref", r.ref))
	}

	return nil
}

func resolveFactory(catalog *Catalog, f any) (resolvedFactory, error) {
	switch fn := f.(type) {
	case string:
		r := resolvedFactory{ref: fn}
		if catalog == nil {
			return r, ErrFactoryNotFound
		}
		factory, ok := catalog.Factory(fn)
		if !ok {
			return r, ErrFactoryNotFound
		}
		r.fn = factory
		return r, nil
	case Factory:
		if fn == nil {
			return resolvedFactory{}, ErrNotCallable
		}
		return resolvedFactory{fn: fn}, nil
	case func(*Container) error:
		if fn == nil {
			return resolvedFactory{}, ErrNotCallable
		}
		return resolvedFactory{fn: fn}, nil
	case func(*Container):
		if fn == nil {
			return resolvedFactory{}, ErrNotCallable
		}
		return resolvedFactory{
			fn: func(c *Container) error {
				fn(c)
				return nil
			},
		}, nil
	default:
		return resolvedFactory{}, fmt.Errorf("%T: %w", f, ErrNotCallable)
	}
}
