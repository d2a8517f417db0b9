package keel

import (
	"errors"
	"fmt"
	"sync"
)

// lifecycleManager closes Disposable values in the reverse of the order they
// were tracked.
type lifecycleManager struct {
	mu    sync.Mutex
	stack []Disposable
}

func newLifecycleManager() *lifecycleManager {
	return &lifecycleManager{}
}

// track pushes instance if it implements Disposable. Other values are ignored.
func (m *lifecycleManager) track(instance any) {
	d, ok := instance.(Disposable)
	if !ok {
		return
	}

	m.mu.Lock()
	m.stack = append(m.stack, d)
	m.mu.Unlock()
}

// dispose closes every tracked value, most recent first, and empties the
// manager. A failing Close does not stop the remaining ones.
func (m *lifecycleManager) dispose() error {
	m.mu.Lock()
	stack := m.stack
	m.stack = nil
	m.mu.Unlock()

	var errs []error
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := top.Close(); err != nil {
			errs = append(errs, fmt.Errorf("disposal error: %w", err))
		}
	}

	return errors.Join(errs...)
}
