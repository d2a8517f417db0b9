package keel

import (
	"os"
	"os/signal"
	"sync"
)

// SignalHandler reacts to a delivered process signal.
type SignalHandler func(c *Container, sig os.Signal)

type signalHandler struct {
	id uint64
	fn SignalHandler
}

// SignalManager fans process signals out to registered handlers.
// Handlers run on the manager's goroutine in registration order.
type SignalManager struct {
	container *Container

	mu       sync.Mutex
	nextID   uint64
	handlers map[os.Signal][]signalHandler
	ch       chan os.Signal
	done     chan struct{}
}

// NewSignalManager creates a stopped signal manager.
func NewSignalManager(c *Container) *SignalManager {
	return &SignalManager{
		container: c,
		handlers:  make(map[os.Signal][]signalHandler),
	}
}

// AddHandler registers fn for sig and returns a function that removes it.
// If the manager is running, sig is subscribed immediately. A signal left
// without handlers is unsubscribed so its default behavior applies again.
func (m *SignalManager) AddHandler(sig os.Signal, fn SignalHandler) (remove func()) {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.handlers[sig] = append(m.handlers[sig], signalHandler{id: id, fn: fn})
	if m.ch != nil {
		signal.Notify(m.ch, sig)
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.remove(sig, id) })
	}
}

func (m *SignalManager) remove(sig os.Signal, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[sig]
	for i, h := range handlers {
		if h.id == id {
			handlers = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}

	if len(handlers) > 0 {
		m.handlers[sig] = handlers
		return
	}

	delete(m.handlers, sig)
	if m.ch != nil {
		signal.Stop(m.ch)
		for s := range m.handlers {
			signal.Notify(m.ch, s)
		}
	}
}

// HandlerCount returns the number of handlers registered for sig.
func (m *SignalManager) HandlerCount(sig os.Signal) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers[sig])
}

// Start subscribes to every signal with a handler and begins delivery.
// Calling Start on a running manager is a no-op.
func (m *SignalManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ch != nil {
		return
	}

	m.ch = make(chan os.Signal, 1)
	m.done = make(chan struct{})
	for sig := range m.handlers {
		signal.Notify(m.ch, sig)
	}

	go m.loop(m.ch, m.done)
}

func (m *SignalManager) loop(ch chan os.Signal, done chan struct{}) {
	for {
		select {
		case sig := <-ch:
			m.Notify(sig)
		case <-done:
			return
		}
	}
}

// Notify runs the handlers registered for sig synchronously.
func (m *SignalManager) Notify(sig os.Signal) {
	m.mu.Lock()
	handlers := append([]signalHandler(nil), m.handlers[sig]...)
	m.mu.Unlock()

	for _, h := range handlers {
		h.fn(m.container, sig)
	}
}

// Stop unsubscribes from all signals and stops delivery. Registered handlers
// are kept and resubscribed by the next Start.
func (m *SignalManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ch == nil {
		return
	}

	signal.Stop(m.ch)
	close(m.done)
	m.ch = nil
	m.done = nil
}
