package keel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventHandler processes one dispatch of a named event. It receives the
// payload produced by the previous handler and returns the payload handed to
// the next one.
type EventHandler interface {
	Handle(ctx context.Context, event string, payload any) (any, error)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event string, payload any) (any, error)

func (f EventHandlerFunc) Handle(ctx context.Context, event string, payload any) (any, error) {
	return f(ctx, event, payload)
}

// HandlerOf returns an EventHandlerFactory for a stateless handler function.
func HandlerOf(fn EventHandlerFunc) EventHandlerFactory {
	return func(*Container) EventHandler {
		return fn
	}
}

type registration struct {
	priority int
	seq      int
	factory  EventHandlerFactory
}

// EventManager dispatches named events to handlers in ascending priority
// order. Handlers sharing a priority run in registration order.
type EventManager struct {
	container *Container
	logger    *zap.Logger
	metrics   *Metrics

	mu       sync.RWMutex
	handlers map[string][]registration
	seq      int
}

// NewEventManager creates an empty event manager.
func NewEventManager(c *Container) *EventManager {
	logger, err := Get[*zap.Logger](c, KeyLogger)
	if err != nil {
		logger = zap.NewNop()
	}
	metrics, _ := Get[*Metrics](c, KeyMetrics)

	return &EventManager{
		container: c,
		logger:    logger,
		metrics:   metrics,
		handlers:  make(map[string][]registration),
	}
}

// Register appends a handler factory for event at priority.
func (em *EventManager) Register(event string, priority int, factory EventHandlerFactory) error {
	if event == "" {
		return fmt.Errorf("event name: %w", ErrEmptyName)
	}
	if factory == nil {
		return fmt.Errorf("event %q: %w", event, ErrNilHandler)
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	em.seq++
	regs := append(em.handlers[event], registration{priority: priority, seq: em.seq, factory: factory})
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority < regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})
	em.handlers[event] = regs
	return nil
}

// AddHandlers registers a module's event declarations. Events and priorities
// are visited in sorted order so registration is deterministic.
func (em *EventManager) AddHandlers(events EventMap) error {
	names := make([]string, 0, len(events))
	for name := range events {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		byPriority := events[name]
		priorities := make([]int, 0, len(byPriority))
		for p := range byPriority {
			priorities = append(priorities, p)
		}
		sort.Ints(priorities)

		for _, p := range priorities {
			for _, factory := range byPriority[p] {
				if err := em.Register(name, p, factory); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Dispatch threads payload through every handler registered for event and
// returns the final payload. Each handler is instantiated fresh for this
// dispatch. With no handlers the payload is returned unchanged. The first
// handler error stops the dispatch and is returned.
func (em *EventManager) Dispatch(ctx context.Context, event string, payload any) (any, error) {
	em.mu.RLock()
	regs := append([]registration(nil), em.handlers[event]...)
	em.mu.RUnlock()

	if len(regs) == 0 {
		return payload, nil
	}

	started := time.Now()
	out, err := em.dispatch(ctx, event, payload, regs)
	em.metrics.recordDispatch(event, started, err)
	if err != nil {
		em.logger.Error("event dispatch failed", zap.String("event", event), zap.Error(err))
		return nil, err
	}

	em.logger.Debug("event dispatched",
		zap.String("event", event),
		zap.Int("handlers", len(regs)),
		zap.Duration("duration", time.Since(started)),
	)
	return out, nil
}

func (em *EventManager) dispatch(ctx context.Context, event string, payload any, regs []registration) (any, error) {
	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return nil, EventHandlerError{Event: event, Priority: reg.priority, Cause: err}
		}

		handler := reg.factory(em.container)
		if handler == nil {
			return nil, EventHandlerError{Event: event, Priority: reg.priority, Cause: ErrNilHandler}
		}

		next, err := handler.Handle(ctx, event, payload)
		if err != nil {
			return nil, EventHandlerError{Event: event, Priority: reg.priority, Cause: err}
		}
		payload = next
	}
	return payload, nil
}

// Events returns the names of events with at least one handler, sorted.
func (em *EventManager) Events() []string {
	em.mu.RLock()
	defer em.mu.RUnlock()

	names := make([]string, 0, len(em.handlers))
	for name := range em.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Priorities returns the distinct priorities registered for event, ascending.
func (em *EventManager) Priorities(event string) []int {
	em.mu.RLock()
	defer em.mu.RUnlock()

	var priorities []int
	for _, reg := range em.handlers[event] {
		if n := len(priorities); n == 0 || priorities[n-1] != reg.priority {
			priorities = append(priorities, reg.priority)
		}
	}
	return priorities
}

// HandlerCount returns the number of handlers registered for event.
func (em *EventManager) HandlerCount(event string) int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return len(em.handlers[event])
}
