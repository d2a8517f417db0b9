package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/junioryono/keel"
)

// Common test errors
var (
	ErrTest          = errors.New("test error")
	ErrIntentional   = errors.New("intentional error")
	ErrConstructor   = errors.New("constructor error")
	ErrDisposal      = errors.New("disposal error")
	ErrAlreadyClosed = errors.New("already closed")
)

// TestService is a basic test service
type TestService struct {
	ID        string
	CreatedAt time.Time
	Data      string
}

// NewTestService creates a new test service
func NewTestService() *TestService {
	return &TestService{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Data:      "test",
	}
}

// ServiceConstructor returns a constructor for a fresh TestService, counting
// invocations in calls.
func ServiceConstructor(calls *atomic.Int32) keel.ServiceConstructor {
	return func(*keel.Container) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		return NewTestService(), nil
	}
}

// Recorder collects events from concurrent callers in order.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Count returns how many times call was recorded.
func (r *Recorder) Count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

// TestDisposable records its Close call
type TestDisposable struct {
	Name     string
	recorder *Recorder
	closeErr error
	closed   atomic.Bool
}

func NewTestDisposable(name string, recorder *Recorder) *TestDisposable {
	return &TestDisposable{Name: name, recorder: recorder}
}

func NewTestDisposableWithError(name string, recorder *Recorder, err error) *TestDisposable {
	return &TestDisposable{Name: name, recorder: recorder, closeErr: err}
}

func (d *TestDisposable) Close() error {
	if d.closed.Swap(true) {
		return ErrAlreadyClosed
	}
	if d.recorder != nil {
		d.recorder.Record("close:" + d.Name)
	}
	return d.closeErr
}

func (d *TestDisposable) IsClosed() bool {
	return d.closed.Load()
}

// TestCommand is a configurable CLI command
type TestCommand struct {
	Desc    string
	Skip    bool
	Declare func(p *keel.Parser)
	Result  bool
	Err     error

	Runs    atomic.Int32
	mu      sync.Mutex
	gotArgs *keel.Args
	gotNil  bool
}

func (c *TestCommand) Description() string {
	if c.Desc == "" {
		return "test command"
	}
	return c.Desc
}

func (c *TestCommand) Arguments(p *keel.Parser) {
	if c.Declare != nil {
		c.Declare(p)
	}
}

func (c *TestCommand) SkipArgs() bool {
	return c.Skip
}

func (c *TestCommand) Run(ctx context.Context, args *keel.Args) (bool, error) {
	c.Runs.Add(1)

	c.mu.Lock()
	c.gotArgs = args
	c.gotNil = args == nil
	c.mu.Unlock()

	return c.Result, c.Err
}

// Args returns the arguments passed to the last Run.
func (c *TestCommand) Args() *keel.Args {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gotArgs
}

// ReceivedNilArgs reports whether the last Run received nil args.
func (c *TestCommand) ReceivedNilArgs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gotNil
}

// CommandFactory returns a factory yielding cmd, counting instantiations.
func CommandFactory(cmd keel.Command, created *atomic.Int32) keel.CommandFactory {
	return func(*keel.Container) keel.Command {
		if created != nil {
			created.Add(1)
		}
		return cmd
	}
}

// AppendHandler returns a handler factory appending tag to a []string payload
// and recording the call.
func AppendHandler(tag string, recorder *Recorder) keel.EventHandlerFactory {
	return func(*keel.Container) keel.EventHandler {
		return keel.EventHandlerFunc(func(_ context.Context, event string, payload any) (any, error) {
			if recorder != nil {
				recorder.Record(event + ":" + tag)
			}
			list, _ := payload.([]string)
			return append(append([]string(nil), list...), tag), nil
		})
	}
}

// FailingHandler returns a handler factory that always fails with err.
func FailingHandler(err error) keel.EventHandlerFactory {
	return func(*keel.Container) keel.EventHandler {
		return keel.EventHandlerFunc(func(context.Context, string, any) (any, error) {
			return nil, err
		})
	}
}

// RecordingJob returns a job spec whose runs are recorded as "run:<name>".
// When stopAfter is positive the job cancels via cancel after that many runs.
func RecordingJob(name string, recorder *Recorder, stopAfter int, cancel context.CancelFunc) keel.JobSpec {
	return keel.JobSpec{
		Name: name,
		New: func(*keel.Container) (keel.Job, error) {
			runs := 0
			return keel.JobFunc(func(ctx context.Context, _ *keel.Container) error {
				runs++
				recorder.Record("run:" + name)
				if stopAfter > 0 && runs >= stopAfter && cancel != nil {
					cancel()
				}
				return nil
			}), nil
		},
	}
}
