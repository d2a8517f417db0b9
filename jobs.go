package keel

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Job is a long-lived task invoked repeatedly by the job loop.
type Job interface {
	Run(ctx context.Context, c *Container) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context, c *Container) error

func (f JobFunc) Run(ctx context.Context, c *Container) error {
	return f(ctx, c)
}

// Fixture is a one-time setup task run by fixture:run.
type Fixture interface {
	Run(ctx context.Context, c *Container) error
}

// FixtureFunc adapts a function to Fixture.
type FixtureFunc func(ctx context.Context, c *Container) error

func (f FixtureFunc) Run(ctx context.Context, c *Container) error {
	return f(ctx, c)
}

type runnableJob struct {
	name   string
	module string
	job    Job
}

// JobRunner runs every declared job sequentially in an endless loop.
// Jobs from later modules run first.
//
// Jobs never run concurrently; a job that blocks holds up the rest of the
// iteration. When a job timeout is configured each run gets its own deadline,
// and a run that exceeds it is logged and skipped rather than failing the loop.
type JobRunner struct {
	container *Container
	logger    *zap.Logger
	metrics   *Metrics
	timeout   time.Duration
	jobs      []runnableJob
}

// NewJobRunner instantiates every job in entries with the container, then
// reverses the list. The job timeout is read from the container config.
func NewJobRunner(c *Container, entries []JobEntry) (*JobRunner, error) {
	logger, err := Get[*zap.Logger](c, KeyLogger)
	if err != nil {
		logger = zap.NewNop()
	}
	metrics, _ := Get[*Metrics](c, KeyMetrics)

	var timeout time.Duration
	if cfg, err := Get[*Config](c, KeyConfig); err == nil {
		timeout = cfg.Duration(CfgJobTimeout, 0)
	}

	jobs := make([]runnableJob, 0, len(entries))
	for _, entry := range entries {
		if entry.Spec.New == nil {
			return nil, JobError{Job: entry.Spec.Name, Module: entry.Module, Cause: ErrNilJob}
		}
		job, err := entry.Spec.New(c)
		if err != nil {
			return nil, JobError{Job: entry.Spec.Name, Module: entry.Module, Cause: err}
		}
		if job == nil {
			return nil, JobError{Job: entry.Spec.Name, Module: entry.Module, Cause: ErrNilJob}
		}
		jobs = append(jobs, runnableJob{name: entry.Spec.Name, module: entry.Module, job: job})
	}

	for i, j := 0, len(jobs)-1; i < j; i, j = i+1, j-1 {
		jobs[i], jobs[j] = jobs[j], jobs[i]
	}

	return &JobRunner{
		container: c,
		logger:    logger,
		metrics:   metrics,
		timeout:   timeout,
		jobs:      jobs,
	}, nil
}

// Jobs returns the job names in run order.
func (r *JobRunner) Jobs() []string {
	names := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		names = append(names, j.name)
	}
	return names
}

// Run loops over the jobs until ctx is cancelled, returning nil in that case.
// Any other job error stops the loop and is returned.
func (r *JobRunner) Run(ctx context.Context) error {
	r.logger.Info("job loop started", zap.Strings("jobs", r.Jobs()))
	defer r.logger.Info("job loop stopped")

	for {
		if err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if len(r.jobs) == 0 {
			<-ctx.Done()
			return nil
		}
	}
}

// RunOnce runs every job once, in order.
func (r *JobRunner) RunOnce(ctx context.Context) error {
	for _, j := range r.jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runJob(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

func (r *JobRunner) runJob(ctx context.Context, j runnableJob) error {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	err := j.job.Run(runCtx, r.container)
	r.metrics.recordJob(j.name, started, err)

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case r.timeout > 0 && errors.Is(err, context.DeadlineExceeded):
		r.logger.Warn("job timed out",
			zap.String("job", j.name),
			zap.String("module", j.module),
			zap.Duration("timeout", r.timeout),
		)
		return nil
	default:
		return JobError{Job: j.name, Module: j.module, Cause: err}
	}
}

// IdleJob paces the job loop so an iteration takes at least one interval.
type IdleJob struct {
	limiter *rate.Limiter
}

// NewIdleJob creates an IdleJob allowing one loop iteration per interval.
func NewIdleJob(interval time.Duration) *IdleJob {
	if interval <= 0 {
		interval = defaultJobIdleInterval
	}
	return &IdleJob{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Run blocks until the next iteration is allowed or ctx is done.
func (j *IdleJob) Run(ctx context.Context, _ *Container) error {
	reservation := j.limiter.Reserve()
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}
