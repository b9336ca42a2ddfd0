// Package revalidate runs Validate on flows on a cron schedule, so keys that
// nobody reads still get refreshed once their cached value goes stale.
//
//	s := revalidate.New(revalidate.Options{Logger: log})
//	_ = s.Add("users", "0 */5 * * * *", store.Flow("u1"), store.Flow("u2"))
//	s.Start()
//	defer s.Stop(ctx)
//
// Specs carry a seconds field (6 fields) or a descriptor such as "@every 1m".
package revalidate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unkn0wn-root/flowcache"
	"github.com/unkn0wn-root/flowcache/internal/routine"
)

const defaultTimeout = 30 * time.Second

var (
	ErrNoTargets = errors.New("revalidate: no targets")
	ErrDuplicate = errors.New("revalidate: job already registered")
	ErrUnknown   = errors.New("revalidate: unknown job")
)

// Validator is satisfied by flowcache.Flow.
type Validator interface {
	Validate(ctx context.Context) error
}

type Options struct {
	// Timeout bounds how long one run waits on each target. 0 => 30s.
	// The fetch itself is never cancelled.
	Timeout time.Duration
	Logger  flowcache.Logger
}

type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	log     flowcache.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	name    string
	targets []Validator
	s       *Scheduler
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		timeout: opts.Timeout,
		log:     opts.Logger,
		jobs:    make(map[string]*job),
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.log == nil {
		s.log = flowcache.NopLogger{}
	}
	return s
}

// Add registers targets to be validated on spec. Targets run one after
// another; a failing target does not stop the rest.
func (s *Scheduler) Add(name, spec string, targets ...Validator) error {
	if len(targets) == 0 {
		return ErrNoTargets
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	j := &job{name: name, targets: targets, s: s}
	if _, err := s.cron.AddJob(spec, j); err != nil {
		return fmt.Errorf("revalidate: add %s with spec %q: %w", name, spec, err)
	}
	s.jobs[name] = j
	s.log.Info("revalidation job added", flowcache.Fields{"job": name, "spec": spec, "targets": len(targets)})
	return nil
}

// Run executes the named job now, outside the schedule, and returns the
// joined target errors.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return j.run(ctx)
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for running jobs, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run implements cron.Job.
func (j *job) Run() {
	_ = j.run(context.Background())
}

func (j *job) run(ctx context.Context) error {
	start := time.Now()
	var errs []error
	for i, t := range j.targets {
		if err := j.validate(ctx, t); err != nil {
			j.s.log.Warn("revalidation failed", flowcache.Fields{"job": j.name, "target": i, "err": err})
			errs = append(errs, err)
		}
	}
	j.s.log.Debug("revalidation finished", flowcache.Fields{
		"job": j.name, "targets": len(j.targets), "failed": len(errs), "took": time.Since(start),
	})
	return errors.Join(errs...)
}

func (j *job) validate(ctx context.Context, t Validator) (err error) {
	ctx, cancel := context.WithTimeout(ctx, j.s.timeout)
	defer cancel()
	v, stack, panicked := routine.Call(func() { err = t.Validate(ctx) })
	if panicked {
		j.s.log.Error("revalidation panicked", flowcache.Fields{"job": j.name, "panic": v, "stack": string(stack)})
		return &flowcache.PanicError{Value: v, Stack: stack}
	}
	return err
}
