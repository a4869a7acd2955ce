// Package scheduler runs the engine's batch jobs on a cron schedule. A job
// never overlaps with itself: a tick that arrives while the previous run is
// still active is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/krawlist/eventengine/pkg/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// Job is one batch run.
type Job func(ctx context.Context) error

type jobState struct {
	entry   cron.EntryID
	run     Job
	running bool

	runs         int
	failures     int
	lastStart    time.Time
	lastDuration time.Duration
	lastErr      error
}

// Scheduler triggers registered jobs on a shared cron schedule or on demand.
type Scheduler struct {
	spec            string
	schedule        cron.Schedule
	cron            *cron.Cron
	log             logger.Logger
	loc             *time.Location
	shutdownTimeout time.Duration

	mu    sync.Mutex
	jobs  map[string]*jobState
	order []string
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler for a standard five-field cron spec or a
// descriptor such as "@daily".
func New(spec string, opts ...Option) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
	}
	s := &Scheduler{
		spec:            spec,
		schedule:        schedule,
		log:             logger.Get().Named("scheduler"),
		loc:             time.Local,
		shutdownTimeout: defaultShutdownTimeout,
		jobs:            make(map[string]*jobState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s, nil
}

// Add registers a job under name. Jobs registered on the same scheduler run
// independently of each other.
func (s *Scheduler) Add(name string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	st := &jobState{run: job}
	st.entry = s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.tick(name) }))
	s.jobs[name] = st
	s.order = append(s.order, name)
	return nil
}

// Start begins firing jobs. The context bounds every run started by the
// scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info(ctx, "scheduler started",
		logger.String("schedule", s.spec),
		logger.Int("jobs", len(s.order)))
}

// Stop stops the schedule and waits for running jobs. When ctx expires
// first, running jobs are cancelled and an error is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.log.Info(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.log.Warn(ctx, "shutdown timed out; running jobs cancelled")
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// Trigger starts job name now, outside its schedule. It returns once the
// run has started.
func (s *Scheduler) Trigger(_ context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.jobs[name]
	switch {
	case !ok:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	case st.running:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBusy, name)
	}
	st.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.execute(name, st)
	}()
	return nil
}

func (s *Scheduler) tick(name string) {
	s.mu.Lock()
	st := s.jobs[name]
	if st.running {
		s.mu.Unlock()
		s.log.Info(context.Background(), "tick skipped; previous run still active", logger.String("job", name))
		return
	}
	st.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.execute(name, st)
}

// execute runs st; the caller has already marked it running.
func (s *Scheduler) execute(name string, st *jobState) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	s.log.Info(ctx, "job started", logger.String("job", name))
	err := safeRun(ctx, st.run)
	elapsed := time.Since(start)

	s.mu.Lock()
	st.running = false
	st.runs++
	st.lastStart = start
	st.lastDuration = elapsed
	st.lastErr = err
	if err != nil {
		st.failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error(ctx, "job failed",
			logger.String("job", name), logger.Duration("elapsed", elapsed), logger.Error(err))
		return
	}
	s.log.Info(ctx, "job finished", logger.String("job", name), logger.Duration("elapsed", elapsed))
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}

// Running reports whether job name is currently running.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[name]
	return ok && st.running
}

// GetStats returns per-job counters and the next scheduled run.
func (s *Scheduler) GetStats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make(map[string]any, len(s.jobs))
	for _, name := range s.order {
		st := s.jobs[name]
		js := map[string]any{
			"running":  st.running,
			"runs":     st.runs,
			"failures": st.failures,
		}
		if next := s.cron.Entry(st.entry).Next; !next.IsZero() {
			js["next_run"] = next
		}
		if !st.lastStart.IsZero() {
			js["last_start"] = st.lastStart
			js["last_duration_ms"] = st.lastDuration.Milliseconds()
		}
		if st.lastErr != nil {
			js["last_error"] = st.lastErr.Error()
		}
		jobs[name] = js
	}
	return map[string]any{
		"schedule": s.spec,
		"timezone": s.loc.String(),
		"jobs":     jobs,
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug(context.Background(), msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(context.Background(), msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
