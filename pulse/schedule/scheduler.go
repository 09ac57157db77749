package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/db"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/logger"
)

// rescheduleTimeout bounds the schedule write that follows every run. It
// uses a context detached from shutdown so a cancelled run still persists
// its next run time.
const rescheduleTimeout = 10 * time.Second

// Config controls the scheduler loop.
type Config struct {
	TickInterval  time.Duration `json:"tick_interval"`
	ShutdownGrace time.Duration `json:"shutdown_grace"`
	HistoryKeep   int           `json:"history_keep"`  // executions kept per job, 0 keeps all
	MetricsEvery  int           `json:"metrics_every"` // ticks between heartbeats, 0 disables
}

// DefaultConfig returns the production loop settings.
func DefaultConfig() Config {
	return Config{
		TickInterval:  time.Second,
		ShutdownGrace: 30 * time.Second,
		HistoryKeep:   200,
		MetricsEvery:  300,
	}
}

// ConfigFrom converts the pulse section of am.Config.
func ConfigFrom(p am.PulseConfig) Config {
	cfg := Config{
		TickInterval:  p.TickInterval(),
		ShutdownGrace: p.ShutdownGrace(),
		HistoryKeep:   p.HistoryKeep,
		MetricsEvery:  p.MetricsEvery,
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return cfg
}

// pulseLogger tags opening (✿) and closing (❀) events of the loop.
type pulseLogger struct {
	*zap.SugaredLogger
}

func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Infow("✿ "+msg, keysAndValues...)
}

func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Infow("❀ "+msg, keysAndValues...)
}

// Scheduler dispatches registered jobs when their persisted next run time
// has passed. A job never runs concurrently with itself.
type Scheduler struct {
	store   *Store
	history *ExecutionStore // optional
	cfg     Config
	log     pulseLogger
	now     func() time.Time

	mu      sync.Mutex
	jobs    map[string]Job
	running map[string]bool
	wg      sync.WaitGroup
	ticks   int
}

// NewScheduler creates a scheduler over store. history may be nil.
func NewScheduler(store *Store, history *ExecutionStore, cfg Config, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		store:   store,
		history: history,
		cfg:     cfg,
		log:     pulseLogger{logger.AddPulseSymbol(log).Named("scheduler")},
		now:     time.Now,
		jobs:    make(map[string]Job),
		running: make(map[string]bool),
	}
}

// Register adds a job. Names must be unique and intervals positive.
func (s *Scheduler) Register(job Job) error {
	name := job.Name()
	if name == "" {
		return errors.NewInvalidRequestError("job name is empty")
	}
	if job.Interval() <= 0 {
		return errors.NewInvalidRequestError("job %s has non-positive interval %s", name, job.Interval())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return errors.NewInvalidRequestError("job %s already registered", name)
	}
	s.jobs[name] = job
	return nil
}

// Jobs returns the registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Initialize makes sure every registered job has a schedule row. New jobs
// first run one interval from now; existing rows are left alone.
func (s *Scheduler) Initialize(ctx context.Context) error {
	now := s.now()
	for _, name := range s.Jobs() {
		job := s.job(name)
		next := now.Add(job.Interval())
		inserted, err := s.store.EnsureJob(ctx, name, next)
		if err != nil {
			return err
		}
		if inserted {
			s.log.Infow("Job scheduled", logger.FieldJob, name, logger.FieldNextRun, next.Unix(), logger.FieldInterval, job.Interval().String())
		}
	}
	return nil
}

func (s *Scheduler) job(name string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[name]
}

// Tick dispatches every due job that is registered and not already running.
// It returns the number of jobs dispatched.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, entry := range due {
		s.mu.Lock()
		job, known := s.jobs[entry.Name]
		busy := s.running[entry.Name]
		if known && !busy {
			s.running[entry.Name] = true
			s.wg.Add(1)
		}
		s.mu.Unlock()

		switch {
		case !known:
			s.log.Warnw("Due job is not registered, skipping", logger.FieldJob, entry.Name)
		case busy:
			s.log.Debugw("Job still running, skipping", logger.FieldJob, entry.Name)
		default:
			dispatched++
			go s.execute(ctx, job, entry, now)
		}
	}
	return dispatched, nil
}

func (s *Scheduler) execute(ctx context.Context, job Job, entry Entry, now time.Time) {
	name := job.Name()
	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
		s.wg.Done()
	}()

	log := logger.FromContext(logger.WithJob(ctx, name), s.log.SugaredLogger)
	job.SetRunWindow(entry.NextRunTime, now)

	detached := context.WithoutCancel(ctx)
	var exec *Execution
	if s.history != nil {
		var err error
		if exec, err = s.history.Start(detached, name, now); err != nil {
			log.Warnw("Failed to record execution start", logger.FieldError, err)
		}
	}

	start := time.Now()
	runErr := s.perform(ctx, job)
	elapsed := time.Since(start)

	if runErr != nil {
		log.Errorw("Pulse FAILED",
			logger.FieldDurationMS, elapsed.Milliseconds(),
			logger.FieldErrorType, errorType(runErr),
			logger.FieldError, runErr.Error(),
			logger.FieldStack, fmt.Sprintf("%+v", runErr))
	} else {
		log.Infow("Pulse OK", logger.FieldDurationMS, elapsed.Milliseconds())
	}

	next := now.Add(job.Interval())
	rctx, cancel := context.WithTimeout(detached, rescheduleTimeout)
	defer cancel()
	if _, err := s.store.Upsert(rctx, name, next); err != nil {
		log.Errorw("Failed to reschedule job", logger.FieldNextRun, next.Unix(), logger.FieldError, err)
	} else {
		log.Debugw("Job rescheduled", logger.FieldNextRun, next.Unix())
	}

	if exec != nil {
		if err := s.history.Finish(rctx, exec, now.Add(elapsed), runErr); err != nil {
			log.Warnw("Failed to record execution result", logger.FieldError, err)
		}
		if _, err := s.history.Prune(rctx, name, s.cfg.HistoryKeep); err != nil {
			log.Warnw("Failed to prune execution history", logger.FieldError, err)
		}
	}
}

// perform runs one cycle and turns a panic into an error.
func (s *Scheduler) perform(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithDetail(errors.Newf("job %s panicked: %v", job.Name(), r), string(debug.Stack()))
		}
	}()
	return job.Perform(ctx)
}

func errorType(err error) string {
	switch {
	case errors.IsTransactionError(err):
		return "transaction"
	case errors.IsProcessingError(err):
		return "processing"
	case errors.IsTransientIOError(err):
		return "transient_io"
	case errors.IsFatalConfigError(err):
		return "fatal_config"
	default:
		return fmt.Sprintf("%T", errors.UnwrapAll(err))
	}
}

// Run ticks until ctx is cancelled, then waits up to the shutdown grace
// for in-flight jobs. It also stops, returning the error, once the
// database handle has been closed underneath it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Starting("Scheduler started", "jobs", len(s.Jobs()), "tick", s.cfg.TickInterval.String())

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	if err := s.tick(ctx); err != nil {
		return s.stop(err)
	}
	for {
		select {
		case <-ctx.Done():
			return s.stop(nil)
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				return s.stop(err)
			}
		}
	}
}

// stop waits for running jobs. cause is the closed-database error that
// ended the loop, or nil on cancellation.
func (s *Scheduler) stop(cause error) error {
	if cause != nil {
		s.log.Warnw("Database closed, scheduler stopping", logger.FieldError, cause)
	} else {
		s.log.Closing("Scheduler stopping, waiting for running jobs", "grace", s.cfg.ShutdownGrace.String())
	}
	if !s.Wait(s.cfg.ShutdownGrace) {
		s.log.Warnw("Shutdown grace expired with jobs still running", "grace", s.cfg.ShutdownGrace.String())
	} else {
		s.log.Closing("Scheduler stopped")
	}
	if cause != nil {
		return errors.Wrap(cause, "scheduler")
	}
	return nil
}

// tick returns an error only when the database is closed; other tick
// failures are logged and the loop carries on.
func (s *Scheduler) tick(ctx context.Context) error {
	_, err := s.Tick(ctx, s.now())
	switch {
	case err == nil || ctx.Err() != nil:
	case db.IsDatabaseClosed(err):
		return err
	default:
		s.log.Errorw("Scheduler tick failed", logger.FieldError, err)
	}

	s.ticks++
	if s.cfg.MetricsEvery > 0 && s.ticks%s.cfg.MetricsEvery == 0 {
		s.heartbeat(ctx)
	}
	return nil
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	s.mu.Lock()
	running := len(s.running)
	s.mu.Unlock()

	fields := []any{"running", running}
	if entries, err := s.store.List(ctx); err == nil && len(entries) > 0 {
		fields = append(fields, "next_job", entries[0].Name, logger.FieldNextRun, entries[0].NextRunTime.Format(time.RFC3339))
	}

	m, err := ReadHostMetrics()
	if err != nil {
		s.log.Debugw("Heartbeat", append(fields, logger.FieldError, err)...)
		return
	}
	s.log.Debugw("Heartbeat", append(fields,
		"memory_used_gb", fmt.Sprintf("%.1f", m.MemoryUsedGB),
		"memory_percent", fmt.Sprintf("%.0f", m.MemoryPercent))...)
}

// Wait blocks until no job is running or timeout elapses. It reports
// whether all jobs finished.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
