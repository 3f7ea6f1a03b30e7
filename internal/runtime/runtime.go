// Package runtime implements the single entry point that owns the event
// loop, scheduler, journal, and recovery engine, and controls the
// process-level lifecycle: init, start, stop, restart, and signal-driven
// graceful shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/sukryu/stellane/internal/config"
	"github.com/sukryu/stellane/internal/journal"
	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/loop"
	"github.com/sukryu/stellane/internal/recovery"
	"github.com/sukryu/stellane/internal/scheduler"
	"github.com/sukryu/stellane/internal/stellaneerr"
	"github.com/sukryu/stellane/internal/task"
)

var (
	ErrAlreadyRunning = errors.New("runtime: already running")
	ErrCustomBackend  = errors.New("runtime: backend requires InitWithBackend")
)

// Runtime wires the loop backend, scheduler, journal (when recovery is
// enabled), and recovery engine into one process-lifecycle owner.
type Runtime struct {
	cfg config.Config

	backend loop.Backend
	sched   scheduler.Scheduler
	jrnl    *journal.Journal
	store   journal.Store
	recov   *recovery.Engine
	errBox  *taskErrHandler

	mu      sync.Mutex
	running bool
	stopped chan struct{}
}

// taskErrHandler lets Runtime.OnTaskError register a handler after the
// scheduler has already been constructed: the scheduler's Config.OnTaskError
// closure is fixed at construction time, so it forwards through this box
// instead of calling a handler captured by value.
type taskErrHandler struct {
	mu sync.RWMutex
	fn func(taskID string, err error)
}

func (h *taskErrHandler) call(taskID string, err error) {
	h.mu.RLock()
	fn := h.fn
	h.mu.RUnlock()
	if fn != nil {
		fn(taskID, err)
	}
}

func (h *taskErrHandler) set(fn func(taskID string, err error)) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

// Init validates cfg and constructs/wires the backend, scheduler, journal
// (if recovery.enabled), and recovery engine. Any subsystem already
// constructed when a later step fails is torn down before the error
// returns, so a failed Init never leaks a half-built Runtime.
func Init(cfg config.Config) (*Runtime, error) {
	return initWithBackend(cfg, nil)
}

// InitFromFile reads TOML from path via config.LoadFromFile, then Init.
func InitFromFile(path string) (*Runtime, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	return Init(*cfg)
}

// InitWithBackend is the entry point for the "custom" and "user-provided"
// runtime.backend values: the embedding binary supplies its own
// loop.Backend (already constructed against its own I/O sources) and
// Runtime wires only the scheduler/journal/recovery layer around it.
func InitWithBackend(cfg config.Config, backend loop.Backend) (*Runtime, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", stellaneerr.ErrConfigInvalid)
	}
	return initWithBackend(cfg, backend)
}

func initWithBackend(cfg config.Config, backend loop.Backend) (rt *Runtime, err error) {
	var sched scheduler.Scheduler
	var jrnl *journal.Journal
	var store journal.Store
	var recov *recovery.Engine

	defer func() {
		if err == nil {
			return
		}
		// Initialization errors abort init with partial cleanup.
		if jrnl != nil {
			jrnl.Close()
		}
	}()

	if backend == nil {
		backend, err = buildBackend(cfg.Runtime)
		if err != nil {
			return nil, err
		}
	} else if cfg.Runtime.Backend != "custom" && cfg.Runtime.Backend != "user-provided" {
		return nil, fmt.Errorf("%w: runtime.backend %q does not accept InitWithBackend", stellaneerr.ErrConfigInvalid, cfg.Runtime.Backend)
	}

	errBox := &taskErrHandler{}
	sched, err = buildScheduler(cfg, errBox)
	if err != nil {
		return nil, err
	}

	if cfg.Recovery.Enabled {
		store, err = buildStore(cfg)
		if err != nil {
			return nil, err
		}
		jrnl = journal.New(buildJournalConfig(cfg), store)
		recov = recovery.New(buildRecoveryConfig(cfg), jrnl, sched)
	}

	return &Runtime{
		cfg:     cfg,
		backend: backend,
		sched:   sched,
		jrnl:    jrnl,
		store:   store,
		recov:   recov,
		errBox:  errBox,
		stopped: make(chan struct{}),
	}, nil
}

func buildBackend(rcfg config.RuntimeConfig) (loop.Backend, error) {
	lcfg := loop.Config{
		MaxTasksPerLoop: rcfg.MaxTasksPerLoop,
		IdleTimeout:     rcfg.IdleTimeout,
		StopGrace:       5 * time.Second,
	}

	switch rcfg.Backend {
	case "cross-platform", "":
		waiter := func(ctx context.Context, fd int, mask loop.InterestMask) (loop.InterestMask, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return loop.NewCrossPlatformBackend(lcfg, waiter, 0), nil
	case "readiness-linux":
		b, err := loop.NewReadinessBackend(lcfg, true)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "completion-linux":
		b, err := loop.NewCompletionBackend(lcfg, 256)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "custom", "user-provided":
		return nil, ErrCustomBackend
	default:
		return nil, fmt.Errorf("%w: runtime.backend %q", stellaneerr.ErrConfigInvalid, rcfg.Backend)
	}
}

func buildScheduler(cfg config.Config, errBox *taskErrHandler) (scheduler.Scheduler, error) {
	workers := cfg.Runtime.WorkerThreads
	if workers <= 0 {
		workers = 4
	}
	base := scheduler.Config{
		WorkerCount:     workers,
		IdleTimeout:     cfg.Runtime.IdleTimeout,
		StealingEnabled: cfg.WorkStealing.Enabled,
		CPUAffinity:     cfg.Affinity.WorkerCoreMap,
		OnTaskError:     errBox.call,
	}

	switch cfg.Runtime.Strategy {
	case "fifo":
		return scheduler.NewFIFOScheduler(base), nil
	case "priority":
		return scheduler.NewPriorityScheduler(base), nil
	case "round-robin":
		return scheduler.NewRoundRobinScheduler(base), nil
	case "affinity":
		return scheduler.NewAffinityScheduler(base, nil), nil
	case "work-stealing", "", "custom":
		params := scheduler.WorkStealingParams{
			StealThreshold:    cfg.WorkStealing.StealThreshold,
			MaxStealAttempts:  cfg.WorkStealing.MaxStealAttempts,
			MaxTasksPerSteal:  cfg.WorkStealing.MaxTasksPerSteal,
			MinStealInterval:  cfg.WorkStealing.MinStealInterval,
			MaxStealInterval:  cfg.WorkStealing.MaxStealInterval,
			RebalanceInterval: cfg.WorkStealing.RebalanceInterval,
		}
		if params.StealThreshold == 0 {
			params = scheduler.DefaultWorkStealingParams()
		}
		return scheduler.NewWorkStealingScheduler(base, params), nil
	default:
		return nil, fmt.Errorf("%w: runtime.strategy %q", stellaneerr.ErrConfigInvalid, cfg.Runtime.Strategy)
	}
}

func buildStore(cfg config.Config) (journal.Store, error) {
	switch cfg.Recovery.Backend {
	case "mmap", "":
		return journal.NewMmapStore(cfg.Recovery.Path, journal.RotationConfig{
			MaxFileSize:      cfg.Journal.MaxFileSize,
			MaxFiles:         cfg.Journal.MaxFiles,
			CompressOldFiles: cfg.Journal.CompressOldFiles,
			MaxFileAge:       cfg.Journal.MaxFileAge,
		})
	case "bolt":
		return journal.NewBoltStore(cfg.Recovery.Path)
	case "sql":
		return journal.NewSQLStore(cfg.Recovery.Path)
	default:
		return nil, fmt.Errorf("%w: recovery.backend %q", stellaneerr.ErrConfigInvalid, cfg.Recovery.Backend)
	}
}

func buildJournalConfig(cfg config.Config) journal.Config {
	var filter *journal.FilterConfig
	if len(cfg.Recovery.ExcludedMethods) > 0 || len(cfg.Recovery.ExcludedPathPatterns) > 0 {
		patterns := make([]*regexp.Regexp, 0, len(cfg.Recovery.ExcludedPathPatterns))
		for _, p := range cfg.Recovery.ExcludedPathPatterns {
			if re, err := regexp.Compile(p); err == nil {
				patterns = append(patterns, re)
			}
		}
		filter = &journal.FilterConfig{
			ExcludedMethods:      cfg.Recovery.ExcludedMethods,
			ExcludedPathPatterns: patterns,
		}
	}
	jc := journal.DefaultConfig()
	jc.MaxRecoveryAge = cfg.Recovery.MaxRecoveryAge
	jc.MaxAttempts = cfg.Recovery.MaxAttempts
	jc.IdempotencyWindow = cfg.Recovery.IdempotencyWindow
	jc.Filter = filter
	return jc
}

func buildRecoveryConfig(cfg config.Config) recovery.Config {
	rc := recovery.DefaultConfig()
	rc.MaxAttempts = cfg.Recovery.MaxAttempts
	rc.HookTimeout = cfg.Recovery.Timeout
	rc.ResumePendingOnCrash = cfg.Recovery.ResumePendingOnCrash
	rc.MaxRecoveriesPerSecond = cfg.Recovery.MaxRecoveriesPerSecond
	rc.NotifyEndpoints = cfg.Recovery.NotifyEndpoints
	rc.Backoff = recovery.BackoffConfig{
		InitialDelay: cfg.Recovery.RetryBackoff,
		Multiplier:   cfg.Recovery.BackoffMultiplier,
		MaxDelay:     cfg.Recovery.MaxRetryDelay,
	}
	return rc
}

// Start blocks the calling goroutine, running the event loop until Stop is
// called, the process receives SIGINT/SIGTERM, or ctx is cancelled.
// SIGPIPE is ignored from the call onward; its disposition is not
// restored when Start returns.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	if rt.running {
		rt.mu.Unlock()
		return ErrAlreadyRunning
	}
	rt.running = true
	rt.mu.Unlock()

	log := logger.WithComponent("runtime")

	signal.Ignore(syscall.SIGPIPE)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := rt.sched.Start(runCtx); err != nil {
		return err
	}

	if rt.recov != nil {
		if n, err := rt.recov.Replay(runCtx); err != nil {
			log.Warn().Err(err).Int("replayed", n).Msg("recovery replay completed with errors")
		} else {
			log.Info().Int("replayed", n).Msg("recovery replay complete")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.backend.Run(runCtx)
	}()

	select {
	case <-sigCh:
		log.Info().Msg("shutdown signal received")
		cancel()
	case <-runCtx.Done():
	case err := <-errCh:
		rt.running = false
		close(rt.stopped)
		return err
	}

	<-errCh
	rt.running = false
	close(rt.stopped)
	return nil
}

// Stop signals shutdown and awaits graceful completion, bounded by
// timeout. It never kills running tasks; it grants the loop and
// scheduler their grace period before returning regardless.
func (rt *Runtime) Stop(timeout time.Duration) error {
	rt.mu.Lock()
	running := rt.running
	rt.mu.Unlock()
	if !running {
		return nil
	}

	if rt.recov != nil {
		rt.recov.Stop()
	}

	loopErr := rt.backend.Stop(timeout)
	schedErr := rt.sched.Stop(timeout)

	if rt.jrnl != nil {
		if err := rt.jrnl.Close(); err != nil {
			logger.WithComponent("runtime").Warn().Err(err).Msg("journal close failed during stop")
		}
	}

	select {
	case <-rt.stopped:
	case <-time.After(timeout):
	}

	if loopErr != nil {
		return loopErr
	}
	return schedErr
}

// Restart stops the current subsystems and reinitializes from newCfg,
// guaranteeing no old in-memory state (queued tasks, timers, journal
// handles) leaks into the replacement instance.
func (rt *Runtime) Restart(newCfg config.Config, timeout time.Duration) error {
	if err := rt.Stop(timeout); err != nil {
		return err
	}
	next, err := Init(newCfg)
	if err != nil {
		return err
	}
	*rt = *next
	return nil
}

// Schedule submits t with PriorityNormal and no affinity preference.
func (rt *Runtime) Schedule(t *task.Task) error {
	return rt.ScheduleWithPriority(t, 50)
}

// ScheduleWithPriority submits t at the given priority tier.
func (rt *Runtime) ScheduleWithPriority(t *task.Task, priority uint8) error {
	return rt.sched.Schedule(&scheduler.SchedulableTask{
		Task:      t,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
		Affinity:  scheduler.Affinity{PreferredWorker: -1, NUMANode: -1, AllowMigration: true},
	})
}

// ScheduleOnWorker submits t with workerID as its preferred worker. Only
// the affinity strategy honors the preference, failing with
// AffinityUnsatisfiable if that worker is paused or absent and migration
// is disallowed; the other strategies place t by their own policy.
func (rt *Runtime) ScheduleOnWorker(t *task.Task, workerID int, allowMigration bool) error {
	return rt.sched.Schedule(&scheduler.SchedulableTask{
		Task:      t,
		Priority:  50,
		CreatedAt: time.Now().UTC(),
		Affinity:  scheduler.Affinity{PreferredWorker: workerID, NUMANode: -1, AllowMigration: allowMigration},
	})
}

// ScheduleWithHint submits t carrying full affinity placement hints.
func (rt *Runtime) ScheduleWithHint(t *task.Task, priority uint8, aff scheduler.Affinity) error {
	return rt.sched.Schedule(&scheduler.SchedulableTask{
		Task:      t,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
		Affinity:  aff,
	})
}

// EnableRequestRecovery is a no-op guard when recovery.enabled is false at
// Init time — recovery wiring happens once, at construction, since it
// needs the journal store to exist before any request can be appended.
func (rt *Runtime) EnableRequestRecovery() error {
	if rt.recov == nil {
		return fmt.Errorf("%w: recovery.enabled was false at Init", stellaneerr.ErrConfigInvalid)
	}
	return nil
}

// OnRecover registers the basic recovery hook.
func (rt *Runtime) OnRecover(h recovery.BasicHook) error {
	if rt.recov == nil {
		return fmt.Errorf("%w: recovery not enabled", stellaneerr.ErrConfigInvalid)
	}
	rt.recov.OnRecover(h)
	return nil
}

// OnRecoverAdvanced registers the advanced recovery hook.
func (rt *Runtime) OnRecoverAdvanced(h recovery.AdvancedHook) error {
	if rt.recov == nil {
		return fmt.Errorf("%w: recovery not enabled", stellaneerr.ErrConfigInvalid)
	}
	rt.recov.OnRecoverAdvanced(h)
	return nil
}

// OnTaskError registers the scheduler-wide task error handler, invoked
// whenever a task's terminal state is an error instead of a result.
func (rt *Runtime) OnTaskError(h func(taskID string, err error)) {
	rt.errBox.set(h)
}

// Journal exposes the underlying journal for handlers that need to append
// a request before dispatching it. Returns nil if recovery is disabled.
func (rt *Runtime) Journal() *journal.Journal {
	return rt.jrnl
}

// Recover exposes the recovery engine's single-entry recover path for
// normal-operation handler failures that want to re-enter recovery
// without waiting for the next Start's replay scan.
func (rt *Runtime) Recover(ctx context.Context, journalID string) error {
	if rt.recov == nil {
		return fmt.Errorf("%w: recovery not enabled", stellaneerr.ErrConfigInvalid)
	}
	return rt.recov.Recover(ctx, journalID)
}

// Running reports whether Start has been entered and the runtime has not
// yet been stopped.
func (rt *Runtime) Running() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.running
}

// Workers reports a point-in-time snapshot of every scheduler worker, for
// the admin surface.
func (rt *Runtime) Workers() []scheduler.WorkerStats {
	return rt.sched.Workers()
}

// PauseWorker stops a worker from picking up new tasks without affecting
// tasks already in flight on it.
func (rt *Runtime) PauseWorker(workerID int) error {
	return rt.sched.PauseWorker(workerID)
}

// ResumeWorker resumes a previously paused worker.
func (rt *Runtime) ResumeWorker(workerID int) error {
	return rt.sched.ResumeWorker(workerID)
}
