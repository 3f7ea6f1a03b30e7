// Package recovery implements the replay of journaled requests that
// crashed (or otherwise failed) mid-handler: on startup it scans the
// journal for recoverable entries and re-dispatches each through a
// user-registered hook with bounded, backed-off retries; during normal
// operation, failed requests are routed through the same path.
package recovery

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sukryu/stellane/internal/journal"
	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/scheduler"
	"github.com/sukryu/stellane/internal/stellaneerr"
	"github.com/sukryu/stellane/internal/task"
)

// alwaysPreservedHeaders are carried over from the original request
// regardless of configuration.
var alwaysPreservedHeaders = []string{"Authorization", "X-User-ID", "X-Session-ID", "X-Trace-ID"}

// Config tunes the engine's replay behavior.
type Config struct {
	MaxAttempts uint32
	HookTimeout time.Duration

	FallbackToBasic bool

	// ResumePendingOnCrash gates whether entries observed in Pending state
	// (handler never started before the crash) are replayed alongside
	// InFlight ones. Open Question resolved in DESIGN.md: both crash
	// states are recoverable, but the choice is configurable per backend
	// deployment rather than hard-coded.
	ResumePendingOnCrash bool

	Backoff  BackoffConfig
	Priority PriorityConfig

	// PreservedHeaders is carried in addition to alwaysPreservedHeaders.
	PreservedHeaders []string
	RecoverySource   string

	MaxRecoveriesPerSecond int

	NotifyEndpoints []string
	NotifyTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		HookTimeout:     30 * time.Second,
		FallbackToBasic: true,
		Backoff:         DefaultBackoffConfig(),
		RecoverySource:  "recovery-engine",
		NotifyTimeout:   5 * time.Second,
	}
}

// Engine wires the journal's recoverable-entry iterator to the scheduler,
// turning each surviving entry into a recovery task that invokes the
// registered hook and drives mark_completed/mark_failed + backed-off
// retry per the replay algorithm.
type Engine struct {
	cfg       Config
	journal   *journal.Journal
	scheduler scheduler.Scheduler
	limiter   *tokenBucket
	notifier  *notifier

	hookMu       sync.RWMutex
	basicHook    BasicHook
	advancedHook AdvancedHook
	errHandler   ErrorHandler
	outcomeCB    func(Outcome)

	mu      sync.Mutex
	closed  bool
	pending map[string]*time.Timer
}

func New(cfg Config, j *journal.Journal, sched scheduler.Scheduler) *Engine {
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = 30 * time.Second
	}
	if cfg.Backoff.isZero() {
		cfg.Backoff = DefaultBackoffConfig()
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	return &Engine{
		cfg:       cfg,
		journal:   j,
		scheduler: sched,
		limiter:   newTokenBucket(cfg.MaxRecoveriesPerSecond),
		notifier:  newNotifier(cfg.NotifyEndpoints, cfg.NotifyTimeout),
		pending:   make(map[string]*time.Timer),
	}
}

// OnRecover registers the basic recovery hook.
func (eng *Engine) OnRecover(h BasicHook) {
	eng.hookMu.Lock()
	eng.basicHook = h
	eng.hookMu.Unlock()
}

// OnRecoverAdvanced registers the advanced recovery hook.
func (eng *Engine) OnRecoverAdvanced(h AdvancedHook) {
	eng.hookMu.Lock()
	eng.advancedHook = h
	eng.hookMu.Unlock()
}

// OnError registers the error handler invoked when a hook itself fails.
func (eng *Engine) OnError(h ErrorHandler) {
	eng.hookMu.Lock()
	eng.errHandler = h
	eng.hookMu.Unlock()
}

// OnOutcome registers the callback invoked with every terminal recovery
// outcome, in addition to any configured HTTP notification endpoints.
func (eng *Engine) OnOutcome(cb func(Outcome)) {
	eng.hookMu.Lock()
	eng.outcomeCB = cb
	eng.hookMu.Unlock()
}

// Replay scans the journal's recoverable entries and enqueues a recovery
// task for each one eligible under ResumePendingOnCrash. It is intended
// to run once, before Runtime resumes user traffic.
func (eng *Engine) Replay(ctx context.Context) (int, error) {
	count := 0
	var firstErr error
	log := logger.WithRecovery("replay")

	err := eng.journal.IterRecoverable(func(e *journal.Entry) bool {
		if e.State == journal.StatePending && !eng.cfg.ResumePendingOnCrash {
			return true
		}
		if qerr := eng.enqueue(ctx, e); qerr != nil {
			log.Warn().Str("journal_id", e.ID).Err(qerr).Msg("failed to enqueue recovery task")
			if firstErr == nil {
				firstErr = qerr
			}
			return true
		}
		count++
		return true
	})
	if err != nil {
		return count, err
	}
	return count, firstErr
}

// Recover enqueues a single entry for replay — the path normal-operation
// handler failures use to re-enter recovery without waiting for the next
// startup scan.
func (eng *Engine) Recover(ctx context.Context, id string) error {
	e, ok, err := eng.journal.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return journal.ErrNotFound
	}
	return eng.enqueue(ctx, e)
}

func (eng *Engine) enqueue(ctx context.Context, e *journal.Entry) error {
	if err := eng.waitForBudget(ctx); err != nil {
		return err
	}
	st := &scheduler.SchedulableTask{
		Task:      task.New("recovery:"+e.ID, eng.recoveryFn(e)),
		Priority:  eng.cfg.Priority.resolve(e),
		CreatedAt: time.Now().UTC(),
		Affinity:  scheduler.Affinity{PreferredWorker: -1, NUMANode: -1, AllowMigration: true},
	}
	return eng.scheduler.Schedule(st)
}

func (eng *Engine) waitForBudget(ctx context.Context) error {
	if eng.limiter == nil {
		return nil
	}
	for {
		if eng.limiter.allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// recoveryFn is the body of the scheduled recovery task: rebuild the
// request context, invoke the hook bounded by hook_timeout, and drive
// the success/failure outcome per the replay algorithm.
func (eng *Engine) recoveryFn(e *journal.Entry) task.Func {
	return func(ctx context.Context) (any, error) {
		attempt := e.Attempts + 1
		req := &RecoveredRequest{
			JournalID: e.ID,
			Method:    e.Method,
			Path:      e.Path,
			Headers:   eng.rebuildHeaders(e, attempt),
			Body:      e.Body,
			Attempt:   attempt,
		}
		meta := Metadata{
			Priority:   eng.cfg.Priority.resolve(e),
			EnqueuedAt: e.EnqueueTime,
			Source:     eng.cfg.RecoverySource,
		}

		hctx := ctx
		if eng.cfg.HookTimeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(ctx, eng.cfg.HookTimeout)
			defer cancel()
		}

		hookErr := eng.invokeHook(hctx, req, meta)
		log := logger.WithRecovery("attempt")

		if hookErr == nil {
			if err := eng.journal.MarkCompleted(e.ID); err != nil {
				log.Warn().Str("journal_id", e.ID).Err(err).Msg("mark_completed failed after successful recovery")
			}
			eng.emit(Outcome{
				JournalID: e.ID, Method: e.Method, Path: e.Path,
				Attempt: attempt, Status: OutcomeSuccess, At: time.Now().UTC(),
			})
			return nil, nil
		}

		eng.hookMu.RLock()
		errHandler := eng.errHandler
		eng.hookMu.RUnlock()
		if errHandler != nil {
			errHandler(req, hookErr)
		}

		if err := eng.journal.MarkFailed(e.ID, hookErr.Error()); err != nil {
			log.Warn().Str("journal_id", e.ID).Err(err).Msg("mark_failed failed")
		}

		if attempt >= eng.cfg.MaxAttempts {
			eng.emit(Outcome{
				JournalID: e.ID, Method: e.Method, Path: e.Path,
				Attempt: attempt, Status: OutcomeFailed, Error: hookErr.Error(), At: time.Now().UTC(),
			})
			return nil, stellaneerr.ErrRecoveryExhausted
		}

		delay := eng.cfg.Backoff.delayForAttempt(attempt)
		eng.scheduleRetry(e.ID, delay)
		return nil, hookErr
	}
}

func (eng *Engine) invokeHook(ctx context.Context, req *RecoveredRequest, meta Metadata) error {
	eng.hookMu.RLock()
	adv, basic := eng.advancedHook, eng.basicHook
	eng.hookMu.RUnlock()

	if adv != nil {
		if err := adv(ctx, req, meta); err != nil {
			if eng.cfg.FallbackToBasic && basic != nil {
				return basic(ctx, req)
			}
			return err
		}
		return nil
	}
	if basic != nil {
		return basic(ctx, req)
	}
	return stellaneerr.ErrRecoveryHookMissing
}

func (eng *Engine) rebuildHeaders(e *journal.Entry, attempt uint32) map[string]string {
	out := make(map[string]string, len(alwaysPreservedHeaders)+len(eng.cfg.PreservedHeaders)+2)
	preserve := func(name string) {
		if v, ok := e.Headers[name]; ok {
			out[name] = v
		}
	}
	for _, h := range alwaysPreservedHeaders {
		preserve(h)
	}
	for _, h := range eng.cfg.PreservedHeaders {
		preserve(h)
	}
	out["X-Recovery-Attempt"] = strconv.FormatUint(uint64(attempt), 10)
	out["X-Recovery-Source"] = eng.cfg.RecoverySource
	return out
}

func (eng *Engine) emit(o Outcome) {
	eng.hookMu.RLock()
	cb := eng.outcomeCB
	eng.hookMu.RUnlock()
	if cb != nil {
		cb(o)
	}
	eng.notifier.notify(o)
}

// scheduleRetry re-dispatches entry id after delay: it re-reads the
// entry's current state (it may have completed via some other path in
// the meantime), transitions it back to in-flight, and re-enqueues.
func (eng *Engine) scheduleRetry(id string, delay time.Duration) {
	eng.mu.Lock()
	if eng.closed {
		eng.mu.Unlock()
		return
	}
	timer := time.AfterFunc(delay, func() {
		eng.mu.Lock()
		delete(eng.pending, id)
		closed := eng.closed
		eng.mu.Unlock()
		if closed {
			return
		}

		cur, ok, err := eng.journal.Get(id)
		if err != nil || !ok || cur.State == journal.StateCompleted {
			return
		}
		if err := eng.journal.MarkInFlight(id); err != nil {
			return
		}
		if err := eng.enqueue(context.Background(), cur); err != nil {
			logger.WithRecovery("retry").Warn().Str("journal_id", id).Err(err).Msg("failed to re-enqueue recovery retry")
		}
	})
	eng.pending[id] = timer
	eng.mu.Unlock()
}

// Stop cancels every pending retry timer. In-flight recovery tasks
// already handed to the scheduler are left to run to completion.
func (eng *Engine) Stop() {
	eng.mu.Lock()
	eng.closed = true
	timers := eng.pending
	eng.pending = make(map[string]*time.Timer)
	eng.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}
