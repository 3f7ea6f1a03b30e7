// Package journal implements the append-only durable log of mutating
// request attempts that the recovery engine replays after a crash.
package journal

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sukryu/stellane/internal/logger"
)

// SyncMode controls how durably Append must land before it returns.
type SyncMode int

const (
	// SyncStrong durably persists before Append returns.
	SyncStrong SyncMode = iota
	// SyncFast lets durability lag by Config.SyncInterval.
	SyncFast
)

type Config struct {
	MaxRecoveryAge time.Duration
	MaxAttempts    uint32

	IdempotencyHeader     string
	IdempotencyWindow     time.Duration
	MaxIdempotencyEntries int

	Filter *FilterConfig

	SyncMode     SyncMode
	SyncInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRecoveryAge:        24 * time.Hour,
		MaxAttempts:           5,
		IdempotencyHeader:     "Idempotency-Key",
		IdempotencyWindow:     10 * time.Minute,
		MaxIdempotencyEntries: 10000,
		SyncMode:              SyncStrong,
		SyncInterval:          time.Second,
	}
}

// AppendRequest is the caller-supplied shape of a request about to be
// dispatched; Journal fills in id, state, enqueue time, and attempts.
type AppendRequest struct {
	Method      string
	Path        string
	Headers     map[string]string
	ContentType string
	Body        []byte
}

// Journal is the durable record of in-flight mutating requests. It owns
// filtering, idempotency dedup, and the entry state machine; the
// underlying Store only persists and scans decoded entries.
type Journal struct {
	cfg   Config
	store Store
	idem  *idempotencyLRU

	mu     sync.Mutex
	closed bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, store Store) *Journal {
	j := &Journal{
		cfg:   cfg,
		store: store,
		idem:  newIdempotencyLRU(cfg.MaxIdempotencyEntries, cfg.IdempotencyWindow),
	}
	if cfg.SyncMode == SyncFast && cfg.SyncInterval > 0 {
		j.stopCh = make(chan struct{})
		j.wg.Add(1)
		go j.syncLoop()
	}
	return j
}

func (j *Journal) syncLoop() {
	defer j.wg.Done()
	t := time.NewTicker(j.cfg.SyncInterval)
	defer t.Stop()
	log := logger.WithJournal("sync-loop")
	for {
		select {
		case <-j.stopCh:
			return
		case <-t.C:
			if err := j.store.Sync(); err != nil {
				log.Warn().Err(err).Msg("periodic journal sync failed")
			}
		}
	}
}

// Append records req as a new Pending entry. If an idempotency header is
// configured and present, and a non-expired entry for its value already
// exists, Append returns the existing id instead of creating a new one.
// A request rejected by the filter policy returns ErrFiltered, and the
// caller's request must not be dispatched.
func (j *Journal) Append(req AppendRequest) (string, error) {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return "", ErrClosed
	}
	j.mu.Unlock()

	now := time.Now().UTC()

	var idemKey string
	if j.cfg.IdempotencyHeader != "" {
		idemKey = req.Headers[j.cfg.IdempotencyHeader]
	}
	if idemKey != "" {
		if id, ok := j.idem.lookup(idemKey, now); ok {
			return id, nil
		}
	}

	e := &Entry{
		ID:          uuid.New().String(),
		State:       StatePending,
		Attempts:    0,
		EnqueueTime: now,
		Method:      req.Method,
		Path:        req.Path,
		Headers:     req.Headers,
		Body:        req.Body,
	}

	if j.cfg.Filter.excluded(e, req.ContentType) {
		return "", ErrFiltered
	}

	if err := j.store.Append(e); err != nil {
		return "", err
	}

	if idemKey != "" {
		j.idem.record(idemKey, e.ID, now)
	}

	if j.cfg.SyncMode == SyncStrong {
		if err := j.store.Sync(); err != nil {
			return "", err
		}
	}

	return e.ID, nil
}

// Get returns the current entry for id, if present.
func (j *Journal) Get(id string) (*Entry, bool, error) { return j.store.Get(id) }

func (j *Journal) transition(id string, to State) error {
	cur, ok, err := j.store.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !validTransition(cur.State, to) {
		return ErrInvalidTransition
	}
	return j.store.UpdateState(id, to, cur.Attempts)
}

func (j *Journal) MarkInFlight(id string) error { return j.transition(id, StateInFlight) }

// MarkCompleted transitions id to Completed. Since duplicate idempotent
// submissions share one id, the caller need not resolve fan-out itself:
// every observer awaiting that id sees the same terminal state.
func (j *Journal) MarkCompleted(id string) error { return j.transition(id, StateCompleted) }

func (j *Journal) MarkFailed(id, reason string) error {
	cur, ok, err := j.store.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !validTransition(cur.State, StateFailed) {
		return ErrInvalidTransition
	}
	return j.store.UpdateState(id, StateFailed, cur.Attempts+1)
}

// IterRecoverable yields every entry whose state is not Completed, whose
// age is within MaxRecoveryAge, and whose attempt count is below
// MaxAttempts — the recovery engine's replay candidate set.
func (j *Journal) IterRecoverable(fn func(*Entry) bool) error {
	now := time.Now().UTC()
	return j.store.ScanRecoverable(func(e *Entry) bool {
		if now.Sub(e.EnqueueTime) > j.cfg.MaxRecoveryAge {
			return true
		}
		if e.Attempts >= j.cfg.MaxAttempts {
			return true
		}
		return fn(e)
	})
}

// IterDeadLettered yields every entry IterRecoverable would skip for having
// exhausted its recovery budget (age or attempt count) rather than for
// already being Completed — the admin surface's dead-letter view.
func (j *Journal) IterDeadLettered(fn func(*Entry) bool) error {
	now := time.Now().UTC()
	return j.store.ScanRecoverable(func(e *Entry) bool {
		exhausted := now.Sub(e.EnqueueTime) > j.cfg.MaxRecoveryAge || e.Attempts >= j.cfg.MaxAttempts
		if !exhausted {
			return true
		}
		return fn(e)
	})
}

func (j *Journal) Rotate() error { return j.store.Rotate() }

func (j *Journal) Compact(olderThan time.Time) error { return j.store.Compact(olderThan) }

func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	if j.stopCh != nil {
		close(j.stopCh)
		j.wg.Wait()
	}
	return j.store.Close()
}
