package scheduler

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sukryu/stellane/internal/logger"
)

// WorkStealingParams carries the policy's tuning knobs from the
// work-stealing configuration group.
type WorkStealingParams struct {
	StealThreshold    int
	MaxStealAttempts  int
	MaxTasksPerSteal  int
	MinStealInterval  time.Duration
	MaxStealInterval  time.Duration
	RebalanceInterval time.Duration
}

func DefaultWorkStealingParams() WorkStealingParams {
	return WorkStealingParams{
		StealThreshold:    1,
		MaxStealAttempts:  2,
		MaxTasksPerSteal:  4,
		MinStealInterval:  time.Millisecond,
		MaxStealInterval:  50 * time.Millisecond,
		RebalanceInterval: time.Second,
	}
}

// WorkStealingScheduler gives each worker its own deque; new tasks go to
// the least-loaded worker, workers dispatch pop-front locally, and an
// idle worker steals from a uniform-random victim's back when the victim
// is over steal_threshold. The steal_rate_adjustment factor named in the
// source is cosmetic and never consumed there, so it is intentionally
// omitted here too — only the adaptive min/max interval bounds are real.
type WorkStealingScheduler struct {
	*baseScheduler
	params WorkStealingParams

	deques []*stealDeque

	curIntervalNanos atomic.Int64
	lastAttemptNanos []atomic.Int64

	rebalanceWG sync.WaitGroup
}

func NewWorkStealingScheduler(cfg Config, params WorkStealingParams) *WorkStealingScheduler {
	cfg.StealingEnabled = true
	s := &WorkStealingScheduler{baseScheduler: newBase(cfg), params: params}
	s.self = s
	s.deques = make([]*stealDeque, len(s.workers))
	for i := range s.deques {
		s.deques[i] = &stealDeque{}
	}
	s.lastAttemptNanos = make([]atomic.Int64, len(s.workers))
	s.curIntervalNanos.Store(int64(params.MinStealInterval))
	return s
}

func (s *WorkStealingScheduler) Start(ctx context.Context) error {
	if err := s.baseScheduler.Start(ctx); err != nil {
		return err
	}
	s.rebalanceWG.Add(1)
	go s.rebalanceLoop(ctx)
	return nil
}

func (s *WorkStealingScheduler) Stop(timeout time.Duration) error {
	err := s.baseScheduler.Stop(timeout)
	s.rebalanceWG.Wait()
	return err
}

func (s *WorkStealingScheduler) rebalanceLoop(ctx context.Context) {
	defer s.rebalanceWG.Done()
	ticker := time.NewTicker(s.params.RebalanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RebalanceLoad()
		}
	}
}

func (s *WorkStealingScheduler) Schedule(t *SchedulableTask) error {
	idx := s.leastLoadedDeque()
	if err := checkCapacity(s.cfg.QueueCap, s.deques[idx].len()); err != nil {
		return err
	}
	t.CreatedAt = timeNowIfZero(t.CreatedAt)
	t.ScheduledAt = time.Now()
	s.deques[idx].pushBack(t)
	return nil
}

func (s *WorkStealingScheduler) ScheduleBatch(ts []*SchedulableTask) error {
	for _, t := range ts {
		if err := s.Schedule(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *WorkStealingScheduler) leastLoadedDeque() int {
	best := 0
	bestLen := s.deques[0].len()
	for i, d := range s.deques[1:] {
		if l := d.len(); l < bestLen {
			best, bestLen = i+1, l
		}
	}
	return best
}

func (s *WorkStealingScheduler) GetNextTask(workerID int) (*SchedulableTask, bool) {
	if workerID < 0 || workerID >= len(s.deques) {
		return nil, false
	}
	return s.deques[workerID].popFront()
}

// TryStealWork implements the steal algorithm: uniform-random victim
// selection, at most max_steal_attempts victims, try-lock only, steal
// count = min(max_tasks_per_steal, victim_len - steal_threshold). The
// first stolen task is returned for immediate execution; any remainder
// goes onto the stealer's own deque.
func (s *WorkStealingScheduler) TryStealWork(workerID int) (*SchedulableTask, bool) {
	n := len(s.deques)
	if n < 2 {
		return nil, false
	}
	if !s.intervalElapsed(workerID) {
		return nil, false
	}

	attempts := s.params.MaxStealAttempts
	if attempts > n-1 {
		attempts = n - 1
	}
	tried := make(map[int]bool, attempts)

	for i := 0; i < attempts; i++ {
		victimID := rand.Intn(n)
		if victimID == workerID || tried[victimID] {
			continue
		}
		tried[victimID] = true

		victim := s.deques[victimID]
		vlen := victim.len()
		if vlen <= s.params.StealThreshold {
			s.adjustInterval(false)
			continue
		}

		count := s.params.MaxTasksPerSteal
		if max := vlen - s.params.StealThreshold; count > max {
			count = max
		}
		stolen := victim.tryStealBack(count)
		if len(stolen) == 0 {
			continue
		}

		s.adjustInterval(true)
		if len(stolen) > 1 {
			own := s.deques[workerID]
			for _, t := range stolen[1:] {
				own.pushBack(t)
			}
		}
		return stolen[0], true
	}
	s.adjustInterval(false)
	return nil, false
}

func (s *WorkStealingScheduler) intervalElapsed(workerID int) bool {
	if workerID < 0 || workerID >= len(s.lastAttemptNanos) {
		return true
	}
	now := time.Now().UnixNano()
	last := s.lastAttemptNanos[workerID].Load()
	interval := s.curIntervalNanos.Load()
	if now-last < interval {
		return false
	}
	s.lastAttemptNanos[workerID].Store(now)
	return true
}

// adjustInterval widens the inter-steal interval toward max_steal_interval
// on repeated failed steals (load is scarce, back off) and narrows it
// toward min_steal_interval on success (load is plentiful, steal eagerly).
func (s *WorkStealingScheduler) adjustInterval(success bool) {
	const alpha = 0.3 // EWMA smoothing factor
	cur := float64(s.curIntervalNanos.Load())
	min := float64(s.params.MinStealInterval)
	max := float64(s.params.MaxStealInterval)
	if max <= min {
		return
	}

	var target float64
	if success {
		target = min
	} else {
		target = max
	}
	next := cur + alpha*(target-cur)
	next = math.Max(min, math.Min(max, next))
	s.curIntervalNanos.Store(int64(next))
}

// RebalanceLoad bulk-moves excess tasks from any worker whose queue
// exceeds 2x the mean onto the tail of under-mean workers, restoring the
// spread. Unlike TryStealWork this runs periodically and is allowed to
// block briefly for each deque's lock rather than try-lock only.
func (s *WorkStealingScheduler) RebalanceLoad() {
	n := len(s.deques)
	if n < 2 {
		return
	}

	lens := make([]int, n)
	total := 0
	for i, d := range s.deques {
		lens[i] = d.len()
		total += lens[i]
	}
	mean := float64(total) / float64(n)
	if mean == 0 {
		return
	}

	var overloaded, underloaded []int
	for i, l := range lens {
		if float64(l) > 2*mean {
			overloaded = append(overloaded, i)
		} else if float64(l) < mean {
			underloaded = append(underloaded, i)
		}
	}
	if len(overloaded) == 0 || len(underloaded) == 0 {
		return
	}

	log := logger.WithComponent("scheduler")
	for _, oi := range overloaded {
		excess := lens[oi] - int(mean)
		if excess <= 0 {
			continue
		}
		moved := s.deques[oi].drainBack(excess)
		if len(moved) == 0 {
			continue
		}
		for i, t := range moved {
			target := underloaded[i%len(underloaded)]
			s.deques[target].pushBack(t)
		}
		log.Debug().Int("from_worker", oi).Int("moved", len(moved)).Msg("rebalanced work-stealing load")
	}
}
