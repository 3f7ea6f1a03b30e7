package scheduler

import "time"

// AffinityScheduler places by (preferred worker, else named group's
// least-loaded member, else NUMA group's least-loaded member, else
// fallback queue). Workers dispatch from their own queue first, then the
// shared fallback. Cross-worker stealing is optional and off by default:
// stealing a task out of its preferred worker's queue would violate the
// very affinity the policy exists to honor, so TryStealWork only ever
// pulls from the fallback queue, and only when explicitly enabled.
type AffinityScheduler struct {
	*baseScheduler

	queues     []fifoQueue
	fallback   fifoQueue
	groups     map[string][]int
	numaGroups map[int][]int
}

// NewAffinityScheduler takes the named-group membership map; NUMA group
// membership is derived from each Worker's NUMANode field once assigned
// (see AffinityScheduler.AssignNUMA).
func NewAffinityScheduler(cfg Config, groups map[string][]int) *AffinityScheduler {
	s := &AffinityScheduler{baseScheduler: newBase(cfg), groups: groups}
	s.self = s
	s.queues = make([]fifoQueue, len(s.workers))
	s.numaGroups = make(map[int][]int)
	return s
}

// AssignNUMA records which NUMA node each worker is bound to and rebuilds
// the NUMA group index used for group-affinity placement.
func (s *AffinityScheduler) AssignNUMA(workerID, node int) {
	if w := s.workerByID(workerID); w != nil {
		w.NUMANode = node
	}
	s.numaGroups = make(map[int][]int)
	for _, w := range s.workers {
		if w.NUMANode >= 0 {
			s.numaGroups[w.NUMANode] = append(s.numaGroups[w.NUMANode], w.ID)
		}
	}
}

func (s *AffinityScheduler) Schedule(t *SchedulableTask) error {
	t.CreatedAt = timeNowIfZero(t.CreatedAt)
	t.ScheduledAt = time.Now()

	aff := t.Affinity

	if aff.PreferredWorker >= 0 {
		w := s.workerByID(aff.PreferredWorker)
		if w == nil || w.Paused() {
			if !aff.AllowMigration {
				return ErrAffinityUnsatisfiable
			}
			return s.scheduleFallback(t)
		}
		return s.scheduleOn(aff.PreferredWorker, t)
	}

	if aff.Group != "" {
		if members, ok := s.groups[aff.Group]; ok && len(members) > 0 {
			return s.scheduleOn(s.leastLoadedOf(members), t)
		}
	}

	if aff.NUMANode >= 0 {
		if members, ok := s.numaGroups[aff.NUMANode]; ok && len(members) > 0 {
			return s.scheduleOn(s.leastLoadedOf(members), t)
		}
	}

	return s.scheduleFallback(t)
}

func (s *AffinityScheduler) scheduleOn(workerID int, t *SchedulableTask) error {
	q := &s.queues[workerID]
	if err := checkCapacity(s.cfg.QueueCap, q.len()); err != nil {
		return err
	}
	q.pushBack(t)
	return nil
}

func (s *AffinityScheduler) scheduleFallback(t *SchedulableTask) error {
	if err := checkCapacity(s.cfg.QueueCap, s.fallback.len()); err != nil {
		return err
	}
	s.fallback.pushBack(t)
	return nil
}

func (s *AffinityScheduler) leastLoadedOf(workerIDs []int) int {
	best := workerIDs[0]
	bestLoad := s.workerByID(best).CurrentTaskCount() + int64(s.queues[best].len())
	for _, id := range workerIDs[1:] {
		load := s.workerByID(id).CurrentTaskCount() + int64(s.queues[id].len())
		if load < bestLoad {
			best, bestLoad = id, load
		}
	}
	return best
}

func (s *AffinityScheduler) ScheduleBatch(ts []*SchedulableTask) error {
	for _, t := range ts {
		if err := s.Schedule(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *AffinityScheduler) GetNextTask(workerID int) (*SchedulableTask, bool) {
	if workerID < 0 || workerID >= len(s.queues) {
		return nil, false
	}
	if t, ok := s.queues[workerID].popFront(); ok {
		return t, true
	}
	return s.fallback.popFront()
}

func (s *AffinityScheduler) TryStealWork(workerID int) (*SchedulableTask, bool) {
	if !s.cfg.StealingEnabled {
		return nil, false
	}
	return s.fallback.popFront()
}

func (s *AffinityScheduler) RebalanceLoad() {}
