package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

type priorityItem struct {
	t     *SchedulableTask
	seq   uint64
	index int
}

type priorityItemHeap []*priorityItem

func (h priorityItemHeap) Len() int { return len(h) }
func (h priorityItemHeap) Less(i, j int) bool {
	if h[i].t.Priority != h[j].t.Priority {
		return h[i].t.Priority > h[j].t.Priority
	}
	return h[i].seq < h[j].seq
}
func (h priorityItemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *priorityItemHeap) Push(x any) {
	it := x.(*priorityItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *priorityItemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// PriorityScheduler places every task onto a single max-heap keyed by
// priority (0..255, higher first), FIFO among equal priorities.
type PriorityScheduler struct {
	*baseScheduler

	mu      sync.Mutex
	h       priorityItemHeap
	nextSeq uint64
}

func NewPriorityScheduler(cfg Config) *PriorityScheduler {
	cfg.StealingEnabled = false
	s := &PriorityScheduler{baseScheduler: newBase(cfg)}
	s.self = s
	return s
}

func (s *PriorityScheduler) Schedule(t *SchedulableTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkCapacity(s.cfg.QueueCap, s.h.Len()); err != nil {
		return err
	}
	t.CreatedAt = timeNowIfZero(t.CreatedAt)
	t.ScheduledAt = time.Now()
	s.nextSeq++
	heap.Push(&s.h, &priorityItem{t: t, seq: s.nextSeq})
	return nil
}

func (s *PriorityScheduler) ScheduleBatch(ts []*SchedulableTask) error {
	for _, t := range ts {
		if err := s.Schedule(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *PriorityScheduler) GetNextTask(workerID int) (*SchedulableTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h.Len() == 0 {
		return nil, false
	}
	it := heap.Pop(&s.h).(*priorityItem)
	return it.t, true
}

func (s *PriorityScheduler) TryStealWork(workerID int) (*SchedulableTask, bool) {
	return nil, false
}

func (s *PriorityScheduler) RebalanceLoad() {}
