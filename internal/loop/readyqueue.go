package loop

import (
	"container/heap"
	"sync"

	"github.com/sukryu/stellane/internal/task"
)

type readyItem struct {
	t        *task.Task
	priority int
	seq      uint64
	index    int
}

type readyItemHeap []*readyItem

func (h readyItemHeap) Len() int { return len(h) }
func (h readyItemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // max-heap on priority
	}
	return h[i].seq < h[j].seq // FIFO among equal priority
}
func (h readyItemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *readyItemHeap) Push(x any) {
	it := x.(*readyItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *readyItemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// readyQueue is the loop's own task ready-queue: a priority max-heap with
// FIFO tie-break, separate from (and upstream of) the scheduler's
// per-worker queues — this one feeds tasks posted directly on the loop
// itself rather than dispatched to a worker pool.
type readyQueue struct {
	mu      sync.Mutex
	h       readyItemHeap
	nextSeq uint64
}

func newReadyQueue() *readyQueue {
	return &readyQueue{}
}

func (q *readyQueue) push(t *task.Task, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextSeq++
	heap.Push(&q.h, &readyItem{t: t, priority: priority, seq: q.nextSeq})
}

func (q *readyQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// drain pops up to max ready tasks, highest priority first, FIFO among
// equals.
func (q *readyQueue) drain(max int) []*task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.h.Len()
	if n > max {
		n = max
	}
	out := make([]*task.Task, 0, n)
	for i := 0; i < n; i++ {
		it := heap.Pop(&q.h).(*readyItem)
		out = append(out, it.t)
	}
	return out
}
