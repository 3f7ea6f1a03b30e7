package loop

import (
	"container/heap"
	"sync"
	"time"
)

// TimerHandle identifies a timer created through a Backend. Cancel is
// observed lazily: it bumps the entry's generation rather than removing it
// from the heap, so cancellation never pays the O(n) deletion cost.
type TimerHandle struct {
	id  uint64
	gen uint64
}

type timerEntry struct {
	id       uint64
	gen      uint64
	fireAt   time.Time
	interval time.Duration // zero for one-shot
	cb       func()
	seq      uint64 // insertion order, for same-instant tie-break
	active   bool
	index    int
}

type timerHeapImpl []*timerEntry

func (h timerHeapImpl) Len() int { return len(h) }
func (h timerHeapImpl) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}
func (h timerHeapImpl) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeapImpl) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeapImpl) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerHeap is the loop's timer subsystem: a min-heap on fire time guarded
// by its own mutex, per the ownership table's "each owned by its own
// mutex" rule.
type timerHeap struct {
	mu      sync.Mutex
	entries map[uint64]*timerEntry
	heap    timerHeapImpl
	nextID  uint64
	nextSeq uint64
}

func newTimerHeap() *timerHeap {
	return &timerHeap{entries: make(map[uint64]*timerEntry)}
}

func (h *timerHeap) create(delay, interval time.Duration, cb func(), now time.Time) TimerHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.nextSeq++
	e := &timerEntry{
		id:       h.nextID,
		gen:      1,
		fireAt:   now.Add(delay),
		interval: interval,
		cb:       cb,
		seq:      h.nextSeq,
		active:   true,
	}
	h.entries[e.id] = e
	heap.Push(&h.heap, e)
	return TimerHandle{id: e.id, gen: e.gen}
}

// cancel bumps the entry's generation so the next pop discards it without
// a heap search.
func (h *timerHeap) cancel(handle TimerHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[handle.id]
	if !ok || e.gen != handle.gen {
		return
	}
	e.active = false
	e.gen++
	delete(h.entries, handle.id)
}

// sweep pops and fires every timer whose fire time is <= now, discarding
// stale (cancelled) entries, and reinserts repeating timers. It returns the
// number of callbacks invoked and the delay until the next pending timer
// (or zero if the heap is empty).
func (h *timerHeap) sweep(now time.Time) (fired int, nextDelay time.Duration, hasNext bool) {
	var due []*timerEntry

	h.mu.Lock()
	for h.heap.Len() > 0 {
		top := h.heap[0]
		if top.fireAt.After(now) {
			break
		}
		heap.Pop(&h.heap)
		if !top.active {
			continue
		}
		due = append(due, top)
		if top.interval > 0 {
			h.nextSeq++
			top.fireAt = now.Add(top.interval)
			top.seq = h.nextSeq
			heap.Push(&h.heap, top)
		} else {
			delete(h.entries, top.id)
		}
	}
	if h.heap.Len() > 0 {
		hasNext = true
		nextDelay = h.heap[0].fireAt.Sub(now)
		if nextDelay < 0 {
			nextDelay = 0
		}
	}
	h.mu.Unlock()

	for _, e := range due {
		e.cb()
	}
	return len(due), nextDelay, hasNext
}
