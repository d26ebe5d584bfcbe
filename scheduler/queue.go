package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// TaskID identifies a schedulable unit of work.
type TaskID string

// QueuedTask is an entry in the ready heap.
type QueuedTask struct {
	ID          TaskID
	BasePriority float64
	EnqueuedAt  time.Time
	Deadline    time.Time
	DeferCount  int

	index int // heap bookkeeping
}

// AgingConfig tunes the effective-priority formula:
//   effective = base + min(agingFactor*ageSeconds, maxAgeBoost) + deferBoost*deferCount
// Higher effective priority is popped first.
type AgingConfig struct {
	AgingFactor float64
	MaxAgeBoost float64
	DeferBoost  float64
}

func DefaultAgingConfig() AgingConfig {
	return AgingConfig{AgingFactor: 0.1, MaxAgeBoost: 5.0, DeferBoost: 5.0}
}

func (c AgingConfig) effectivePriority(t *QueuedTask, now time.Time) float64 {
	age := now.Sub(t.EnqueuedAt).Seconds()
	boost := c.AgingFactor * age
	if boost > c.MaxAgeBoost {
		boost = c.MaxAgeBoost
	}
	return t.BasePriority + boost + c.DeferBoost*float64(t.DeferCount)
}

// taskHeap is a container/heap.Interface max-heap on effective
// priority, with an earlier-deadline tiebreak, grounded on FluxForge
// scheduler/queue.go's TaskQueue.
type taskHeap struct {
	items []*QueuedTask
	aging AgingConfig
}

func (h *taskHeap) Len() int { return len(h.items) }

func (h *taskHeap) Less(i, j int) bool {
	now := time.Now()
	pi := h.aging.effectivePriority(h.items[i], now)
	pj := h.aging.effectivePriority(h.items[j], now)
	if pi != pj {
		return pi > pj // higher effective priority first
	}
	di, dj := h.items[i].Deadline, h.items[j].Deadline
	if !di.IsZero() && !dj.IsZero() && !di.Equal(dj) {
		return di.Before(dj)
	}
	return h.items[i].EnqueuedAt.Before(h.items[j].EnqueuedAt)
}

func (h *taskHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*QueuedTask)
	t.index = len(h.items)
	h.items = append(h.items, t)
}

func (h *taskHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	h.items = old[:n-1]
	return item
}

// ReadyQueue is a mutex-guarded priority queue of ready tasks, mirroring
// FluxForge's ThreadSafeQueue wrapper around its heap, plus a notify
// channel so NextTask can block efficiently instead of polling.
type ReadyQueue struct {
	mu     sync.Mutex
	h      *taskHeap
	notify chan struct{}
}

func NewReadyQueue(aging AgingConfig) *ReadyQueue {
	return &ReadyQueue{
		h:      &taskHeap{aging: aging},
		notify: make(chan struct{}, 1),
	}
}

func (q *ReadyQueue) Push(t *QueuedTask) {
	q.mu.Lock()
	heap.Push(q.h, t)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the highest-effective-priority task, or nil
// if empty.
func (q *ReadyQueue) Pop() *QueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(q.h).(*QueuedTask)
}

func (q *ReadyQueue) Peek() *QueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return nil
	}
	return q.h.items[0]
}

func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// WaitForNonEmpty blocks until the queue has been pushed to, or the
// given channel is closed/fires.
func (q *ReadyQueue) WaitForNonEmpty(done <-chan struct{}) {
	if q.Len() > 0 {
		return
	}
	select {
	case <-q.notify:
	case <-done:
	}
}

// Reheap recomputes ordering in place (invoked periodically by the
// scheduler to apply aging, mirroring FluxForge's ticker-driven
// poller/worker loop).
func (q *ReadyQueue) Reheap() {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Init(q.h)
}
