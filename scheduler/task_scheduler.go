package scheduler

import (
	"sync"
	"time"
)

// Lock acquisition order across TaskScheduler's internal maps, to
// avoid deadlock when a single operation must touch more than one:
//
//	running -> tasks -> ready_queue -> waiting -> dependents
//
// Every method below acquires locks in this order; none holds a later
// lock while acquiring an earlier one.

// taskState tracks bookkeeping TaskScheduler needs beyond what sits in
// the ready-queue entry.
type taskState struct {
	id        TaskID
	deps      map[TaskID]struct{} // unsatisfied dependencies
	dependents []TaskID            // tasks that depend on this one
	basePriority float64
	deadline  time.Time
}

// TaskScheduler tracks dependency-gated readiness on top of a
// ReadyQueue: a task enters "waiting" until all its dependencies
// complete, then moves to the ready heap.
type TaskScheduler struct {
	runningMu sync.Mutex
	running   map[TaskID]struct{}

	tasksMu sync.Mutex
	tasks   map[TaskID]*taskState

	ready *ReadyQueue

	waitingMu sync.Mutex
	waiting   map[TaskID]struct{}

	dependentsMu sync.Mutex
	dependents   map[TaskID][]TaskID // id -> tasks waiting on id

	aging AgingConfig
}

func NewTaskScheduler(aging AgingConfig) *TaskScheduler {
	return &TaskScheduler{
		running:    make(map[TaskID]struct{}),
		tasks:      make(map[TaskID]*taskState),
		ready:      NewReadyQueue(aging),
		waiting:    make(map[TaskID]struct{}),
		dependents: make(map[TaskID][]TaskID),
		aging:      aging,
	}
}

// Submit registers a task with its dependency set. Tasks with no
// unsatisfied dependency become immediately ready.
func (s *TaskScheduler) Submit(id TaskID, basePriority float64, deadline time.Time, deps []TaskID) {
	st := &taskState{id: id, basePriority: basePriority, deadline: deadline, deps: make(map[TaskID]struct{}, len(deps))}
	for _, d := range deps {
		st.deps[d] = struct{}{}
	}

	s.tasksMu.Lock()
	s.tasks[id] = st
	s.tasksMu.Unlock()

	if len(deps) == 0 {
		s.enqueueReady(id, basePriority, deadline, 0)
		return
	}

	s.waitingMu.Lock()
	s.waiting[id] = struct{}{}
	s.waitingMu.Unlock()

	s.dependentsMu.Lock()
	for _, d := range deps {
		s.dependents[d] = append(s.dependents[d], id)
	}
	s.dependentsMu.Unlock()
}

func (s *TaskScheduler) enqueueReady(id TaskID, basePriority float64, deadline time.Time, deferCount int) {
	s.ready.Push(&QueuedTask{
		ID:           id,
		BasePriority: basePriority,
		EnqueuedAt:   time.Now(),
		Deadline:     deadline,
		DeferCount:   deferCount,
	})
}

// NextTask pops the highest-priority ready task and marks it running.
// Returns nil if the queue is empty.
func (s *TaskScheduler) NextTask() *QueuedTask {
	qt := s.ready.Pop()
	if qt == nil {
		return nil
	}
	s.runningMu.Lock()
	s.running[qt.ID] = struct{}{}
	s.runningMu.Unlock()
	return qt
}

// Complete marks a task done, removes it from running, and promotes
// any dependents whose dependency set is now fully satisfied.
func (s *TaskScheduler) Complete(id TaskID) {
	s.runningMu.Lock()
	delete(s.running, id)
	s.runningMu.Unlock()

	s.promoteDependents(id)
}

// Fail marks a task failed and, if cancelDependents is set, cascades
// cancellation transitively over the reverse-dependency index (BFS),
// returning the set of cancelled task ids.
func (s *TaskScheduler) Fail(id TaskID, cancelDependents bool) []TaskID {
	s.runningMu.Lock()
	delete(s.running, id)
	s.runningMu.Unlock()

	if !cancelDependents {
		return nil
	}

	var cancelled []TaskID
	queue := []TaskID{id}
	seen := map[TaskID]struct{}{id: {}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		s.dependentsMu.Lock()
		kids := append([]TaskID(nil), s.dependents[cur]...)
		delete(s.dependents, cur)
		s.dependentsMu.Unlock()

		for _, k := range kids {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}

			s.waitingMu.Lock()
			delete(s.waiting, k)
			s.waitingMu.Unlock()

			s.tasksMu.Lock()
			delete(s.tasks, k)
			s.tasksMu.Unlock()

			cancelled = append(cancelled, k)
			queue = append(queue, k)
		}
	}
	return cancelled
}

// Defer returns a task to the ready queue with its defer count
// incremented, applying the defer-boost term of the effective-priority
// formula so repeatedly-deferred tasks eventually win out.
func (s *TaskScheduler) Defer(qt *QueuedTask) {
	s.runningMu.Lock()
	delete(s.running, qt.ID)
	s.runningMu.Unlock()
	s.enqueueReady(qt.ID, qt.BasePriority, qt.Deadline, qt.DeferCount+1)
}

func (s *TaskScheduler) promoteDependents(id TaskID) {
	s.dependentsMu.Lock()
	kids := append([]TaskID(nil), s.dependents[id]...)
	delete(s.dependents, id)
	s.dependentsMu.Unlock()

	for _, k := range kids {
		s.tasksMu.Lock()
		st, ok := s.tasks[k]
		if ok {
			delete(st.deps, id)
		}
		ready := ok && len(st.deps) == 0
		s.tasksMu.Unlock()

		if ready {
			s.waitingMu.Lock()
			delete(s.waiting, k)
			s.waitingMu.Unlock()
			s.enqueueReady(k, st.basePriority, st.deadline, 0)
		}
	}
}

// RecalculatePriorities re-heaps the ready queue in place so aging
// boosts take effect; callers invoke this from a ticker, mirroring
// FluxForge's poller/worker ticker loop.
func (s *TaskScheduler) RecalculatePriorities() {
	s.ready.Reheap()
}

func (s *TaskScheduler) ReadyLen() int   { return s.ready.Len() }
func (s *TaskScheduler) WaitingLen() int { s.waitingMu.Lock(); defer s.waitingMu.Unlock(); return len(s.waiting) }
func (s *TaskScheduler) RunningLen() int { s.runningMu.Lock(); defer s.runningMu.Unlock(); return len(s.running) }
