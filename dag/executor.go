package dag

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apexorch/apex/contracts"
	"github.com/apexorch/apex/scheduler"
)

// DispatchResult is what a Dispatcher returns for a dispatched task: the
// raw output plus the resource usage the remote worker reported for it,
// which DagExecutor records against the task's own contract and the
// DAG-wide usage tracker. Grounded on original_source/dag/executor.rs's
// TaskResult{output, tokens_used, cost}.
type DispatchResult struct {
	Output     []byte
	TokensUsed uint64
	CostUSD    float64
}

// Dispatcher sends a task to an agent and waits for its result. It is
// implemented by orchestrator.SwarmOrchestrator; DagExecutor depends
// only on this interface to avoid an import cycle between dag and
// orchestrator.
type Dispatcher interface {
	Dispatch(ctx context.Context, t *Task) (DispatchResult, error)
}

// EventKind tags a DagExecutor lifecycle event.
type EventKind string

const (
	EventDagStarted    EventKind = "dag_started"
	EventTaskStarted   EventKind = "task_started"
	EventTaskCompleted EventKind = "task_completed"
	EventTaskFailed    EventKind = "task_failed"
	EventTaskCancelled EventKind = "task_cancelled"
	EventDagCompleted  EventKind = "dag_completed"
)

// Event is emitted on every lifecycle transition DagExecutor drives.
// The statistics fields are only populated on EventDagCompleted.
type Event struct {
	Kind      EventKind
	DAGID     uuid.UUID
	TaskID    uuid.UUID
	At        time.Time
	Err       string
	WillRetry bool

	TasksCompleted int
	TasksFailed    int
	TasksCancelled int
	TotalTokens    uint64
	TotalCost      float64
}

// ExecutorConfig tunes DagExecutor's loop.
type ExecutorConfig struct {
	PollInterval    time.Duration
	EventBufferSize int
	TaskTimeout     time.Duration
	CascadeCancel   bool

	// DefaultLimits is the resource-limits template new per-task
	// AgentContracts are created from, before being validated against
	// the parent contract's remaining budget.
	DefaultLimits contracts.ResourceLimits
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PollInterval:    50 * time.Millisecond,
		EventBufferSize: 256,
		TaskTimeout:     5 * time.Minute,
		CascadeCancel:   true,
		DefaultLimits: contracts.ResourceLimits{
			MaxTokens:   100_000,
			MaxCostUSD:  5.0,
			MaxAPICalls: 50,
		},
	}
}

// DagExecutor drives a single DAG to completion: on every tick it pulls
// ready tasks from a priority-ordered TaskScheduler, computes available
// worker slots, creates a child resource contract per dispatched task,
// and fans out dispatch calls through the bounded worker pool. Grounded
// on FluxForge scheduler.go's ticker-driven worker()/processNextTask
// loop, with task ordering delegated to scheduler.TaskScheduler instead
// of an ad hoc scan, per original_source/dag/scheduler.rs.
type DagExecutor struct {
	dag        *DAG
	dispatcher Dispatcher
	pool       *scheduler.WorkerPool
	enforcer   *contracts.ContractEnforcer
	breakers   *scheduler.AgentCircuitBreakerRegistry
	tracker    *contracts.UsageTracker
	sched      *scheduler.TaskScheduler
	parentCtr  *contracts.AgentContract
	cfg        ExecutorConfig

	events chan Event

	mu        sync.Mutex
	cancelled bool
	running   map[scheduler.TaskID]*scheduler.QueuedTask
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewDagExecutor(
	d *DAG,
	dispatcher Dispatcher,
	pool *scheduler.WorkerPool,
	enforcer *contracts.ContractEnforcer,
	breakers *scheduler.AgentCircuitBreakerRegistry,
	parentContract *contracts.AgentContract,
	cfg ExecutorConfig,
) *DagExecutor {
	sched := scheduler.NewTaskScheduler(scheduler.DefaultAgingConfig())
	for _, t := range d.Tasks() {
		deps := make([]scheduler.TaskID, 0, len(t.DependsOn))
		for _, depID := range t.DependsOn {
			deps = append(deps, scheduler.TaskID(depID.String()))
		}
		sched.Submit(scheduler.TaskID(t.ID.String()), t.Priority, time.Time{}, deps)
	}

	return &DagExecutor{
		dag:        d,
		dispatcher: dispatcher,
		pool:       pool,
		enforcer:   enforcer,
		breakers:   breakers,
		tracker:    contracts.NewUsageTracker(contracts.DefaultTrackerConfig()),
		sched:      sched,
		parentCtr:  parentContract,
		cfg:        cfg,
		events:     make(chan Event, cfg.EventBufferSize),
		running:    make(map[scheduler.TaskID]*scheduler.QueuedTask),
		stopCh:     make(chan struct{}),
	}
}

// Events returns the channel lifecycle events are published on.
// Callers should drain it continuously; a full buffer causes events to
// be dropped with a logged warning rather than blocking the loop.
func (e *DagExecutor) Events() <-chan Event { return e.events }

// Tracker exposes the DAG-wide usage tracker accumulated from every
// completed task's reported consumption.
func (e *DagExecutor) Tracker() *contracts.UsageTracker { return e.tracker }

func (e *DagExecutor) emit(ev Event) {
	ev.At = time.Now()
	ev.DAGID = e.dag.ID
	select {
	case e.events <- ev:
	default:
		log.Printf("WARN: dag executor event buffer full, dropping %s for dag=%s", ev.Kind, e.dag.ID)
	}
}

// Run drives the DAG until all tasks reach a terminal state or ctx is
// cancelled.
func (e *DagExecutor) Run(ctx context.Context) error {
	e.emit(Event{Kind: EventDagStarted})

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Cancel()
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case <-ticker.C:
			e.tick(ctx)
			if e.dag.AllTerminal() {
				e.dag.SetStatus(DAGCompleted)
				stats := e.dag.Stats()
				e.emit(Event{
					Kind:           EventDagCompleted,
					TasksCompleted: stats.TasksCompleted,
					TasksFailed:    stats.TasksFailed,
					TasksCancelled: stats.TasksCancelled,
					TotalTokens:    stats.TotalTokens,
					TotalCost:      stats.TotalCost,
				})
				return nil
			}
		}
	}
}

func (e *DagExecutor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("CRITICAL: dag executor tick panic recovered: %v", r)
		}
	}()

	e.mu.Lock()
	cancelled := e.cancelled
	e.mu.Unlock()
	if cancelled {
		return
	}

	slots := e.dag.MaxConcurrency - e.dag.RunningCount()
	for i := 0; i < slots; i++ {
		qt := e.sched.NextTask()
		if qt == nil {
			break
		}
		tid, err := uuid.Parse(string(qt.ID))
		if err != nil {
			log.Printf("WARN: dag executor dropped unparseable task id %q: %v", qt.ID, err)
			continue
		}
		t, ok := e.dag.Task(tid)
		if !ok || t.Status != TaskPending {
			// Stale scheduler entry (e.g. cancelled out-of-band); drop it
			// without occupying a dispatch slot.
			e.sched.Complete(qt.ID)
			continue
		}
		e.trackRunning(qt)
		e.dispatchOne(ctx, t, qt)
	}
}

func (e *DagExecutor) trackRunning(qt *scheduler.QueuedTask) {
	e.mu.Lock()
	e.running[qt.ID] = qt
	e.mu.Unlock()
}

func (e *DagExecutor) removeRunning(id scheduler.TaskID) {
	e.mu.Lock()
	delete(e.running, id)
	e.mu.Unlock()
}

func (e *DagExecutor) dispatchOne(ctx context.Context, t *Task, qt *scheduler.QueuedTask) {
	if e.breakers != nil && !e.breakers.CanExecute(t.AgentID) {
		t.Status = TaskFailed
		t.FailureError = "circuit open for agent"
		e.removeRunning(qt.ID)
		e.emit(Event{Kind: EventTaskFailed, TaskID: t.ID, Err: t.FailureError})
		e.cancelCascaded(e.sched.Fail(qt.ID, e.cfg.CascadeCancel))
		return
	}

	limits := e.cfg.DefaultLimits
	limits.MaxDuration = e.cfg.TaskTimeout
	contract := contracts.NewAgentContract(t.AgentID, limits, &e.parentCtr.ID)

	if e.enforcer != nil {
		if err := e.enforcer.ValidateChildContract(contract, e.parentCtr); err != nil {
			t.Status = TaskFailed
			t.FailureError = err.Error()
			e.removeRunning(qt.ID)
			e.emit(Event{Kind: EventTaskFailed, TaskID: t.ID, Err: err.Error()})
			e.cancelCascaded(e.sched.Fail(qt.ID, e.cfg.CascadeCancel))
			return
		}
	}
	t.Contract = contract

	now := time.Now()
	t.Status = TaskRunning
	t.StartedAt = &now
	t.Attempt++

	e.emit(Event{Kind: EventTaskStarted, TaskID: t.ID})

	err := e.pool.Spawn(ctx, func(ctx context.Context) error {
		taskCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.TaskTimeout > 0 {
			taskCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
			defer cancel()
		}
		result, derr := e.dispatcher.Dispatch(taskCtx, t)
		e.completeOrRetry(t, qt, result, derr)
		return derr
	})
	if err != nil {
		e.completeOrRetry(t, qt, DispatchResult{}, err)
	}
}

func (e *DagExecutor) completeOrRetry(t *Task, qt *scheduler.QueuedTask, result DispatchResult, err error) {
	now := time.Now()
	if err == nil {
		t.Status = TaskCompleted
		t.Complete(result.Output, result.TokensUsed, result.CostUSD)
		t.CompletedAt = &now
		if e.breakers != nil {
			e.breakers.RecordSuccess(t.AgentID)
		}
		if t.Contract != nil && e.enforcer != nil {
			if verr := e.enforcer.RecordUsage(t.Contract, result.TokensUsed, result.CostUSD, 1); verr != nil {
				log.Printf("WARN: task %s exceeded its contract on completion: %v", t.ID, verr)
			}
		}
		e.tracker.RecordTokens(result.TokensUsed)
		e.tracker.RecordCost(result.CostUSD)
		e.tracker.RecordAPICall()
		e.removeRunning(qt.ID)
		e.sched.Complete(qt.ID)
		e.emit(Event{Kind: EventTaskCompleted, TaskID: t.ID})
		return
	}

	if e.breakers != nil {
		e.breakers.RecordFailure(t.AgentID)
	}

	if t.Attempt < t.MaxAttempts {
		t.Status = TaskPending // prepare_retry: go back to pending for re-pickup
		e.removeRunning(qt.ID)
		e.sched.Defer(qt)
		e.emit(Event{Kind: EventTaskFailed, TaskID: t.ID, Err: err.Error(), WillRetry: true})
		return
	}

	t.Status = TaskFailed
	t.FailureError = err.Error()
	t.CompletedAt = &now
	e.removeRunning(qt.ID)
	e.emit(Event{Kind: EventTaskFailed, TaskID: t.ID, Err: err.Error()})
	e.cancelCascaded(e.sched.Fail(qt.ID, e.cfg.CascadeCancel))
}

// cancelCascaded marks every task id the scheduler's reverse-dependency
// BFS returned as Cancelled and emits one TaskCancelled event each.
func (e *DagExecutor) cancelCascaded(ids []scheduler.TaskID) {
	for _, id := range ids {
		tid, err := uuid.Parse(string(id))
		if err != nil {
			continue
		}
		t, ok := e.dag.Task(tid)
		if !ok {
			continue
		}
		switch t.Status {
		case TaskCompleted, TaskFailed, TaskCancelled:
			continue
		}
		t.Status = TaskCancelled
		e.emit(Event{Kind: EventTaskCancelled, TaskID: t.ID})
	}
}

// Cancel marks every Pending/Ready task Cancelled. Already-running
// dispatches are left to complete; their results are discarded because
// the task is no longer in a relevant state when they land.
func (e *DagExecutor) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()

	for _, t := range e.dag.Tasks() {
		if t.Status == TaskPending || t.Status == TaskReady {
			t.Status = TaskCancelled
			e.emit(Event{Kind: EventTaskCancelled, TaskID: t.ID})
		}
	}
	e.dag.SetStatus(DAGCancelled)
	e.stopOnce.Do(func() { close(e.stopCh) })
}
