// Package dag models a directed acyclic graph of tasks and executes it
// against a bounded worker pool, dispatching each ready task out to an
// agent via the orchestrator/broker layer and reacting to its result.
package dag

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apexorch/apex/contracts"
)

// TaskStatus is a task's lifecycle state within a DAG.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is one unit of work in a DAG.
type Task struct {
	ID           uuid.UUID
	DAGID        uuid.UUID
	Name         string
	AgentID      string
	Input        json.RawMessage
	DependsOn    []uuid.UUID
	Priority     float64
	MaxAttempts  int
	Attempt      int
	Status       TaskStatus
	Contract     *contracts.AgentContract
	TokensUsed   uint64
	Cost         float64
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Result       []byte
	FailureError string

	// TraceID/SpanID carry distributed-tracing correlation ids into the
	// dispatch payload when the caller supplies them; both are optional.
	TraceID string
	SpanID  string
}

func NewTask(dagID uuid.UUID, name, agentID string, input json.RawMessage, priority float64, maxAttempts int, deps []uuid.UUID) *Task {
	return &Task{
		ID:          uuid.New(),
		DAGID:       dagID,
		Name:        name,
		AgentID:     agentID,
		Input:       input,
		DependsOn:   deps,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Status:      TaskPending,
		CreatedAt:   time.Now(),
	}
}

// Complete records a successful dispatch result against the task,
// mirroring original_source/dag/executor.rs's task.complete(output,
// tokens_used, cost).
func (t *Task) Complete(output []byte, tokensUsed uint64, cost float64) {
	t.Result = output
	t.TokensUsed = tokensUsed
	t.Cost = cost
}

// DAGStatus is the overall graph's lifecycle state.
type DAGStatus string

const (
	DAGRunning   DAGStatus = "running"
	DAGCompleted DAGStatus = "completed"
	DAGFailed    DAGStatus = "failed"
	DAGCancelled DAGStatus = "cancelled"
)

// DAG is a mutex-guarded collection of tasks plus graph-level state.
type DAG struct {
	ID          uuid.UUID
	Name        string
	MaxConcurrency int
	CreatedAt   time.Time

	mu     sync.RWMutex
	tasks  map[uuid.UUID]*Task
	status DAGStatus
}

func NewDAG(name string, maxConcurrency int) *DAG {
	return &DAG{
		ID:             uuid.New(),
		Name:           name,
		MaxConcurrency: maxConcurrency,
		CreatedAt:      time.Now(),
		tasks:          make(map[uuid.UUID]*Task),
		status:         DAGRunning,
	}
}

func (d *DAG) AddTask(t *Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks[t.ID] = t
}

func (d *DAG) Task(id uuid.UUID) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tasks[id]
	return t, ok
}

func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		out = append(out, t)
	}
	return out
}

func (d *DAG) Status() DAGStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *DAG) SetStatus(s DAGStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = s
}

// ReadyTasks returns Pending tasks whose dependencies are all
// Completed, excluding any already Running/terminal. DagExecutor no
// longer drives dispatch order from this method directly — that is
// scheduler.TaskScheduler's job — but it remains useful for
// introspection (status endpoints, tests) independent of scheduler
// state.
func (d *DAG) ReadyTasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ready []*Task
	for _, t := range d.tasks {
		if t.Status != TaskPending {
			continue
		}
		if d.dependenciesSatisfiedLocked(t) {
			ready = append(ready, t)
		}
	}
	return ready
}

func (d *DAG) dependenciesSatisfiedLocked(t *Task) bool {
	for _, depID := range t.DependsOn {
		dep, ok := d.tasks[depID]
		if !ok || dep.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// RunningCount returns the number of tasks currently Running.
func (d *DAG) RunningCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, t := range d.tasks {
		if t.Status == TaskRunning {
			n++
		}
	}
	return n
}

// Stats summarizes a DAG's task outcomes, used to populate DagCompleted
// events.
type Stats struct {
	TasksCompleted int
	TasksFailed    int
	TasksCancelled int
	TotalTokens    uint64
	TotalCost      float64
}

func (d *DAG) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var s Stats
	for _, t := range d.tasks {
		switch t.Status {
		case TaskCompleted:
			s.TasksCompleted++
			s.TotalTokens += t.TokensUsed
			s.TotalCost += t.Cost
		case TaskFailed:
			s.TasksFailed++
		case TaskCancelled:
			s.TasksCancelled++
		}
	}
	return s
}

// AllTerminal reports whether every task has reached a terminal state.
func (d *DAG) AllTerminal() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.tasks {
		switch t.Status {
		case TaskCompleted, TaskFailed, TaskCancelled:
		default:
			return false
		}
	}
	return true
}
