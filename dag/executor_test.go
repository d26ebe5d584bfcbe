package dag

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/apexorch/apex/contracts"
	"github.com/apexorch/apex/scheduler"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, t *Task) (DispatchResult, error) {
	f.mu.Lock()
	shouldFail := f.fail[t.Name]
	f.mu.Unlock()
	if shouldFail {
		return DispatchResult{}, fmt.Errorf("simulated failure for %s", t.Name)
	}
	return DispatchResult{Output: []byte("ok"), TokensUsed: 10, CostUSD: 0.01}, nil
}

func rootContract() *contracts.AgentContract {
	return contracts.NewAgentContract("root", contracts.ResourceLimits{
		MaxTokens: 1_000_000, MaxCostUSD: 1000, MaxAPICalls: 10000, MaxDuration: time.Hour,
	}, nil)
}

func TestDagExecutorRunsToCompletion(t *testing.T) {
	d := NewDAG("test", 4)
	a := NewTask(d.ID, "a", "agent-1", nil, 5, 1, nil)
	b := NewTask(d.ID, "b", "agent-1", nil, 5, 1, []uuid.UUID{a.ID})
	d.AddTask(a)
	d.AddTask(b)

	exec := NewDagExecutor(d, &fakeDispatcher{}, scheduler.NewWorkerPool(4), nil, nil, rootContract(), DefaultExecutorConfig())

	go func() {
		for range exec.Events() {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exec.Run(ctx); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if d.Status() != DAGCompleted {
		t.Fatalf("expected dag completed, got %s", d.Status())
	}
	at, _ := d.Task(a.ID)
	bt, _ := d.Task(b.ID)
	if at.Status != TaskCompleted || bt.Status != TaskCompleted {
		t.Fatalf("expected both tasks completed, got a=%s b=%s", at.Status, bt.Status)
	}
}

func drainEvents(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestDagExecutorEmitsStartedAndCompletedWithStats(t *testing.T) {
	d := NewDAG("test", 4)
	a := NewTask(d.ID, "a", "agent-1", nil, 5, 1, nil)
	d.AddTask(a)

	exec := NewDagExecutor(d, &fakeDispatcher{}, scheduler.NewWorkerPool(4), nil, nil, rootContract(), DefaultExecutorConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exec.Run(ctx); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	// Run emits synchronously into a buffered channel and only returns
	// after the DagCompleted send, so draining without blocking here is
	// safe: every event is already queued.
	events := drainEvents(exec.Events())
	if len(events) == 0 || events[0].Kind != EventDagStarted {
		t.Fatalf("expected first event to be DagStarted, got %+v", events)
	}
	last := events[len(events)-1]
	if last.Kind != EventDagCompleted {
		t.Fatalf("expected last event to be DagCompleted, got %+v", last)
	}
	if last.TasksCompleted != 1 || last.TotalTokens != 10 || last.TotalCost != 0.01 {
		t.Fatalf("expected DagCompleted to carry per-task usage stats, got %+v", last)
	}
	if exec.Tracker().Snapshot().Tokens != 10 {
		t.Fatalf("expected usage tracker to record dispatched usage, got %+v", exec.Tracker().Snapshot())
	}
}

type orderRecordingDispatcher struct {
	mu    sync.Mutex
	order []string
}

func (o *orderRecordingDispatcher) Dispatch(ctx context.Context, t *Task) (DispatchResult, error) {
	o.mu.Lock()
	o.order = append(o.order, t.Name)
	o.mu.Unlock()
	return DispatchResult{Output: []byte("ok")}, nil
}

// Independent tasks with no shared dependency should dispatch in
// descending base-priority order, since DagExecutor now pulls ready
// work from a *scheduler.TaskScheduler priority heap instead of
// scanning DAG.ReadyTasks()'s unordered map.
func TestDagExecutorDispatchesInPriorityOrder(t *testing.T) {
	d := NewDAG("test", 1) // one slot: forces strict sequential ordering
	low := NewTask(d.ID, "low", "agent-1", nil, 1, 1, nil)
	high := NewTask(d.ID, "high", "agent-1", nil, 10, 1, nil)
	mid := NewTask(d.ID, "mid", "agent-1", nil, 5, 1, nil)
	d.AddTask(low)
	d.AddTask(high)
	d.AddTask(mid)

	disp := &orderRecordingDispatcher{}
	exec := NewDagExecutor(d, disp, scheduler.NewWorkerPool(1), nil, nil, rootContract(), DefaultExecutorConfig())

	go func() {
		for range exec.Events() {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exec.Run(ctx); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	disp.mu.Lock()
	order := append([]string(nil), disp.order...)
	disp.mu.Unlock()
	want := []string{"high", "mid", "low"}
	if len(order) != len(want) {
		t.Fatalf("expected %d dispatches, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected priority-ordered dispatch %v, got %v", want, order)
		}
	}
}

func TestDagExecutorCascadesCancelOnFailure(t *testing.T) {
	d := NewDAG("test", 4)
	a := NewTask(d.ID, "a", "agent-1", nil, 5, 1, nil)
	b := NewTask(d.ID, "b", "agent-1", nil, 5, 1, []uuid.UUID{a.ID})
	d.AddTask(a)
	d.AddTask(b)

	disp := &fakeDispatcher{fail: map[string]bool{"a": true}}
	exec := NewDagExecutor(d, disp, scheduler.NewWorkerPool(4), nil, nil, rootContract(), DefaultExecutorConfig())

	go func() {
		for range exec.Events() {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	exec.Run(ctx)

	at, _ := d.Task(a.ID)
	bt, _ := d.Task(b.ID)
	if at.Status != TaskFailed {
		t.Fatalf("expected a failed, got %s", at.Status)
	}
	if bt.Status != TaskCancelled {
		t.Fatalf("expected b cancelled transitively, got %s", bt.Status)
	}
}
