package scheduler

import (
	"testing"
	"time"
)

func TestTaskSchedulerImmediatelyReadyNoDeps(t *testing.T) {
	s := NewTaskScheduler(DefaultAgingConfig())
	s.Submit("t1", 5, time.Time{}, nil)
	qt := s.NextTask()
	if qt == nil || qt.ID != "t1" {
		t.Fatalf("expected t1 to be immediately ready, got %+v", qt)
	}
}

func TestTaskSchedulerWaitsForDependency(t *testing.T) {
	s := NewTaskScheduler(DefaultAgingConfig())
	s.Submit("parent", 5, time.Time{}, nil)
	s.Submit("child", 5, time.Time{}, []TaskID{"parent"})

	if s.WaitingLen() != 1 {
		t.Fatalf("expected child to be waiting, WaitingLen=%d", s.WaitingLen())
	}

	parent := s.NextTask()
	if parent.ID != "parent" {
		t.Fatalf("expected parent to be ready first")
	}
	if s.ReadyLen() != 0 {
		t.Fatalf("expected child still waiting before parent completes")
	}

	s.Complete("parent")
	if s.WaitingLen() != 0 {
		t.Fatalf("expected child promoted out of waiting after parent completes")
	}
	child := s.NextTask()
	if child == nil || child.ID != "child" {
		t.Fatalf("expected child to become ready after parent completion, got %+v", child)
	}
}

func TestTaskSchedulerPriorityOrdering(t *testing.T) {
	s := NewTaskScheduler(AgingConfig{}) // aging disabled for a deterministic ordering test
	s.Submit("low", 1, time.Time{}, nil)
	s.Submit("high", 9, time.Time{}, nil)
	s.Submit("mid", 5, time.Time{}, nil)

	first := s.NextTask()
	second := s.NextTask()
	third := s.NextTask()

	if first.ID != "high" || second.ID != "mid" || third.ID != "low" {
		t.Fatalf("expected high,mid,low order, got %s,%s,%s", first.ID, second.ID, third.ID)
	}
}

func TestTaskSchedulerFailCascadesCancellation(t *testing.T) {
	s := NewTaskScheduler(DefaultAgingConfig())
	s.Submit("root", 5, time.Time{}, nil)
	s.Submit("mid", 5, time.Time{}, []TaskID{"root"})
	s.Submit("leaf", 5, time.Time{}, []TaskID{"mid"})

	s.NextTask() // root running

	cancelled := s.Fail("root", true)
	if len(cancelled) != 2 {
		t.Fatalf("expected both mid and leaf cancelled transitively, got %v", cancelled)
	}
}

func TestTaskSchedulerDeferAppliesBoost(t *testing.T) {
	s := NewTaskScheduler(AgingConfig{DeferBoost: 5})
	s.Submit("a", 1, time.Time{}, nil)
	s.Submit("b", 1, time.Time{}, nil)

	qt := s.NextTask() // pops one of them, say "a"
	s.Defer(qt)         // re-enqueue "a" with deferCount=1, boosting its priority above "b"

	first := s.NextTask()
	if first.ID != qt.ID {
		t.Fatalf("expected deferred task to win re-election via defer boost")
	}
}
