package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/apexorch/apex/broker"
	"github.com/apexorch/apex/dag"
	"github.com/apexorch/apex/scheduler"
)

func TestDispatchSuccessRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewAgent("agent-1", []string{"gpt"}, 4))
	mb := broker.NewChannelBroker()
	breakers := scheduler.NewAgentCircuitBreakerRegistry(100, 5, time.Second, 16)
	orch := NewSwarmOrchestrator(reg, NewRoundRobinRouter(reg), mb, breakers, time.Second)

	task := dag.NewTask(uuid.New(), "t1", "agent-1", nil, 1, 1, nil)

	// simulate the remote agent side: pop the dispatch, reply success.
	go func() {
		raw, err := mb.BlockingPop(context.Background(), broker.QueueTasksPending, time.Second)
		if err != nil {
			return
		}
		var payload TaskPayload
		json.Unmarshal(raw, &payload)
		result, _ := json.Marshal(ResultPayload{Status: ResultCompleted, Output: "done", TokensUsed: 42, CostDollars: 0.02})
		mb.Publish(context.Background(), broker.ResultQueue(payload.TaskID), result)
	}()

	out, err := orch.Dispatch(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Output) != "done" {
		t.Fatalf("expected output 'done', got %q", out.Output)
	}
	if out.TokensUsed != 42 || out.CostUSD != 0.02 {
		t.Fatalf("expected usage to round-trip, got %+v", out)
	}
}

func TestDispatchNoAgentAvailable(t *testing.T) {
	reg := NewRegistry()
	mb := broker.NewChannelBroker()
	breakers := scheduler.NewAgentCircuitBreakerRegistry(100, 5, time.Second, 16)
	orch := NewSwarmOrchestrator(reg, NewRoundRobinRouter(reg), mb, breakers, 100*time.Millisecond)

	task := dag.NewTask(uuid.New(), "t1", "missing-agent", nil, 1, 1, nil)
	_, err := orch.Dispatch(context.Background(), task)
	if err == nil {
		t.Fatalf("expected error when no agent is registered")
	}
}

func TestDispatchReplyTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewAgent("agent-1", nil, 4))
	mb := broker.NewChannelBroker()
	breakers := scheduler.NewAgentCircuitBreakerRegistry(100, 5, time.Second, 16)
	orch := NewSwarmOrchestrator(reg, NewRoundRobinRouter(reg), mb, breakers, 50*time.Millisecond)

	task := dag.NewTask(uuid.New(), "t1", "agent-1", nil, 1, 1, nil)
	_, err := orch.Dispatch(context.Background(), task)
	if err == nil {
		t.Fatalf("expected timeout error when no reply ever arrives")
	}
}

func TestDeregisterExcludesFromRouting(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewAgent("agent-1", nil, 4))
	reg.Deregister("agent-1")

	if a := reg.SelectForModel(""); a != nil {
		t.Fatalf("expected deregistered agent to be excluded from selection")
	}
}
