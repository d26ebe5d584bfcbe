package orchestrator

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/apexorch/apex/apexerr"
	"github.com/apexorch/apex/broker"
	"github.com/apexorch/apex/contracts"
	"github.com/apexorch/apex/dag"
	"github.com/apexorch/apex/scheduler"
)

// ContractLimits is the resource-budget slice of a TaskPayload, mirroring
// original_source/orchestrator/mod.rs's RedisContractPayload.
type ContractLimits struct {
	TokenLimit       uint64  `json:"token_limit"`
	CostLimit        float64 `json:"cost_limit"`
	APICallLimit     uint64  `json:"api_call_limit"`
	TimeLimitSeconds uint64  `json:"time_limit_seconds"`
}

func contractLimitsFrom(l contracts.ResourceLimits) ContractLimits {
	return ContractLimits{
		TokenLimit:       l.MaxTokens,
		CostLimit:        l.MaxCostUSD,
		APICallLimit:     l.MaxAPICalls,
		TimeLimitSeconds: uint64(l.MaxDuration.Seconds()),
	}
}

// TraceContext forwards distributed-tracing correlation ids to the
// remote worker, mirroring RedisTraceContext.
type TraceContext struct {
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// TaskPayload is the wire format published to the broker's pending
// queue. Agents consume it, execute the referenced task, and publish a
// ResultPayload back on the per-task result queue. Field shape is fixed
// by original_source/orchestrator/mod.rs's RedisTaskPayload — agent
// workers on the other side of the broker depend on these exact names.
type TaskPayload struct {
	TaskID       string          `json:"task_id"`
	DagID        string          `json:"dag_id"`
	Input        json.RawMessage `json:"input"`
	Contract     ContractLimits  `json:"contract"`
	TraceContext *TraceContext   `json:"trace_context,omitempty"`
}

// ResultStatus tags how a dispatched task concluded.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
)

// ResultPayload is the wire format an agent publishes back to the
// result rendezvous queue, mirroring RedisTaskResult.
type ResultPayload struct {
	Output      string          `json:"output"`
	TokensUsed  uint64          `json:"tokens_used"`
	CostDollars float64         `json:"cost_dollars"`
	Status      ResultStatus    `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
	Reasoning   string          `json:"reasoning,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// SwarmOrchestrator dispatches DAG tasks to remote agents through a
// MessageBroker and blocks on the per-task reply queue until a result
// arrives or the timeout elapses, recording success/failure against
// the per-agent circuit breaker registry on every path. Grounded on
// FluxForge jobs.go's Dispatcher (send-then-await-async-result
// framing), re-expressed over the broker protocol instead of HTTP.
type SwarmOrchestrator struct {
	registry     *Registry
	router       ModelRouter
	mb           broker.MessageBroker
	breakers     *scheduler.AgentCircuitBreakerRegistry
	limiter      scheduler.RateLimiter
	replyTimeout time.Duration
}

func NewSwarmOrchestrator(registry *Registry, router ModelRouter, mb broker.MessageBroker, breakers *scheduler.AgentCircuitBreakerRegistry, replyTimeout time.Duration) *SwarmOrchestrator {
	return &SwarmOrchestrator{
		registry:     registry,
		router:       router,
		mb:           mb,
		breakers:     breakers,
		limiter:      scheduler.NewAgentRateLimiter(50, 10),
		replyTimeout: replyTimeout,
	}
}

// WithRateLimiter overrides the default per-agent dispatch rate
// limiter (50/s, burst 10).
func (o *SwarmOrchestrator) WithRateLimiter(l scheduler.RateLimiter) *SwarmOrchestrator {
	o.limiter = l
	return o
}

// Dispatch implements dag.Dispatcher: publish the task, acquire a load
// slot on the selected agent, and block for its reply.
func (o *SwarmOrchestrator) Dispatch(ctx context.Context, t *dag.Task) (dag.DispatchResult, error) {
	agent := o.registry.SelectForModel("")
	if t.AgentID != "" {
		if a, ok := o.registry.Get(t.AgentID); ok {
			agent = a
		}
	}
	if agent == nil {
		return dag.DispatchResult{}, apexerr.New(apexerr.NotFound, "no available agent for task").WithContext("task_id", t.ID.String())
	}
	if o.limiter != nil && !o.limiter.Allow(agent.ID) {
		return dag.DispatchResult{}, apexerr.New(apexerr.ResourceExhausted, "agent dispatch rate exceeded").WithContext("agent_id", agent.ID)
	}
	if !agent.acquireSlot() {
		return dag.DispatchResult{}, apexerr.New(apexerr.AgentExecutionFailure, "agent at capacity").WithContext("agent_id", agent.ID)
	}
	defer agent.releaseSlot()

	var limits contracts.ResourceLimits
	if t.Contract != nil {
		limits = t.Contract.Limits
	}
	var trace *TraceContext
	if t.TraceID != "" || t.SpanID != "" {
		trace = &TraceContext{TraceID: t.TraceID, SpanID: t.SpanID}
	}

	payload, err := json.Marshal(TaskPayload{
		TaskID:       t.ID.String(),
		DagID:        t.DAGID.String(),
		Input:        t.Input,
		Contract:     contractLimitsFrom(limits),
		TraceContext: trace,
	})
	if err != nil {
		return dag.DispatchResult{}, apexerr.Wrap(apexerr.Serialization, "failed to marshal task payload", err)
	}

	agent.totalDispatched.Add(1)
	if err := o.mb.Publish(ctx, broker.QueueTasksPending, payload); err != nil {
		agent.totalFailed.Add(1)
		return dag.DispatchResult{}, err
	}

	raw, err := o.mb.BlockingPop(ctx, broker.ResultQueue(t.ID.String()), o.replyTimeout)
	if err != nil {
		agent.totalFailed.Add(1)
		return dag.DispatchResult{}, err
	}

	var result ResultPayload
	if err := json.Unmarshal(raw, &result); err != nil {
		agent.totalFailed.Add(1)
		return dag.DispatchResult{}, apexerr.Wrap(apexerr.Serialization, "failed to unmarshal result payload", err)
	}

	if result.Status != ResultCompleted {
		agent.totalFailed.Add(1)
		logDispatchDecision(t.ID.String(), agent.ID, "failed")
		return dag.DispatchResult{}, apexerr.New(apexerr.AgentExecutionFailure, result.Error).WithContext("task_id", t.ID.String())
	}
	logDispatchDecision(t.ID.String(), agent.ID, "success")
	return dag.DispatchResult{
		Output:     []byte(result.Output),
		TokensUsed: result.TokensUsed,
		CostUSD:    result.CostDollars,
	}, nil
}

// logDispatchDecision writes a single structured log line per dispatch
// decision, mirroring FluxForge scheduler.go's logDecision helper.
func logDispatchDecision(taskID, agentID, outcome string) {
	entry := map[string]any{
		"task_id": taskID,
		"agent_id": agentID,
		"outcome": outcome,
		"at":      time.Now().Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(entry)
	log.Printf("dispatch_decision %s", b)
}
