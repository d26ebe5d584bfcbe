package orchestrator

// ModelRouter selects which agent should receive a task destined for a
// given model. The routing policy itself (cost-aware, latency-aware,
// capability-aware) is explicitly out of scope — only this pluggable
// interface is.
type ModelRouter interface {
	Route(model string) *Agent
}

// RoundRobinRouter is the default ModelRouter: delegate straight to the
// Registry's round-robin selection.
type RoundRobinRouter struct {
	registry *Registry
}

func NewRoundRobinRouter(r *Registry) *RoundRobinRouter {
	return &RoundRobinRouter{registry: r}
}

func (r *RoundRobinRouter) Route(model string) *Agent {
	return r.registry.SelectForModel(model)
}
