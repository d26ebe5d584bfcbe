package main

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/apexorch/apex/cache"
	"github.com/apexorch/apex/contracts"
	"github.com/apexorch/apex/dag"
	"github.com/apexorch/apex/orchestrator"
	"github.com/apexorch/apex/scheduler"
	"github.com/apexorch/apex/store"
)

// dagRuntime holds every dependency a DAG submission needs to build
// and run a DagExecutor: the swarm to dispatch through, the worker
// pool and circuit breakers that bound concurrency and failure
// handling, the root contract new DAGs draw their resource budget
// from, and the cache/archival backends supporting read-through
// lookups and post-run persistence.
type dagRuntime struct {
	swarm    *orchestrator.SwarmOrchestrator
	pool     *scheduler.WorkerPool
	enforcer *contracts.ContractEnforcer
	breakers *scheduler.AgentCircuitBreakerRegistry
	root     *contracts.AgentContract
	cache    *cache.Facade
	archival store.Store
}

type submitDagTask struct {
	Name        string          `json:"name"`
	AgentID     string          `json:"agent_id"`
	Input       json.RawMessage `json:"input"`
	Priority    float64         `json:"priority"`
	MaxAttempts int             `json:"max_attempts"`
	DependsOn   []string        `json:"depends_on"`
}

type submitDagRequest struct {
	Name  string          `json:"name"`
	Tasks []submitDagTask `json:"tasks"`
}

// handleSubmitDag accepts a DAG definition keyed by task name, resolves
// named dependencies to task ids, builds the DAG in memory, and starts
// a DagExecutor against the shared swarm/pool/breaker stack. It does
// not block for completion; callers subscribe to the dag:<id> push
// room for progress.
func (rt *dagRuntime) handleSubmitDag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req submitDagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	dagID := uuid.New()
	idByName := make(map[string]uuid.UUID, len(req.Tasks))
	for _, t := range req.Tasks {
		idByName[t.Name] = uuid.New()
	}

	d := dag.NewDAG(req.Name, rt.pool.Stats().Capacity)
	for _, t := range req.Tasks {
		deps := make([]uuid.UUID, 0, len(t.DependsOn))
		for _, depName := range t.DependsOn {
			if id, ok := idByName[depName]; ok {
				deps = append(deps, id)
			}
		}
		task := dag.NewTask(dagID, t.Name, t.AgentID, t.Input, t.Priority, t.MaxAttempts, deps)
		task.ID = idByName[t.Name]
		d.AddTask(task)
	}

	cfg := dag.DefaultExecutorConfig()
	executor := dag.NewDagExecutor(d, rt.swarm, rt.pool, rt.enforcer, rt.breakers, rt.root, cfg)

	go func() {
		_ = executor.Run(r.Context())
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "dag_id": dagID.String(), "name": req.Name})
}
