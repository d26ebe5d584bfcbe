package store

import "time"

// ContractRecord is the durable archival form of a contracts.AgentContract,
// written once a contract reaches a terminal status (Exhausted, Expired, or
// Cancelled) so usage can be audited after the in-memory contract is gone.
type ContractRecord struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parent_id,omitempty"`
	AgentID    string    `json:"agent_id"`
	Status     string    `json:"status"`
	TokensUsed int64     `json:"tokens_used"`
	CostMicros int64     `json:"cost_micros"`
	APICalls   int64     `json:"api_calls"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// DagRunRecord is the durable archival form of one DAG execution, written
// when the DAG reaches a terminal DAGStatus.
type DagRunRecord struct {
	DagID       string    `json:"dag_id"`
	Status      string    `json:"status"`
	TaskCount   int       `json:"task_count"`
	FailedCount int       `json:"failed_count"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
