// Package broker abstracts the queue transport used to dispatch tasks
// to remote agents and collect their results: an RPUSH/BLPOP-style
// verb pair, grounded on FluxForge store/redis.go's go-redis usage.
package broker

import (
	"context"
	"time"
)

// MessageBroker is the dispatch-protocol collaborator: Publish enqueues
// a payload (Redis RPUSH semantics), BlockingPop dequeues the oldest
// payload or blocks until timeout elapses (Redis BLPOP semantics).
type MessageBroker interface {
	Publish(ctx context.Context, queue string, payload []byte) error
	BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
}

// Well-known queue name conventions, matching spec.md §6.
const (
	QueueTasksPending = "apex:tasks:pending"
)

// ResultQueue returns the per-task reply rendezvous queue name.
func ResultQueue(taskID string) string {
	return "apex:tasks:result:" + taskID
}

// JobQueue returns the generalized named-job queue, used by callers
// that want broker semantics outside the task-dispatch path.
func JobQueue(name string) string {
	return "apex:jobs:" + name
}
