package broker

import (
	"context"
	"sync"
	"time"

	"github.com/apexorch/apex/apexerr"
)

// ChannelBroker is an in-memory MessageBroker backed by per-queue
// buffered channels, satisfying the same interface as RedisBroker for
// tests and single-process deployments. Grounded on FluxForge's
// ThreadSafeQueue/broadcast-channel idiom generalized to a named-queue
// map.
type ChannelBroker struct {
	mu     sync.Mutex
	queues map[string]chan []byte
}

func NewChannelBroker() *ChannelBroker {
	return &ChannelBroker{queues: make(map[string]chan []byte)}
}

func (b *ChannelBroker) queue(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, 1024)
		b.queues[name] = q
	}
	return q
}

func (b *ChannelBroker) Publish(ctx context.Context, queue string, payload []byte) error {
	select {
	case b.queue(queue) <- payload:
		return nil
	case <-ctx.Done():
		return apexerr.Wrap(apexerr.BrokerUnavailable, "publish cancelled", ctx.Err())
	default:
		return apexerr.New(apexerr.BrokerUnavailable, "queue full").WithContext("queue", queue)
	}
}

func (b *ChannelBroker) BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case payload := <-b.queue(queue):
		return payload, nil
	case <-timer.C:
		return nil, apexerr.New(apexerr.Timeout, "blocking pop timed out").WithContext("queue", queue)
	case <-ctx.Done():
		return nil, apexerr.Wrap(apexerr.Timeout, "blocking pop cancelled", ctx.Err())
	}
}
