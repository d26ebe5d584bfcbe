package cache

import (
	"context"
	"time"
)

// BackendStats summarizes a backend's hit/miss behavior.
type BackendStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// Backend is the storage collaborator a Facade sits on top of. Get
// returns (nil, false, nil) on a clean miss; a non-nil error indicates
// a backend failure distinct from a miss.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Stats(ctx context.Context) (BackendStats, error)
	Clear(ctx context.Context) error
	// DeleteByTag removes every entry previously Set with the given tag
	// attached (tag association is tracked by the backend implementation).
	DeleteByTag(ctx context.Context, tag string) error
	SetWithTags(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
}
