package cache

import (
	"context"
	"time"
)

// MultiTier composes a fast L1 backend (typically MemoryBackend) and a
// shared L2 backend (typically RedisBackend): reads check L1 first and
// populate it from L2 on a hit; writes go to both tiers; deletes and
// clears propagate to both.
type MultiTier struct {
	L1 Backend
	L2 Backend
}

func NewMultiTier(l1, l2 Backend) *MultiTier {
	return &MultiTier{L1: l1, L2: l2}
}

func (m *MultiTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := m.L1.Get(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		return val, true, nil
	}
	val, ok, err := m.L2.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = m.L1.Set(ctx, key, val, 0) // best-effort L1 fill; failure doesn't block the read
	return val, true, nil
}

func (m *MultiTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.L2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return m.L1.Set(ctx, key, value, ttl)
}

func (m *MultiTier) SetWithTags(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if err := m.L2.SetWithTags(ctx, key, value, ttl, tags); err != nil {
		return err
	}
	return m.L1.SetWithTags(ctx, key, value, ttl, tags)
}

func (m *MultiTier) Delete(ctx context.Context, key string) error {
	if err := m.L2.Delete(ctx, key); err != nil {
		return err
	}
	return m.L1.Delete(ctx, key)
}

func (m *MultiTier) Exists(ctx context.Context, key string) (bool, error) {
	if ok, err := m.L1.Exists(ctx, key); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return m.L2.Exists(ctx, key)
}

func (m *MultiTier) Clear(ctx context.Context) error {
	if err := m.L2.Clear(ctx); err != nil {
		return err
	}
	return m.L1.Clear(ctx)
}

func (m *MultiTier) DeleteByTag(ctx context.Context, tag string) error {
	if err := m.L2.DeleteByTag(ctx, tag); err != nil {
		return err
	}
	return m.L1.DeleteByTag(ctx, tag)
}

func (m *MultiTier) Stats(ctx context.Context) (BackendStats, error) {
	return m.L1.Stats(ctx)
}
