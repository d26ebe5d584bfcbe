package cache

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/singleflight"

	"github.com/apexorch/apex/apexerr"
)

// Facade serializes values with encoding/json on top of a Backend and
// enforces a maximum serialized entry size.
type Facade struct {
	backend      Backend
	maxEntrySize int
	group        *singleflight.Group // nil unless dedup is enabled
}

func NewFacade(backend Backend, maxEntrySize int) *Facade {
	return &Facade{backend: backend, maxEntrySize: maxEntrySize}
}

// NewFacadeWithDedup returns a Facade whose GetOrSet collapses
// concurrent callers for the same key into a single loader invocation,
// via golang.org/x/sync/singleflight. The spec treats this dedup as
// optional (MAY add); this constructor is the opt-in path.
func NewFacadeWithDedup(backend Backend, maxEntrySize int) *Facade {
	return &Facade{backend: backend, maxEntrySize: maxEntrySize, group: &singleflight.Group{}}
}

func (f *Facade) Get(ctx context.Context, key *CacheKey, out any) (bool, error) {
	raw, ok, err := f.backend.Get(ctx, key.Build())
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, apexerr.Wrap(apexerr.Serialization, "cache value unmarshal failed", err)
	}
	return true, nil
}

func (f *Facade) Set(ctx context.Context, key *CacheKey, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return apexerr.Wrap(apexerr.Serialization, "cache value marshal failed", err)
	}
	if f.maxEntrySize > 0 && len(raw) > f.maxEntrySize {
		return apexerr.New(apexerr.Validation, "cache entry exceeds max_entry_size").WithContext("key", key.Build())
	}
	if len(key.Tags()) > 0 {
		return f.backend.SetWithTags(ctx, key.Build(), raw, key.TTL(), key.Tags())
	}
	return f.backend.Set(ctx, key.Build(), raw, key.TTL())
}

func (f *Facade) Delete(ctx context.Context, key *CacheKey) error {
	return f.backend.Delete(ctx, key.Build())
}

func (f *Facade) InvalidateTag(ctx context.Context, tag string) error {
	return f.backend.DeleteByTag(ctx, tag)
}

// GetOrSet is best-effort: concurrent callers for the same missing key
// may each invoke loader and race to write the result. Use
// GetOrSetSingleFlight (on a dedup-enabled Facade) to collapse that
// race into a single loader call.
func (f *Facade) GetOrSet(ctx context.Context, key *CacheKey, out any, loader func(ctx context.Context) (any, error)) error {
	hit, err := f.Get(ctx, key, out)
	if err != nil {
		return err
	}
	if hit {
		return nil
	}
	val, err := loader(ctx)
	if err != nil {
		return err
	}
	if err := f.Set(ctx, key, val); err != nil {
		return err
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return apexerr.Wrap(apexerr.Serialization, "cache value marshal failed", err)
	}
	return json.Unmarshal(raw, out)
}

// GetOrSetSingleFlight behaves like GetOrSet but collapses concurrent
// misses for the same key into one loader call. Requires a Facade
// constructed with NewFacadeWithDedup.
func (f *Facade) GetOrSetSingleFlight(ctx context.Context, key *CacheKey, out any, loader func(ctx context.Context) (any, error)) error {
	if f.group == nil {
		return f.GetOrSet(ctx, key, out, loader)
	}
	hit, err := f.Get(ctx, key, out)
	if err != nil {
		return err
	}
	if hit {
		return nil
	}
	raw, err, _ := f.group.Do(key.Build(), func() (any, error) {
		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if err := f.Set(ctx, key, val); err != nil {
			return nil, err
		}
		return json.Marshal(val)
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), out)
}
