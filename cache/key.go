// Package cache implements the multi-tier cache: a typed CacheKey
// builder, a Backend interface with memory/Redis implementations, and
// a Facade/MultiTier layer on top. Key semantics are grounded on
// original_source/cache/key.rs — exact KeyType table and build-string
// ordering.
package cache

import (
	"fmt"
	"strings"
	"time"
)

// KeyType classifies what a cache entry holds, determining its default
// TTL and key prefix.
type KeyType int

const (
	KeyTask KeyType = iota
	KeyAgent
	KeyDag
	KeyContract
	KeyUser
	KeySession
	KeyAPIResponse
	KeyConfig
	KeyMetrics
	KeyRouting
	KeyToolResult
	KeyRateLimit
	KeyCustom
)

// Prefix returns the wire-format prefix segment for this type.
func (k KeyType) Prefix() string {
	switch k {
	case KeyTask:
		return "task"
	case KeyAgent:
		return "agent"
	case KeyDag:
		return "dag"
	case KeyContract:
		return "contract"
	case KeyUser:
		return "user"
	case KeySession:
		return "session"
	case KeyAPIResponse:
		return "api"
	case KeyConfig:
		return "config"
	case KeyMetrics:
		return "metrics"
	case KeyRouting:
		return "routing"
	case KeyToolResult:
		return "tool"
	case KeyRateLimit:
		return "rate"
	default:
		return "custom"
	}
}

// DefaultTTL returns the per-type default time-to-live, matching
// original_source/cache/key.rs exactly.
func (k KeyType) DefaultTTL() time.Duration {
	switch k {
	case KeyTask:
		return 60 * time.Second
	case KeyAgent:
		return 300 * time.Second
	case KeyDag:
		return 600 * time.Second
	case KeyContract:
		return 300 * time.Second
	case KeyUser:
		return 900 * time.Second
	case KeySession:
		return 3600 * time.Second
	case KeyAPIResponse:
		return 60 * time.Second
	case KeyConfig:
		return 3600 * time.Second
	case KeyMetrics:
		return 10 * time.Second
	case KeyRouting:
		return 300 * time.Second
	case KeyToolResult:
		return 600 * time.Second
	case KeyRateLimit:
		return 60 * time.Second
	default:
		return 300 * time.Second
	}
}

// CacheKey is a builder for the canonical key string form:
// [namespace:]type[:vN][:id][:segment...]
type CacheKey struct {
	namespace string
	keyType   KeyType
	version   int
	id        string
	segments  []string
	tags      []string
	ttl       time.Duration
}

func NewCacheKey(t KeyType) *CacheKey {
	return &CacheKey{keyType: t, ttl: t.DefaultTTL()}
}

func (k *CacheKey) WithNamespace(ns string) *CacheKey {
	k.namespace = ns
	return k
}

func (k *CacheKey) WithVersion(v int) *CacheKey {
	k.version = v
	return k
}

func (k *CacheKey) WithID(id string) *CacheKey {
	k.id = id
	return k
}

func (k *CacheKey) WithSegment(s string) *CacheKey {
	k.segments = append(k.segments, s)
	return k
}

func (k *CacheKey) WithSegments(segs ...string) *CacheKey {
	k.segments = append(k.segments, segs...)
	return k
}

func (k *CacheKey) WithTag(tag string) *CacheKey {
	k.tags = append(k.tags, tag)
	return k
}

func (k *CacheKey) WithTags(tags ...string) *CacheKey {
	k.tags = append(k.tags, tags...)
	return k
}

func (k *CacheKey) WithTTL(ttl time.Duration) *CacheKey {
	k.ttl = ttl
	return k
}

func (k *CacheKey) Tags() []string       { return k.tags }
func (k *CacheKey) TTL() time.Duration   { return k.ttl }
func (k *CacheKey) Type() KeyType        { return k.keyType }

// Build produces the canonical string form:
// [namespace:]type[:vN][:id][:segment...]
func (k *CacheKey) Build() string {
	var parts []string
	if k.namespace != "" {
		parts = append(parts, k.namespace)
	}
	parts = append(parts, k.keyType.Prefix())
	if k.version > 0 {
		parts = append(parts, fmt.Sprintf("v%d", k.version))
	}
	if k.id != "" {
		parts = append(parts, k.id)
	}
	parts = append(parts, k.segments...)
	return strings.Join(parts, ":")
}

func (k *CacheKey) String() string { return k.Build() }
