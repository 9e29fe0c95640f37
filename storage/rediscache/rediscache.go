// Package rediscache provides a read-through Redis cache that decorates any
// entitled.Store. Lookups hit Redis first; misses fall through to the inner
// store and populate the cache. Writes go to the inner store and refresh the
// cached entry, so entitlement reads see new state immediately.
//
// The cache is advisory: Redis failures degrade to inner-store reads, never
// to request failures.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/flowblock/entitled/pkg/entitled"
)

// Store implements entitled.Store by caching subscriber rows from an inner
// store in Redis.
type Store struct {
	inner  entitled.Store
	client redis.UniversalClient
	config Config
	group  singleflight.Group
}

// Config holds Redis cache configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "entitled:subscriber:")
	KeyPrefix string

	// TTL is the lifetime of cached entries (default: 5 minutes)
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "entitled:subscriber:",
		TTL:       5 * time.Minute,
	}
}

// New creates a new Redis-backed cache around an inner store.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(inner entitled.Store, client redis.UniversalClient, config Config) (*Store, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "entitled:subscriber:"
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}

	return &Store{
		inner:  inner,
		client: client,
		config: config,
	}, nil
}

// Upsert implements entitled.Store with write-through caching
func (s *Store) Upsert(ctx context.Context, rec entitled.UpsertRecord) (*entitled.Subscriber, error) {
	sub, err := s.inner.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, sub)
	return sub, nil
}

// FindByEmail implements entitled.Store. Concurrent misses for the same
// email are collapsed into a single inner-store lookup.
func (s *Store) FindByEmail(ctx context.Context, email string) (*entitled.Subscriber, error) {
	normalized := entitled.NormalizeEmail(email)
	if cached := s.cacheGet(ctx, normalized); cached != nil {
		return cached, nil
	}

	v, err, _ := s.group.Do(normalized, func() (interface{}, error) {
		sub, err := s.inner.FindByEmail(ctx, normalized)
		if err != nil {
			return nil, err
		}
		s.cacheSet(ctx, sub)
		return sub, nil
	})
	if err != nil {
		return nil, err
	}

	// Collapsed callers share one result; hand each its own copy
	subCopy := *(v.(*entitled.Subscriber))
	return &subCopy, nil
}

// SetStatusBySubscriptionID implements entitled.Store
func (s *Store) SetStatusBySubscriptionID(
	ctx context.Context, subscriptionID string, status entitled.Status,
) (*entitled.Subscriber, error) {
	sub, err := s.inner.SetStatusBySubscriptionID(ctx, subscriptionID, status)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, sub)
	return sub, nil
}

func (s *Store) key(email string) string {
	return s.config.KeyPrefix + email
}

func (s *Store) cacheGet(ctx context.Context, email string) *entitled.Subscriber {
	data, err := s.client.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		// redis.Nil (miss) and transport errors both fall through
		return nil
	}

	var sub entitled.Subscriber
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil
	}
	return &sub
}

func (s *Store) cacheSet(ctx context.Context, sub *entitled.Subscriber) {
	data, err := json.Marshal(sub)
	if err != nil {
		return
	}
	// Best-effort: a failed write just means the next read misses
	_ = s.client.Set(ctx, s.key(sub.Email), data, s.config.TTL).Err()
}

// Invalidate drops the cached entry for an email.
func (s *Store) Invalidate(ctx context.Context, email string) error {
	return s.client.Del(ctx, s.key(entitled.NormalizeEmail(email))).Err()
}
