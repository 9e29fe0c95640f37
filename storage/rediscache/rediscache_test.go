package rediscache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowblock/entitled/pkg/entitled"
	"github.com/flowblock/entitled/storage/memory"
)

// setupTestRedis creates a Redis client for testing
// Requires Redis running on localhost:6379
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return client
}

func setupCachedStore(t *testing.T) (*Store, *memory.Store, *redis.Client) {
	t.Helper()

	client := setupTestRedis(t)
	inner := memory.New()

	store, err := New(inner, client, Config{
		KeyPrefix: "test:subscriber:",
		TTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create cached store: %v", err)
	}
	return store, inner, client
}

func upsertActive(t *testing.T, store entitled.Store, email, subscriptionID string) *entitled.Subscriber {
	t.Helper()

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	sub, err := store.Upsert(context.Background(), entitled.UpsertRecord{
		Email:                  email,
		ProviderCustomerID:     "ctm_1",
		ProviderSubscriptionID: subscriptionID,
		Status:                 entitled.StatusActive,
		Plan:                   entitled.PlanPremium,
		CurrentPeriodEnd:       &periodEnd,
	})
	if err != nil {
		t.Fatalf("Failed to upsert subscriber: %v", err)
	}
	return sub
}

func TestNew_Validation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	if _, err := New(nil, client, DefaultConfig()); err == nil {
		t.Error("Expected error for nil inner store")
	}
	if _, err := New(memory.New(), nil, DefaultConfig()); err == nil {
		t.Error("Expected error for nil client")
	}

	store, err := New(memory.New(), client, Config{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.config.KeyPrefix != "entitled:subscriber:" {
		t.Errorf("Default key prefix not applied: %q", store.config.KeyPrefix)
	}
	if store.config.TTL != 5*time.Minute {
		t.Errorf("Default TTL not applied: %v", store.config.TTL)
	}
}

func TestStore_WriteThroughOnUpsert(t *testing.T) {
	store, _, client := setupCachedStore(t)
	ctx := context.Background()

	upsertActive(t, store, "user@example.com", "sub_1")

	// Upsert must have populated Redis directly
	data, err := client.Get(ctx, "test:subscriber:user@example.com").Bytes()
	if err != nil {
		t.Fatalf("Expected cached entry after upsert: %v", err)
	}
	if len(data) == 0 {
		t.Error("Cached entry is empty")
	}

	sub, err := store.FindByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if sub.Status != entitled.StatusActive {
		t.Errorf("Expected active status, got %q", sub.Status)
	}
}

func TestStore_ReadThroughMiss(t *testing.T) {
	store, inner, client := setupCachedStore(t)
	ctx := context.Background()

	// Write directly to the inner store so Redis has no entry yet
	upsertActive(t, inner, "miss@example.com", "sub_2")

	sub, err := store.FindByEmail(ctx, "miss@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if sub.Email != "miss@example.com" {
		t.Errorf("Unexpected email: %q", sub.Email)
	}

	// The miss must have populated the cache
	if err := client.Get(ctx, "test:subscriber:miss@example.com").Err(); err != nil {
		t.Errorf("Expected cache populated after miss: %v", err)
	}
}

func TestStore_CachedReadSurvivesInnerLoss(t *testing.T) {
	store, inner, _ := setupCachedStore(t)
	ctx := context.Background()

	upsertActive(t, store, "cached@example.com", "sub_3")

	// Remove the row from the inner store; the cached copy must still serve
	inner.Clear()

	sub, err := store.FindByEmail(ctx, "cached@example.com")
	if err != nil {
		t.Fatalf("Expected cache hit, got error: %v", err)
	}
	if sub.Status != entitled.StatusActive {
		t.Errorf("Unexpected status from cache: %q", sub.Status)
	}
}

func TestStore_SetStatusRefreshesCache(t *testing.T) {
	store, _, _ := setupCachedStore(t)
	ctx := context.Background()

	upsertActive(t, store, "user@example.com", "sub_4")

	if _, err := store.SetStatusBySubscriptionID(ctx, "sub_4", entitled.StatusCancelled); err != nil {
		t.Fatalf("SetStatusBySubscriptionID failed: %v", err)
	}

	sub, err := store.FindByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if sub.Status != entitled.StatusCancelled {
		t.Errorf("Cache must reflect the status change, got %q", sub.Status)
	}
}

func TestStore_Invalidate(t *testing.T) {
	store, inner, client := setupCachedStore(t)
	ctx := context.Background()

	upsertActive(t, store, "user@example.com", "sub_5")

	if err := store.Invalidate(ctx, "User@Example.com"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	if err := client.Get(ctx, "test:subscriber:user@example.com").Err(); !errors.Is(err, redis.Nil) {
		t.Errorf("Expected cache miss after invalidation, got %v", err)
	}

	// Next read falls through to the inner store
	inner.Clear()
	if _, err := store.FindByEmail(ctx, "user@example.com"); !errors.Is(err, entitled.ErrSubscriberNotFound) {
		t.Errorf("Expected ErrSubscriberNotFound after invalidation, got %v", err)
	}
}

func TestStore_NotFoundNotCached(t *testing.T) {
	store, inner, _ := setupCachedStore(t)
	ctx := context.Background()

	if _, err := store.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, entitled.ErrSubscriberNotFound) {
		t.Fatalf("Expected ErrSubscriberNotFound, got %v", err)
	}

	// Once the subscriber appears, reads must see it
	upsertActive(t, inner, "nobody@example.com", "sub_6")

	sub, err := store.FindByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if sub.Status != entitled.StatusActive {
		t.Errorf("Unexpected status: %q", sub.Status)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store, _, _ := setupCachedStore(t)
	ctx := context.Background()

	upsertActive(t, store, "user@example.com", "sub_7")

	first, err := store.FindByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	first.Status = entitled.StatusCancelled

	second, err := store.FindByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if second.Status != entitled.StatusActive {
		t.Error("Mutating a returned subscriber must not affect later reads")
	}
}

func TestStore_ManySubscribers(t *testing.T) {
	store, _, _ := setupCachedStore(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		upsertActive(t, store, fmt.Sprintf("user%d@example.com", i), fmt.Sprintf("sub_%d", i))
	}

	for i := 0; i < 50; i++ {
		sub, err := store.FindByEmail(ctx, fmt.Sprintf("user%d@example.com", i))
		if err != nil {
			t.Fatalf("FindByEmail failed for user%d: %v", i, err)
		}
		if sub.ProviderSubscriptionID != fmt.Sprintf("sub_%d", i) {
			t.Errorf("Wrong subscription for user%d: %q", i, sub.ProviderSubscriptionID)
		}
	}
}
