// Package memory provides an in-memory implementation of the entitled.Store
// interface. This implementation is primarily intended for testing and
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/flowblock/entitled/pkg/entitled"
)

// Store implements entitled.Store using an in-memory map keyed by email.
type Store struct {
	mu      sync.RWMutex
	byEmail map[string]*entitled.Subscriber
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		byEmail: make(map[string]*entitled.Subscriber),
	}
}

// Upsert implements entitled.Store
func (s *Store) Upsert(ctx context.Context, rec entitled.UpsertRecord) (*entitled.Subscriber, error) {
	email := entitled.NormalizeEmail(rec.Email)
	if email == "" {
		return nil, entitled.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sub, ok := s.byEmail[email]
	if !ok {
		sub = &entitled.Subscriber{
			Email:     email,
			CreatedAt: now,
		}
		s.byEmail[email] = sub
	}

	sub.ProviderCustomerID = rec.ProviderCustomerID
	sub.ProviderSubscriptionID = rec.ProviderSubscriptionID
	sub.Status = rec.Status
	sub.Plan = rec.Plan
	sub.CurrentPeriodEnd = copyTime(rec.CurrentPeriodEnd)
	sub.UpdatedAt = now

	// Return a copy to prevent external mutations
	subCopy := *sub
	return &subCopy, nil
}

// FindByEmail implements entitled.Store
func (s *Store) FindByEmail(ctx context.Context, email string) (*entitled.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byEmail[entitled.NormalizeEmail(email)]
	if !ok {
		return nil, entitled.ErrSubscriberNotFound
	}

	subCopy := *sub
	return &subCopy, nil
}

// SetStatusBySubscriptionID implements entitled.Store
func (s *Store) SetStatusBySubscriptionID(
	ctx context.Context, subscriptionID string, status entitled.Status,
) (*entitled.Subscriber, error) {
	if subscriptionID == "" {
		return nil, entitled.ErrSubscriberNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.byEmail {
		if sub.ProviderSubscriptionID == subscriptionID {
			sub.Status = status
			sub.UpdatedAt = time.Now().UTC()

			subCopy := *sub
			return &subCopy, nil
		}
	}

	return nil, entitled.ErrSubscriberNotFound
}

// Clear removes all data (useful for testing)
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail = make(map[string]*entitled.Subscriber)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tc := *t
	return &tc
}
