package entitled

import "context"

// Store is the persistence interface for subscriber records. Implementations
// live under storage/ (postgres, memory, firestore, rediscache).
//
// All operations normalize the email key before reading or writing.
type Store interface {
	// Upsert inserts a subscriber keyed by email, or overwrites all mutable
	// fields of the existing row and refreshes UpdatedAt. CreatedAt is set
	// on first insert only. The write must be a single conflict-resolving
	// operation: two concurrent upserts for the same email may race on
	// ordering but never interleave partial field writes.
	Upsert(ctx context.Context, rec UpsertRecord) (*Subscriber, error)

	// FindByEmail returns the subscriber for a normalized email, or
	// ErrSubscriberNotFound.
	FindByEmail(ctx context.Context, email string) (*Subscriber, error)

	// SetStatusBySubscriptionID updates status and UpdatedAt on the row whose
	// provider subscription ID matches. It never creates a row; callers
	// treat ErrSubscriberNotFound as a no-op, not a failure.
	SetStatusBySubscriptionID(ctx context.Context, subscriptionID string, status Status) (*Subscriber, error)
}
