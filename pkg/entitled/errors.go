package entitled

import "errors"

var (
	// ErrSubscriberNotFound is returned when no subscriber row matches
	ErrSubscriberNotFound = errors.New("subscriber not found")

	// ErrInvalidEmail is returned for empty or whitespace-only emails
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidRecord is returned for upserts with missing required fields
	ErrInvalidRecord = errors.New("invalid subscriber record")

	// ErrStoreUnavailable is returned when the backing store cannot be reached
	ErrStoreUnavailable = errors.New("store unavailable")
)
