// Package entitled contains the core subscriber model and the entitlement
// evaluation logic. Persistence is pluggable via the Store interface; see
// the storage/ packages for implementations.
package entitled

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a subscription as reported by the
// billing provider.
type Status string

const (
	// StatusActive means the subscription is in good standing
	StatusActive Status = "active"
	// StatusInactive is the default state and the state a subscription
	// falls back to when the provider reports anything other than active
	StatusInactive Status = "inactive"
	// StatusCancelled means the subscription was cancelled by the customer
	StatusCancelled Status = "cancelled"
	// StatusPaused means the subscription is temporarily paused
	StatusPaused Status = "paused"
	// StatusPastDue means the most recent payment attempt failed
	StatusPastDue Status = "past_due"
)

// Plan is the product plan a subscriber is on.
type Plan string

const (
	// PlanFree is the default plan for subscribers without a paid subscription
	PlanFree Plan = "free"
	// PlanPremium is the paid plan
	PlanPremium Plan = "premium"
)

// Subscriber is the persisted record of one customer's entitlement state,
// keyed uniquely by email. Rows are created by the first reconciled billing
// event for an email and are never deleted; lifecycle is expressed through
// status transitions.
type Subscriber struct {
	Email                  string
	ProviderCustomerID     string
	ProviderSubscriptionID string
	Status                 Status
	Plan                   Plan

	// CurrentPeriodEnd is the end of the paid billing period. Nil means the
	// expiry is unknown, which is never treated as expired.
	CurrentPeriodEnd *time.Time

	// CreatedAt is set once on first insert and never changes afterwards.
	CreatedAt time.Time

	// UpdatedAt is refreshed on every mutation.
	UpdatedAt time.Time
}

// UpsertRecord carries the mutable fields of a subscriber for an
// insert-or-replace write. Email is the conflict key.
type UpsertRecord struct {
	Email                  string
	ProviderCustomerID     string
	ProviderSubscriptionID string
	Status                 Status
	Plan                   Plan
	CurrentPeriodEnd       *time.Time
}

// NormalizeEmail lowercases and trims an email address. Every store
// operation and every entitlement lookup goes through this, so
// "  A@X.com " and "a@x.com" address the same subscriber row.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
