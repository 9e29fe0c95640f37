package entitled

import (
	"context"
	"fmt"
	"time"
)

// StatusNotFound is reported by the evaluator when no subscriber row exists
// for the queried email. It is a query result, not a persisted status.
const StatusNotFound = "not_found"

// Evaluation is the outcome of an entitlement check.
type Evaluation struct {
	IsPremium bool
	Status    string
	Plan      Plan
	ExpiresAt *time.Time
	Message   string
}

// Evaluator computes the premium/non-premium decision for an email by
// reading the subscriber store. It holds no state of its own; construct it
// once at startup and reuse it across requests.
type Evaluator struct {
	store  Store
	logger Logger
	now    func() time.Time
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithLogger sets the structured logger. Defaults to NoopLogger.
func WithLogger(logger Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeSource overrides the clock used for expiry checks. Intended for
// tests; defaults to time.Now.
func WithTimeSource(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator creates an Evaluator backed by the given store.
func NewEvaluator(store Store, opts ...EvaluatorOption) (*Evaluator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	e := &Evaluator{
		store:  store,
		logger: &NoopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// IsPremium looks up the subscriber for an email and decides whether they
// are currently entitled to the premium plan.
//
// The decision combines two signals: the stored status must be active, and
// the current billing period must not have elapsed. Neither alone is
// trusted. A provider can flip a row to inactive while the paid period is
// still running, and a status can lag behind an already-elapsed period. A
// nil CurrentPeriodEnd means the expiry is unknown and never counts as
// expired.
func (e *Evaluator) IsPremium(ctx context.Context, email string) (*Evaluation, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return nil, ErrInvalidEmail
	}

	sub, err := e.store.FindByEmail(ctx, normalized)
	if err == ErrSubscriberNotFound {
		return &Evaluation{
			IsPremium: false,
			Status:    StatusNotFound,
			Message:   "No subscription found for this email",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up subscriber: %w", err)
	}

	isActive := sub.Status == StatusActive

	isExpired := false
	if sub.CurrentPeriodEnd != nil {
		isExpired = sub.CurrentPeriodEnd.Before(e.now())
	}

	isPremium := isActive && !isExpired

	message := "Subscription inactive"
	if isPremium {
		message = "Subscription active"
	}

	e.logger.Debug("entitlement evaluated",
		Field{Key: "email", Value: normalized},
		Field{Key: "status", Value: string(sub.Status)},
		Field{Key: "is_premium", Value: isPremium},
	)

	return &Evaluation{
		IsPremium: isPremium,
		Status:    string(sub.Status),
		Plan:      sub.Plan,
		ExpiresAt: sub.CurrentPeriodEnd,
		Message:   message,
	}, nil
}
