package paddle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowblock/entitled/pkg/entitled"
)

// errMissingEmail marks an upsert-kind event that arrived without a customer
// email. It is a malformed event, not a processing failure.
var errMissingEmail = errors.New("missing customer email")

// webhookPayload represents the Paddle webhook payload structure
type webhookPayload struct {
	EventType string      `json:"event_type"`
	Data      webhookData `json:"data"`
}

type webhookData struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status"`
	SubscriptionID string `json:"subscription_id"`

	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`

	CurrentBillingPeriod struct {
		EndsAt string `json:"ends_at"`
	} `json:"current_billing_period"`
}

// periodEnd parses the billing period end timestamp. Absent or unparseable
// values degrade to nil, which downstream means "no known expiry".
func (d *webhookData) periodEnd() *time.Time {
	raw := strings.TrimSpace(d.CurrentBillingPeriod.EndsAt)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil
		}
	}
	return &parsed
}

// eventKind is the closed set of event types this provider reconciles.
// Anything outside the set maps to eventUnknown and is acknowledged without
// a store mutation.
type eventKind int

const (
	eventUnknown eventKind = iota
	eventSubscriptionCreated
	eventSubscriptionActivated
	eventSubscriptionUpdated
	eventSubscriptionCanceled
	eventSubscriptionPaused
	eventTransactionCompleted
	eventTransactionPaymentFailed
)

func parseEventKind(eventType string) eventKind {
	switch strings.TrimSpace(eventType) {
	case "subscription.created":
		return eventSubscriptionCreated
	case "subscription.activated":
		return eventSubscriptionActivated
	case "subscription.updated":
		return eventSubscriptionUpdated
	case "subscription.canceled":
		return eventSubscriptionCanceled
	case "subscription.paused":
		return eventSubscriptionPaused
	case "transaction.completed":
		return eventTransactionCompleted
	case "transaction.payment_failed":
		return eventTransactionPaymentFailed
	default:
		return eventUnknown
	}
}

// processEvent reconciles one webhook event into the subscriber store.
//
// Upsert-kind events are keyed by the customer email and are naturally
// idempotent: replaying the same event overwrites the row with identical
// values. Transition-kind events are keyed by the provider subscription ID,
// never create rows, and treat a missing row as a no-op.
func (p *Provider) processEvent(ctx context.Context, payload *webhookPayload) error {
	switch parseEventKind(payload.EventType) {
	case eventSubscriptionCreated, eventSubscriptionActivated:
		return p.handleSubscriptionActivated(ctx, &payload.Data)
	case eventSubscriptionUpdated:
		return p.handleSubscriptionUpdated(ctx, &payload.Data)
	case eventSubscriptionCanceled:
		return p.transitionBySubscriptionID(ctx, payload.Data.ID, entitled.StatusCancelled)
	case eventSubscriptionPaused:
		return p.transitionBySubscriptionID(ctx, payload.Data.ID, entitled.StatusPaused)
	case eventTransactionCompleted:
		// Informational only - no store mutation
		p.logger.Debug("payment completed", entitled.Field{Key: "provider", Value: providerName})
		return nil
	case eventTransactionPaymentFailed:
		return p.handlePaymentFailed(ctx, &payload.Data)
	default:
		p.logger.Warn("unhandled event type",
			entitled.Field{Key: "provider", Value: providerName},
			entitled.Field{Key: "event_type", Value: payload.EventType},
		)
		return nil
	}
}

// handleSubscriptionActivated processes subscription.created and
// subscription.activated events
func (p *Provider) handleSubscriptionActivated(ctx context.Context, data *webhookData) error {
	email := entitled.NormalizeEmail(data.Customer.Email)
	if email == "" {
		return errMissingEmail
	}

	sub, err := p.store.Upsert(ctx, entitled.UpsertRecord{
		Email:                  email,
		ProviderCustomerID:     data.CustomerID,
		ProviderSubscriptionID: data.ID,
		Status:                 entitled.StatusActive,
		Plan:                   entitled.PlanPremium,
		CurrentPeriodEnd:       data.periodEnd(),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	p.metrics.RecordStatusChange(providerName, string(sub.Status))
	p.logger.Info("subscription activated",
		entitled.Field{Key: "email", Value: email},
		entitled.Field{Key: "subscription_id", Value: data.ID},
	)
	return nil
}

// handleSubscriptionUpdated processes subscription.updated events
// (renewals and plan changes)
func (p *Provider) handleSubscriptionUpdated(ctx context.Context, data *webhookData) error {
	email := entitled.NormalizeEmail(data.Customer.Email)
	if email == "" {
		return errMissingEmail
	}

	status := entitled.StatusInactive
	if data.Status == string(entitled.StatusActive) {
		status = entitled.StatusActive
	}

	sub, err := p.store.Upsert(ctx, entitled.UpsertRecord{
		Email:                  email,
		ProviderCustomerID:     data.CustomerID,
		ProviderSubscriptionID: data.ID,
		Status:                 status,
		Plan:                   entitled.PlanPremium,
		CurrentPeriodEnd:       data.periodEnd(),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	p.metrics.RecordStatusChange(providerName, string(sub.Status))
	p.logger.Info("subscription updated",
		entitled.Field{Key: "email", Value: email},
		entitled.Field{Key: "status", Value: string(status)},
	)
	return nil
}

// handlePaymentFailed processes transaction.payment_failed events. Only
// transactions that reference a subscription affect stored state.
func (p *Provider) handlePaymentFailed(ctx context.Context, data *webhookData) error {
	if data.SubscriptionID == "" {
		p.logger.Debug("payment failed without subscription reference",
			entitled.Field{Key: "provider", Value: providerName},
		)
		return nil
	}
	return p.transitionBySubscriptionID(ctx, data.SubscriptionID, entitled.StatusPastDue)
}

// transitionBySubscriptionID applies a status-only transition. A missing
// subscriber is a no-op: the event may reference a subscription this system
// never saw an activation for.
func (p *Provider) transitionBySubscriptionID(
	ctx context.Context, subscriptionID string, status entitled.Status,
) error {
	sub, err := p.store.SetStatusBySubscriptionID(ctx, subscriptionID, status)
	if err == entitled.ErrSubscriberNotFound {
		p.logger.Warn("no subscriber for subscription transition",
			entitled.Field{Key: "subscription_id", Value: subscriptionID},
			entitled.Field{Key: "status", Value: string(status)},
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	p.metrics.RecordStatusChange(providerName, string(status))
	p.logger.Info("subscription status updated",
		entitled.Field{Key: "email", Value: sub.Email},
		entitled.Field{Key: "subscription_id", Value: subscriptionID},
		entitled.Field{Key: "status", Value: string(status)},
	)
	return nil
}
