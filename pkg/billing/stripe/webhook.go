package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/flowblock/entitled/pkg/billing/internal"
	"github.com/flowblock/entitled/pkg/entitled"
)

var errMissingEmail = errors.New("customer email missing")

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	select {
	case <-r.Context().Done():
		http.Error(w, "request timeout", http.StatusRequestTimeout)
		return
	default:
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, 256*1024)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	// Signature check covers the raw bytes, so it runs before any parsing
	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	p.logger.Info("webhook received",
		entitled.Field{Key: "provider", Value: providerName},
		entitled.Field{Key: "event_type", Value: eventType},
	)

	if err := p.processEvent(r.Context(), &event); err != nil {
		if errors.Is(err, errMissingEmail) {
			http.Error(w, "missing customer email", http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "missing_email")
			return
		}
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	if err := internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true}); err != nil {
		return
	}

	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// processEvent dispatches a verified event to its handler
func (p *Provider) processEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		return p.handleSubscriptionChange(ctx, event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_failed":
		return p.handleInvoicePaymentFailed(ctx, event)
	default:
		p.logger.Warn("unhandled event type",
			entitled.Field{Key: "provider", Value: providerName},
			entitled.Field{Key: "event_type", Value: string(event.Type)},
		)
		return nil
	}
}

// handleSubscriptionChange processes customer.subscription.created and
// customer.subscription.updated events
func (p *Provider) handleSubscriptionChange(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	email, err := p.resolveCustomerEmail(ctx, &sub)
	if err != nil {
		return err
	}

	rec := entitled.UpsertRecord{
		Email:                  email,
		ProviderSubscriptionID: sub.ID,
		Status:                 mapSubscriptionStatus(sub.Status),
		Plan:                   entitled.PlanPremium,
		CurrentPeriodEnd:       periodEnd(&sub),
	}
	if sub.Customer != nil {
		rec.ProviderCustomerID = sub.Customer.ID
	}

	if _, err := p.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	p.metrics.RecordStatusChange(providerName, string(rec.Status))
	return nil
}

// handleSubscriptionDeleted processes customer.subscription.deleted events
func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	return p.transitionBySubscriptionID(ctx, sub.ID, entitled.StatusCancelled)
}

// handleInvoicePaymentFailed processes invoice.payment_failed events.
// Failed renewals move the subscriber to past_due without touching the
// rest of the record; a later successful update event restores them.
func (p *Provider) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	// The invoice's subscription reference can be an expandable object or a
	// bare ID string depending on API version, so read it from the raw JSON
	var rawData map[string]interface{}
	subscriptionID := ""
	if err := json.Unmarshal(event.Data.Raw, &rawData); err == nil {
		switch v := rawData["subscription"].(type) {
		case map[string]interface{}:
			if id, ok := v["id"].(string); ok {
				subscriptionID = id
			}
		case string:
			subscriptionID = v
		}
	}
	if subscriptionID == "" {
		// Not a subscription invoice - ignore
		return nil
	}

	return p.transitionBySubscriptionID(ctx, subscriptionID, entitled.StatusPastDue)
}

// transitionBySubscriptionID updates the status of the subscriber owning
// the subscription. An unknown subscription is logged and acknowledged so
// Stripe does not retry events for subscribers this service never saw.
func (p *Provider) transitionBySubscriptionID(
	ctx context.Context, subscriptionID string, status entitled.Status,
) error {
	if subscriptionID == "" {
		p.logger.Warn("event without subscription id",
			entitled.Field{Key: "provider", Value: providerName},
		)
		return nil
	}

	_, err := p.store.SetStatusBySubscriptionID(ctx, subscriptionID, status)
	if errors.Is(err, entitled.ErrSubscriberNotFound) {
		p.logger.Warn("no subscriber for subscription",
			entitled.Field{Key: "provider", Value: providerName},
			entitled.Field{Key: "subscription_id", Value: subscriptionID},
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	p.metrics.RecordStatusChange(providerName, string(status))
	return nil
}

// resolveCustomerEmail resolves the subscriber email for a subscription,
// fetching the customer from the Stripe API when the event payload only
// carries the customer ID.
func (p *Provider) resolveCustomerEmail(ctx context.Context, sub *stripe.Subscription) (string, error) {
	if sub.Customer == nil || sub.Customer.ID == "" {
		return "", errMissingEmail
	}

	if email := entitled.NormalizeEmail(sub.Customer.Email); email != "" {
		return email, nil
	}

	callStart := time.Now()
	cust, err := p.stripeClient.V1Customers.Retrieve(ctx, sub.Customer.ID, nil)
	p.metrics.RecordAPICallDuration(providerName, "customers.retrieve", time.Since(callStart))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "customers.retrieve", "error")
		return "", fmt.Errorf("failed to fetch customer %s: %w", sub.Customer.ID, err)
	}
	p.metrics.RecordAPICall(providerName, "customers.retrieve", "success")

	email := entitled.NormalizeEmail(cust.Email)
	if email == "" {
		return "", errMissingEmail
	}
	return email, nil
}

// mapSubscriptionStatus maps a Stripe subscription status onto the
// subscriber status vocabulary
func mapSubscriptionStatus(status stripe.SubscriptionStatus) entitled.Status {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return entitled.StatusActive
	case stripe.SubscriptionStatusPastDue:
		return entitled.StatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return entitled.StatusCancelled
	case stripe.SubscriptionStatusPaused:
		return entitled.StatusPaused
	default:
		return entitled.StatusInactive
	}
}

// periodEnd extracts the current period end from the subscription items.
// Stripe reports period boundaries per item; the first item carries the
// period for single-plan subscriptions. Absent data degrades to nil.
func periodEnd(sub *stripe.Subscription) *time.Time {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	item := sub.Items.Data[0]
	if item == nil || item.CurrentPeriodEnd == 0 {
		return nil
	}
	t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
	return &t
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
