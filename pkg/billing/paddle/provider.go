// Package paddle implements the billing.Provider interface for Paddle
// Billing webhooks. Inbound events are verified, mapped to a closed set of
// event kinds, and reconciled into the subscriber store.
package paddle

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flowblock/entitled/pkg/billing"
	"github.com/flowblock/entitled/pkg/billing/internal"
	"github.com/flowblock/entitled/pkg/entitled"
)

const (
	providerName             = "paddle"
	signatureHeader          = "Paddle-Signature"
	maxBodyBytes             = 256 * 1024
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// Provider implements the billing.Provider interface for Paddle
type Provider struct {
	store         entitled.Store
	logger        entitled.Logger
	metrics       billing.Metrics
	rateLimiter   *internal.RateLimiter
	webhookSecret []byte
	production    bool
}

// NewProvider creates a new Paddle billing provider
func NewProvider(config billing.Config) (*Provider, error) {
	if config.Store == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	logger := config.Logger
	if logger == nil {
		logger = &entitled.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		store:         config.Store,
		logger:        logger,
		metrics:       metrics,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret: []byte(strings.TrimSpace(config.WebhookSecret)),
		production:    config.Production,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Paddle webhooks
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	// Wrap with rate limiting
	return p.rateLimiter.Middleware(handler)
}

// verificationRequired reports whether signature verification is enforced.
// Verification only runs in production with a configured secret; without a
// secret, events are trusted unconditionally. That relaxation is for
// non-production deployments only - production must always configure the
// secret.
func (p *Provider) verificationRequired() bool {
	return p.production && len(p.webhookSecret) > 0
}

// handleWebhook processes incoming Paddle webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	select {
	case <-r.Context().Done():
		http.Error(w, "request timeout", http.StatusRequestTimeout)
		return
	default:
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, maxBodyBytes)
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

	// Verify signature over the raw, unparsed bytes. Fails closed: a missing
	// or malformed header is rejected before any reconciliation happens.
	if p.verificationRequired() {
		sig := strings.TrimSpace(r.Header.Get(signatureHeader))
		if !VerifySignature(body, sig, p.webhookSecret) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			p.metrics.RecordWebhookError(providerName, "auth_failed")
			return
		}
	}

	// Parse webhook payload. Unknown fields are tolerated; missing optional
	// fields degrade to their zero values.
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return
	}

	eventType := strings.TrimSpace(payload.EventType)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	p.logger.Info("webhook received",
		entitled.Field{Key: "provider", Value: providerName},
		entitled.Field{Key: "event_type", Value: eventType},
	)

	// Process webhook event
	if err := p.processEvent(r.Context(), &payload); err != nil {
		if errors.Is(err, errMissingEmail) {
			http.Error(w, "missing customer email", http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "missing_email")
			return
		}
		// Do not acknowledge on store failures: the provider's own delivery
		// retry is the recovery path.
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

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
