// Package stripe implements the billing.Provider interface for Stripe
// webhooks. Subscription lifecycle events are verified with the Stripe
// SDK's signed-event construction and reconciled into the subscriber
// store; customer emails are resolved through the Stripe API.
package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/flowblock/entitled/pkg/billing"
	"github.com/flowblock/entitled/pkg/billing/internal"
	"github.com/flowblock/entitled/pkg/entitled"
)

const (
	providerName             = "stripe"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config

	// StripeAPIKey authenticates outbound API calls (customer lookups)
	StripeAPIKey string

	// StripeWebhookSecret is the endpoint signing secret (whsec_...)
	StripeWebhookSecret string
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	store         entitled.Store
	logger        entitled.Logger
	metrics       billing.Metrics
	rateLimiter   *internal.RateLimiter
	webhookSecret []byte
	stripeClient  *stripe.Client
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
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
		webhookSecret: []byte(strings.TrimSpace(config.StripeWebhookSecret)),
		stripeClient:  stripe.NewClient(apiKey),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	// Wrap with rate limiting
	return p.rateLimiter.Middleware(handler)
}
