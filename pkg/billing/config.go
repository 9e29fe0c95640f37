package billing

import (
	"github.com/flowblock/entitled/pkg/entitled"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Store is the subscriber store that webhook events are reconciled into
	Store entitled.Store

	// WebhookSecret is the shared secret used to verify incoming webhook
	// requests. When empty, signature verification is skipped and events
	// are trusted unconditionally; that relaxation exists for local and
	// staging setups and must never be relied on in production.
	WebhookSecret string

	// Production marks the deployment as production. Signature verification
	// is enforced only when Production is true AND WebhookSecret is set.
	Production bool

	// APIKey is used for outbound API calls to the billing provider
	// (e.g. resolving a customer's email). Not every provider needs it.
	APIKey string

	// Logger is an optional structured logger. If nil, logging is a no-op.
	Logger entitled.Logger

	// Metrics is an optional metrics collector for tracking billing provider
	// operations. If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus.
	Metrics Metrics
}
