package api

import (
	"fmt"
	"net/http"

	"github.com/flowblock/entitled/pkg/entitled"
)

// Config holds configuration for the validation API handler
type Config struct {
	// Evaluator decides premium entitlement for an email (required)
	Evaluator *entitled.Evaluator

	// ServiceName reported by the health endpoint
	// Default: "entitled"
	ServiceName string

	// Version reported by the health endpoint
	// Default: "dev"
	Version string

	// Logger is optional; defaults to NoopLogger
	Logger entitled.Logger

	// OnError handles internal errors
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Evaluator == nil {
		return fmt.Errorf("evaluator is required")
	}
	return nil
}

// NewHandler creates a new validation API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.ServiceName == "" {
		config.ServiceName = "entitled"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.Logger == nil {
		config.Logger = &entitled.NoopLogger{}
	}

	return &Handler{
		config: config,
	}, nil
}
