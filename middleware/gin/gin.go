// Package gin provides Gin middleware for premium entitlement gating
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/flowblock/entitled/pkg/entitled"
)

// EmailExtractor extracts the subscriber email from a Gin context
// Return empty string if the caller is not authenticated
type EmailExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Evaluator decides premium entitlement for an email (required)
	Evaluator *entitled.Evaluator

	// GetEmail extracts the subscriber email from the context (required)
	GetEmail EmailExtractor

	// DeniedStatusCode is the HTTP status code for non-premium callers
	// Default: 402 (Payment Required)
	DeniedStatusCode int

	// OnDenied is called when the caller is not premium
	// If nil, returns DeniedStatusCode with a JSON body
	OnDenied func(c *gongin.Context, eval *entitled.Evaluation)

	// OnUnauthorized is called when no email could be extracted
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that only admits premium subscribers
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Evaluator == nil {
		panic("entitled/gin: Config.Evaluator is required")
	}
	if cfg.GetEmail == nil {
		panic("entitled/gin: Config.GetEmail is required")
	}

	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = http.StatusPaymentRequired
	}

	return func(c *gongin.Context) {
		email := cfg.GetEmail(c)
		if email == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				defaultUnauthorized(c)
			}
			c.Abort()
			return
		}

		eval, err := cfg.Evaluator.IsPremium(c.Request.Context(), email)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				defaultError(c)
			}
			c.Abort()
			return
		}

		if !eval.IsPremium {
			if cfg.OnDenied != nil {
				cfg.OnDenied(c, eval)
			} else {
				defaultDenied(c, eval, cfg.DeniedStatusCode)
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

// Default error handlers

func defaultUnauthorized(c *gongin.Context) {
	c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
}

func defaultDenied(c *gongin.Context, eval *entitled.Evaluation, statusCode int) {
	c.JSON(statusCode, gongin.H{
		"error":     "Premium subscription required",
		"isPremium": false,
		"status":    eval.Status,
	})
}

func defaultError(c *gongin.Context) {
	c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
}

// Convenience extractors

// FromContext returns an EmailExtractor that gets the email from Gin context values
func FromContext(key string) EmailExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an EmailExtractor that gets the email from a header
func FromHeader(headerName string) EmailExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromQuery returns an EmailExtractor that gets the email from a query parameter
func FromQuery(queryName string) EmailExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}
