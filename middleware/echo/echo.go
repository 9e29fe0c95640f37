// Package echo provides Echo middleware for premium entitlement gating
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowblock/entitled/pkg/entitled"
)

// EmailExtractor extracts the subscriber email from an Echo context
// Return empty string if the caller is not authenticated
type EmailExtractor func(c echo.Context) string

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
	OnDenied func(c echo.Context, eval *entitled.Evaluation) error

	// OnUnauthorized is called when no email could be extracted
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that only admits premium subscribers
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Evaluator == nil {
		panic("entitled/echo: Config.Evaluator is required")
	}
	if cfg.GetEmail == nil {
		panic("entitled/echo: Config.GetEmail is required")
	}

	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = http.StatusPaymentRequired
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			email := cfg.GetEmail(c)
			if email == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return defaultUnauthorized(c)
			}

			eval, err := cfg.Evaluator.IsPremium(c.Request().Context(), email)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return defaultError(c)
			}

			if !eval.IsPremium {
				if cfg.OnDenied != nil {
					return cfg.OnDenied(c, eval)
				}
				return defaultDenied(c, eval, cfg.DeniedStatusCode)
			}

			return next(c)
		}
	}
}

// Default error handlers

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
}

func defaultDenied(c echo.Context, eval *entitled.Evaluation, statusCode int) error {
	return c.JSON(statusCode, map[string]interface{}{
		"error":     "Premium subscription required",
		"isPremium": false,
		"status":    eval.Status,
	})
}

func defaultError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
}

// Convenience extractors

// FromContext returns an EmailExtractor that gets the email from Echo context values
func FromContext(key string) EmailExtractor {
	return func(c echo.Context) string {
		if val := c.Get(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an EmailExtractor that gets the email from a header
func FromHeader(headerName string) EmailExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromQuery returns an EmailExtractor that gets the email from a query parameter
func FromQuery(queryName string) EmailExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
