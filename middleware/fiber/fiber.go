// Package fiber provides Fiber middleware for premium entitlement gating
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/flowblock/entitled/pkg/entitled"
)

// EmailExtractor extracts the subscriber email from a Fiber context
// Return empty string if the caller is not authenticated
type EmailExtractor func(c *fiber.Ctx) string

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
	OnDenied func(c *fiber.Ctx, eval *entitled.Evaluation) error

	// OnUnauthorized is called when no email could be extracted
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that only admits premium subscribers
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Evaluator == nil {
		panic("entitled/fiber: Config.Evaluator is required")
	}
	if cfg.GetEmail == nil {
		panic("entitled/fiber: Config.GetEmail is required")
	}

	if cfg.DeniedStatusCode == 0 {
		cfg.DeniedStatusCode = fiber.StatusPaymentRequired
	}

	return func(c *fiber.Ctx) error {
		email := cfg.GetEmail(c)
		if email == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return defaultUnauthorized(c)
		}

		// Fiber uses fasthttp, so c.UserContext() carries the context.Context
		eval, err := cfg.Evaluator.IsPremium(c.UserContext(), email)
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

		return c.Next()
	}
}

// Default error handlers

func defaultUnauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

func defaultDenied(c *fiber.Ctx, eval *entitled.Evaluation, statusCode int) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"error":     "Premium subscription required",
		"isPremium": false,
		"status":    eval.Status,
	})
}

func defaultError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
}

// Convenience extractors

// FromContext returns an EmailExtractor that gets the email from Fiber context values (Locals)
func FromContext(key string) EmailExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an EmailExtractor that gets the email from a header
// Fiber v2 uses c.Get() for headers (not c.GetHeader())
func FromHeader(headerName string) EmailExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromQuery returns an EmailExtractor that gets the email from a query parameter
func FromQuery(queryName string) EmailExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(queryName)
	}
}
