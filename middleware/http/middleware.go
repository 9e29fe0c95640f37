// Package http provides HTTP middleware for premium entitlement gating
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/flowblock/entitled/pkg/entitled"
)

// EmailExtractor extracts the subscriber email from an HTTP request
// Return empty string if the caller is not authenticated
type EmailExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Evaluator decides premium entitlement for an email (required)
	Evaluator *entitled.Evaluator

	// GetEmail extracts the subscriber email from the request (required)
	GetEmail EmailExtractor

	// DeniedStatusCode is the HTTP status code for non-premium callers
	// Default: 402 (Payment Required)
	DeniedStatusCode int

	// OnDenied is called when the caller is not premium
	// If nil, returns DeniedStatusCode with a JSON body
	OnDenied func(w http.ResponseWriter, r *http.Request, eval *entitled.Evaluation)

	// OnUnauthorized is called when no email could be extracted
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that only admits premium subscribers
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Evaluator == nil {
		panic("entitled/http: Config.Evaluator is required")
	}
	if config.GetEmail == nil {
		panic("entitled/http: Config.GetEmail is required")
	}

	if config.DeniedStatusCode == 0 {
		config.DeniedStatusCode = http.StatusPaymentRequired
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := config.GetEmail(r)
			if email == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			eval, err := config.Evaluator.IsPremium(r.Context(), email)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if !eval.IsPremium {
				if config.OnDenied != nil {
					config.OnDenied(w, r, eval)
				} else {
					defaultDenied(w, eval, config.DeniedStatusCode)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates an HTTP middleware that only admits premium subscribers (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func defaultDenied(w http.ResponseWriter, eval *entitled.Evaluation, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     "Premium subscription required",
		"isPremium": false,
		"status":    eval.Status,
	})
}

// Common extractors for convenience

// ContextKey is a type for context keys
type ContextKey string

const (
	// EmailKey is the context key for the subscriber email
	EmailKey ContextKey = "entitled:email"
)

// FromContext returns an EmailExtractor that gets the email from request context
func FromContext(key ContextKey) EmailExtractor {
	return func(r *http.Request) string {
		if email, ok := r.Context().Value(key).(string); ok {
			return email
		}
		return ""
	}
}

// FromHeader returns an EmailExtractor that gets the email from a header
func FromHeader(headerName string) EmailExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromQuery returns an EmailExtractor that gets the email from a query parameter
func FromQuery(queryName string) EmailExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(queryName)
	}
}

// WithEmail adds the subscriber email to a request context
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, EmailKey, email)
}
