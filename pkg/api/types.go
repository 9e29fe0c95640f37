package api

import "time"

// ValidateResponse is the JSON body returned by the validate endpoint
type ValidateResponse struct {
	IsPremium bool       `json:"isPremium"`
	Status    string     `json:"status,omitempty"` // subscriber status or "not_found"
	Plan      string     `json:"plan,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// HealthResponse is the JSON body returned by the health endpoint
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// validateRequest is the optional POST body of the validate endpoint
type validateRequest struct {
	Email string `json:"email"`
}
