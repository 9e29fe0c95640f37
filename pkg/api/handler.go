// Package api provides the public HTTP endpoints of the entitlement
// service: a validate endpoint answering "is this email premium" and a
// health endpoint for load balancers. Both endpoints are browser-facing
// and carry permissive CORS headers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowblock/entitled/pkg/entitled"
)

const maxValidateBodyBytes = 4 * 1024

// Handler provides HTTP endpoints for entitlement validation
type Handler struct {
	config Config
}

// Validate answers whether the email in the request currently holds a
// premium entitlement. The email is read from the ?email= query parameter
// or, for POST requests, from a JSON body. The query parameter wins when
// both are present.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	email := r.URL.Query().Get("email")
	if email == "" && r.Method == http.MethodPost {
		var req validateRequest
		body := http.MaxBytesReader(w, r.Body, maxValidateBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err == nil {
			email = req.Email
		}
	}

	if entitled.NormalizeEmail(email) == "" {
		writeJSON(w, http.StatusBadRequest, ValidateResponse{
			IsPremium: false,
			Message:   "Email is required",
		})
		return
	}

	eval, err := h.config.Evaluator.IsPremium(r.Context(), email)
	if err != nil {
		if errors.Is(err, entitled.ErrInvalidEmail) {
			writeJSON(w, http.StatusBadRequest, ValidateResponse{
				IsPremium: false,
				Message:   "Email is required",
			})
			return
		}
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{
		IsPremium: eval.IsPremium,
		Status:    eval.Status,
		Plan:      string(eval.Plan),
		ExpiresAt: eval.ExpiresAt,
		Message:   eval.Message,
	})
}

// handleError reports a lookup failure. The response always carries
// isPremium false so a caller that ignores the status code still denies.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	h.config.Logger.Error("validation failed",
		entitled.Field{Key: "error", Value: err.Error()},
	)

	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	writeJSON(w, http.StatusInternalServerError, ValidateResponse{
		IsPremium: false,
		Message:   "Validation failed",
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response already sent
		return
	}
}
