package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowblock/entitled/pkg/entitled"
	"github.com/flowblock/entitled/storage/memory"
)

func testEvaluator(t *testing.T) (*entitled.Evaluator, *memory.Store) {
	t.Helper()

	store := memory.New()
	evaluator, err := entitled.NewEvaluator(store)
	if err != nil {
		t.Fatalf("Failed to create evaluator: %v", err)
	}
	return evaluator, store
}

func seedSubscriber(t *testing.T, store *memory.Store, email string, status entitled.Status) {
	t.Helper()

	periodEnd := time.Now().UTC().Add(time.Hour)
	_, err := store.Upsert(context.Background(), entitled.UpsertRecord{
		Email:                  email,
		ProviderSubscriptionID: "sub_1",
		Status:                 status,
		Plan:                   entitled.PlanPremium,
		CurrentPeriodEnd:       &periodEnd,
	})
	if err != nil {
		t.Fatalf("Failed to seed subscriber: %v", err)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_PremiumAllowed(t *testing.T) {
	evaluator, store := testEvaluator(t)
	seedSubscriber(t, store, "premium@example.com", entitled.StatusActive)

	handler := Middleware(Config{
		Evaluator: evaluator,
		GetEmail:  FromHeader("X-User-Email"),
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/premium", http.NoBody)
	req.Header.Set("X-User-Email", "premium@example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Premium caller should pass, got %d", w.Code)
	}
}

func TestMiddleware_NonPremiumDenied(t *testing.T) {
	evaluator, store := testEvaluator(t)
	seedSubscriber(t, store, "lapsed@example.com", entitled.StatusCancelled)

	handler := Middleware(Config{
		Evaluator: evaluator,
		GetEmail:  FromHeader("X-User-Email"),
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/premium", http.NoBody)
	req.Header.Set("X-User-Email", "lapsed@example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["isPremium"] != false {
		t.Error("Denial response must carry isPremium false")
	}
}

func TestMiddleware_UnknownEmailDenied(t *testing.T) {
	evaluator, _ := testEvaluator(t)

	handler := Middleware(Config{
		Evaluator: evaluator,
		GetEmail:  FromHeader("X-User-Email"),
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/premium", http.NoBody)
	req.Header.Set("X-User-Email", "nobody@example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402 for unknown subscriber, got %d", w.Code)
	}
}

func TestMiddleware_MissingEmailUnauthorized(t *testing.T) {
	evaluator, _ := testEvaluator(t)

	handler := Middleware(Config{
		Evaluator: evaluator,
		GetEmail:  FromHeader("X-User-Email"),
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/premium", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestMiddleware_OnDeniedHook(t *testing.T) {
	evaluator, store := testEvaluator(t)
	seedSubscriber(t, store, "lapsed@example.com", entitled.StatusPaused)

	var denied *entitled.Evaluation
	handler := Middleware(Config{
		Evaluator: evaluator,
		GetEmail:  FromHeader("X-User-Email"),
		OnDenied: func(w http.ResponseWriter, _ *http.Request, eval *entitled.Evaluation) {
			denied = eval
			w.WriteHeader(http.StatusForbidden)
		},
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/premium", http.NoBody)
	req.Header.Set("X-User-Email", "lapsed@example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if denied == nil {
		t.Fatal("OnDenied hook not invoked")
	}
	if denied.Status != string(entitled.StatusPaused) {
		t.Errorf("Hook received wrong evaluation: %q", denied.Status)
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 from custom handler, got %d", w.Code)
	}
}

// erroringStore simulates storage outage
type erroringStore struct{}

func (e *erroringStore) Upsert(context.Context, entitled.UpsertRecord) (*entitled.Subscriber, error) {
	return nil, errors.New("connection refused")
}

func (e *erroringStore) FindByEmail(context.Context, string) (*entitled.Subscriber, error) {
	return nil, errors.New("connection refused")
}

func (e *erroringStore) SetStatusBySubscriptionID(context.Context, string, entitled.Status) (*entitled.Subscriber, error) {
	return nil, errors.New("connection refused")
}

func TestMiddleware_StoreError(t *testing.T) {
	evaluator, err := entitled.NewEvaluator(&erroringStore{})
	if err != nil {
		t.Fatalf("Failed to create evaluator: %v", err)
	}

	handler := Middleware(Config{
		Evaluator: evaluator,
		GetEmail:  FromHeader("X-User-Email"),
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/premium", http.NoBody)
	req.Header.Set("X-User-Email", "user@example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestMiddleware_PanicsOnMissingConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing Evaluator")
		}
	}()
	Middleware(Config{GetEmail: FromHeader("X-User-Email")})
}

func TestFromContext(t *testing.T) {
	extractor := FromContext(EmailKey)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if got := extractor(req); got != "" {
		t.Errorf("Expected empty email, got %q", got)
	}

	req = req.WithContext(WithEmail(req.Context(), "user@example.com"))
	if got := extractor(req); got != "user@example.com" {
		t.Errorf("Expected email from context, got %q", got)
	}
}

func TestFromQuery(t *testing.T) {
	extractor := FromQuery("email")

	req := httptest.NewRequest(http.MethodGet, "/?email=user@example.com", http.NoBody)
	if got := extractor(req); got != "user@example.com" {
		t.Errorf("Expected email from query, got %q", got)
	}
}
