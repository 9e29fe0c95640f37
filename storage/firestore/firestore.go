// Package firestore provides a Firestore implementation of the
// entitled.Store interface. Each subscriber is a document keyed by the
// normalized email; upserts run in a transaction so createdAt survives
// replays and concurrent writes.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/flowblock/entitled/pkg/entitled"
)

// Store implements entitled.Store using Google Cloud Firestore
type Store struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore store configuration
type Config struct {
	// Collection is the Firestore collection for subscriber documents
	// Default: "subscribers"
	Collection string
}

// New creates a new Firestore store
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.Collection == "" {
		config.Collection = "subscribers"
	}

	return &Store{
		client:     client,
		collection: config.Collection,
	}, nil
}

// Upsert implements entitled.Store
func (s *Store) Upsert(ctx context.Context, rec entitled.UpsertRecord) (*entitled.Subscriber, error) {
	email := entitled.NormalizeEmail(rec.Email)
	if email == "" {
		return nil, entitled.ErrInvalidRecord
	}

	doc := s.client.Collection(s.collection).Doc(email)
	now := time.Now().UTC()

	var result *entitled.Subscriber
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		createdAt := now
		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil && snap.Exists() {
			if existing := getTime(snap.Data(), "createdAt"); !existing.IsZero() {
				createdAt = existing
			}
		}

		data := map[string]interface{}{
			"email":                  email,
			"providerCustomerId":     rec.ProviderCustomerID,
			"providerSubscriptionId": rec.ProviderSubscriptionID,
			"status":                 string(rec.Status),
			"plan":                   string(rec.Plan),
			"createdAt":              createdAt,
			"updatedAt":              now,
		}
		if rec.CurrentPeriodEnd != nil {
			data["currentPeriodEnd"] = rec.CurrentPeriodEnd.UTC()
		} else {
			data["currentPeriodEnd"] = nil
		}

		if err := tx.Set(doc, data); err != nil {
			return err
		}

		result = &entitled.Subscriber{
			Email:                  email,
			ProviderCustomerID:     rec.ProviderCustomerID,
			ProviderSubscriptionID: rec.ProviderSubscriptionID,
			Status:                 rec.Status,
			Plan:                   rec.Plan,
			CurrentPeriodEnd:       rec.CurrentPeriodEnd,
			CreatedAt:              createdAt,
			UpdatedAt:              now,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	return result, nil
}

// FindByEmail implements entitled.Store
func (s *Store) FindByEmail(ctx context.Context, email string) (*entitled.Subscriber, error) {
	doc := s.client.Collection(s.collection).Doc(entitled.NormalizeEmail(email))
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, entitled.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	if !snap.Exists() {
		return nil, entitled.ErrSubscriberNotFound
	}

	return subscriberFromData(snap.Data()), nil
}

// SetStatusBySubscriptionID implements entitled.Store
func (s *Store) SetStatusBySubscriptionID(
	ctx context.Context, subscriptionID string, newStatus entitled.Status,
) (*entitled.Subscriber, error) {
	if subscriptionID == "" {
		return nil, entitled.ErrSubscriberNotFound
	}

	iter := s.client.Collection(s.collection).
		Where("providerSubscriptionId", "==", subscriptionID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, entitled.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriber: %w", err)
	}

	now := time.Now().UTC()
	_, err = snap.Ref.Update(ctx, []firestore.Update{
		{Path: "status", Value: string(newStatus)},
		{Path: "updatedAt", Value: now},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription status: %w", err)
	}

	sub := subscriberFromData(snap.Data())
	sub.Status = newStatus
	sub.UpdatedAt = now
	return sub, nil
}

func subscriberFromData(data map[string]interface{}) *entitled.Subscriber {
	sub := &entitled.Subscriber{
		Email:                  getString(data, "email"),
		ProviderCustomerID:     getString(data, "providerCustomerId"),
		ProviderSubscriptionID: getString(data, "providerSubscriptionId"),
		Status:                 entitled.Status(getString(data, "status")),
		Plan:                   entitled.Plan(getString(data, "plan")),
		CreatedAt:              getTime(data, "createdAt"),
		UpdatedAt:              getTime(data, "updatedAt"),
	}

	if periodEnd, ok := data["currentPeriodEnd"].(time.Time); ok && !periodEnd.IsZero() {
		sub.CurrentPeriodEnd = &periodEnd
	}

	return sub
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
