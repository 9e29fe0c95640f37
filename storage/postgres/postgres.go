// Package postgres provides a PostgreSQL implementation of the
// entitled.Store interface. Upserts use INSERT ... ON CONFLICT so two
// concurrent writes for the same email resolve in a single atomic statement
// rather than a read-then-write.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowblock/entitled/pkg/entitled"
)

// Store implements entitled.Store using PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:   pool,
		config: config,
	}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InitSchema creates the subscribers table if it does not exist.
// created_at is set by the insert default and is never touched by updates.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS subscribers (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			provider_customer_id VARCHAR(255),
			provider_subscription_id VARCHAR(255),
			status VARCHAR(50) NOT NULL DEFAULT 'inactive',
			plan VARCHAR(50) NOT NULL DEFAULT 'free',
			current_period_end TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create subscribers table: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_subscribers_subscription_id
			ON subscribers (provider_subscription_id)`)
	if err != nil {
		return fmt.Errorf("failed to create subscription index: %w", err)
	}

	return nil
}

// Upsert implements entitled.Store with a single conflict-resolving write
func (s *Store) Upsert(ctx context.Context, rec entitled.UpsertRecord) (*entitled.Subscriber, error) {
	email := entitled.NormalizeEmail(rec.Email)
	if email == "" {
		return nil, entitled.ErrInvalidRecord
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO subscribers
			(email, provider_customer_id, provider_subscription_id, status, plan, current_period_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (email) DO UPDATE SET
			provider_customer_id = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			status = EXCLUDED.status,
			plan = EXCLUDED.plan,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = NOW()
		RETURNING email, COALESCE(provider_customer_id, ''), COALESCE(provider_subscription_id, ''),
			status, plan, current_period_end, created_at, updated_at`,
		email, rec.ProviderCustomerID, rec.ProviderSubscriptionID,
		string(rec.Status), string(rec.Plan), rec.CurrentPeriodEnd,
	)

	sub, err := scanSubscriber(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscriber: %w", err)
	}
	return sub, nil
}

// FindByEmail implements entitled.Store
func (s *Store) FindByEmail(ctx context.Context, email string) (*entitled.Subscriber, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT email, COALESCE(provider_customer_id, ''), COALESCE(provider_subscription_id, ''),
			status, plan, current_period_end, created_at, updated_at
		FROM subscribers
		WHERE email = $1`,
		entitled.NormalizeEmail(email),
	)

	sub, err := scanSubscriber(row)
	if err == pgx.ErrNoRows {
		return nil, entitled.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return sub, nil
}

// SetStatusBySubscriptionID implements entitled.Store
func (s *Store) SetStatusBySubscriptionID(
	ctx context.Context, subscriptionID string, status entitled.Status,
) (*entitled.Subscriber, error) {
	if subscriptionID == "" {
		return nil, entitled.ErrSubscriberNotFound
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE subscribers
		SET status = $1, updated_at = NOW()
		WHERE provider_subscription_id = $2
		RETURNING email, COALESCE(provider_customer_id, ''), COALESCE(provider_subscription_id, ''),
			status, plan, current_period_end, created_at, updated_at`,
		string(status), subscriptionID,
	)

	sub, err := scanSubscriber(row)
	if err == pgx.ErrNoRows {
		return nil, entitled.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription status: %w", err)
	}
	return sub, nil
}

func scanSubscriber(row pgx.Row) (*entitled.Subscriber, error) {
	var sub entitled.Subscriber
	var periodEnd *time.Time

	err := row.Scan(
		&sub.Email,
		&sub.ProviderCustomerID,
		&sub.ProviderSubscriptionID,
		&sub.Status,
		&sub.Plan,
		&periodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.CurrentPeriodEnd = periodEnd
	return &sub, nil
}
