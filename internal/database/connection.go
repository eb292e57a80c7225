package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rideshare/seat-booking-backend/internal/config"
)

const connectTimeout = 10 * time.Second

// DB is the subset of the connection used outside the repositories
type DB interface {
	PingContext(ctx context.Context) error
	Close() error
}

// PostgresDB wraps the shared sqlx handle injected into every repository
type PostgresDB struct {
	*sqlx.DB
}

// NewConnection opens the PostgreSQL pool and waits until it answers
func NewConnection(ctx context.Context, cfg config.DatabaseConfig) (*PostgresDB, error) {
	dsn, err := poolerSafeDSN(cfg.URL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)
	}

	return &PostgresDB{DB: db}, nil
}

// poolerSafeDSN forces the simple query protocol, which transaction-mode
// poolers such as pgbouncer require
func poolerSafeDSN(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("database URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid database URL: %w", err)
	}
	q := u.Query()
	if q.Get("prefer_simple_protocol") == "" {
		q.Set("prefer_simple_protocol", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
