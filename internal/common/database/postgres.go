// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"query-orchestrator/internal/common/config"

	_ "github.com/lib/pq"
)

const (
	postgresConnLifetime = 5 * time.Minute
	postgresPingTimeout  = 3 * time.Second
)

// PostgresClient holds the pool backing the audit log.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens a pool sized from cfg. sql.Open does not dial; call Ping to verify the server.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	if cfg.Host == "" {
		return nil, errors.New("postgres host is not configured")
	}
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(postgresConnLifetime)
	db.SetConnMaxIdleTime(postgresConnLifetime)

	return NewPostgresFromDB(db), nil
}

// NewPostgresFromDB wraps an existing handle, e.g. one from sqlmock.
func NewPostgresFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{DB: db}
}

// Ping verifies the server answers within a short bound. It doubles as the audit readiness check.
func (c *PostgresClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
	defer cancel()
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
