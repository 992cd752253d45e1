package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
	"github.com/zatekoja/medlogistics/backend/pkg/config"
	"github.com/zatekoja/medlogistics/backend/pkg/retry"
)

const pingTimeout = 5 * time.Second

// Client owns the connection pool shared by every Postgres adapter
type Client struct {
	db   *sqlx.DB
	name string
}

// NewClient opens the pool described by cfg and waits, with backoff, until the
// server answers a ping.
func NewClient(cfg *config.DatabaseConfig) (*Client, error) {
	db, err := sqlx.Open("postgres", cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{db: db, name: cfg.Database}
	logger := observability.GetLogger().With().Str("database", cfg.Database).Logger()

	onRetry := func(attempt int, err error, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("postgres not ready")
	}
	if err := retry.DoWithLog(context.Background(), retry.DefaultConfig(), "PostgreSQL", c.ping, onRetry); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("connected to PostgreSQL")
	return c, nil
}

// NewClientFromDB wraps an existing connection, e.g. a sqlmock in tests
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: sqlx.NewDb(db, "postgres")}
}

func (c *Client) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.db.PingContext(ctx)
}

// DB returns the pool
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Name is the database name, empty for wrapped connections
func (c *Client) Name() string {
	return c.name
}

// Healthy pings the server. A pool with every connection busy is reported
// as unhealthy too.
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return err
	}
	stats := c.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		return fmt.Errorf("connection pool exhausted: %d/%d in use", stats.InUse, stats.MaxOpenConnections)
	}
	return nil
}

// WithTx runs fn in a transaction at the given isolation level. fn's error
// rolls the transaction back and is returned unchanged.
func (c *Client) WithTx(ctx context.Context, level sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, &sql.TxOptions{Isolation: level})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			observability.ComponentLogger(ctx, "postgres").Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the pool
func (c *Client) Close() error {
	return c.db.Close()
}
