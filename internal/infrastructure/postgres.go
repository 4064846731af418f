package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	if err := client.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) Migrate() error {
	ctx := context.Background()

	// Registry rules: ordered disposition predicates, human-editable.
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS registry_rules (
			id SERIAL PRIMARY KEY,
			code VARCHAR(50) UNIQUE NOT NULL,
			description VARCHAR(255) NOT NULL,
			rule_type VARCHAR(20) NOT NULL,      -- automated/human
			predicate JSONB NOT NULL,            -- structured match condition
			position INT NOT NULL DEFAULT 0,     -- evaluation order, first match wins
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create registry_rules table: %w", err)
	}

	// Closed-conversation projection, keyed by lead for audit queries.
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_history (
			id SERIAL PRIMARY KEY,
			conversation_id VARCHAR(64) UNIQUE NOT NULL,
			lead_id VARCHAR(64) NOT NULL,
			channel VARCHAR(20) NOT NULL,
			operator_id VARCHAR(64),
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP NOT NULL,
			disposition_code VARCHAR(50) NOT NULL,
			disposition_description VARCHAR(255),
			call_seconds INT DEFAULT 0,
			transcript TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("create conversation_history table: %w", err)
	}
	p.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_history_lead ON conversation_history (lead_id, closed_at);")

	// Operator directory mirror, fed by the external presence source.
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS agents (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			availability VARCHAR(20) NOT NULL DEFAULT 'offline',
			active_conversation_count INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create agents table: %w", err)
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
