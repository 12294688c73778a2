package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	connectBackoff = 2 * time.Second
	connectTimeout = 10 * time.Second
)

// Store is the Postgres persistence layer. Reads run on the shared pool;
// writes go through a Tx leased from Begin for the duration of one batch.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects a pool for the given DSN. Connection establishment is retried
// on a constant backoff until the connect window elapses.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var pool *pgxpool.Pool
	connect := func() error {
		p, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build pool: %w", err))
		}
		if err := p.Ping(connectCtx); err != nil {
			p.Close()
			logger.Warn("pg connect failed", zap.Error(err))
			return err
		}
		pool = p
		return nil
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(connectBackoff), connectCtx)
	if err := backoff.Retry(connect, bo); err != nil {
		return nil, fmt.Errorf("connect pg: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Begin leases one connection and opens the ingestion transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, logger: s.logger}, nil
}
