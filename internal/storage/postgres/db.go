// Package postgres is the run ledger: a record of every batch and the
// outcome of each name in it, kept in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabase is returned when the ledger is used without a database URL.
var ErrNoDatabase = errors.New("database url is not configured")

// Open connects to the ledger database and checks that it answers.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, ErrNoDatabase
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunRepository stores batches and their outcomes.
type RunRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewRunRepository(pool *pgxpool.Pool) (*RunRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("run repository: pool is nil")
	}
	return &RunRepository{pool: pool}, nil
}

// WithTx runs fn against a repository bound to one transaction, committing
// when fn returns nil. Nested calls reuse the outer transaction.
func (r *RunRepository) WithTx(ctx context.Context, fn func(context.Context, *RunRepository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &RunRepository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Tx is the transaction a repository handed to a WithTx callback is bound
// to, so other writers can join it. It is nil outside WithTx.
func (r *RunRepository) Tx() pgx.Tx {
	return r.tx
}

// Pool is the pool the repository was created with.
func (r *RunRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *RunRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}
