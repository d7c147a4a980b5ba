package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-meta-sync/internal/mapper"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrConflict is a natural-key race caught by a unique constraint
	ErrConflict = errors.New("natural key conflict")
	// ErrLockContention covers deadlocks and serialization failures; the whole transaction may be retried
	ErrLockContention = errors.New("lock contention")
	ErrNotFound       = errors.New("not found")
)

// RecordTx is the per-record unit of work used by reconciliation
type RecordTx interface {
	FindID(ctx context.Context, table string, key map[string]any) (int64, bool, error)
	Insert(ctx context.Context, table string, fields map[string]any) (int64, error)
	Update(ctx context.Context, table string, id int64, fields map[string]any) error
}

type PostgresRepository struct {
	pool    *pgxpool.Pool
	builder *mapper.SQLBuilder
	logger  *slog.Logger
}

func NewPostgresRepository(ctx context.Context, connString string, logger *slog.Logger) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	config.MaxConnIdleTime = 10 * time.Minute
	config.MaxConnLifetime = 30 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	logger.Info("Connected to Postgres successfully", "max_conns", config.MaxConns)

	return &PostgresRepository{
		pool:    p,
		builder: mapper.NewSQLBuilder(),
		logger:  logger.With("component", "postgres"),
	}, nil
}

// WithinTx runs fn in a READ COMMITTED transaction, committing only when fn succeeds
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(RecordTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	// Rollback is a no-op after Commit
	defer tx.Rollback(ctx)

	if err := fn(&recordTx{tx: tx, builder: r.builder}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit failed: %w", classify(err))
	}
	return nil
}

// Count returns the number of rows of a meta table
func (r *PostgresRepository) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT count(*) FROM %s", pgx.Identifier{table}.Sanitize())
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *PostgresRepository) Close() {
	r.logger.Info("Closing Postgres connection pool")
	r.pool.Close()
}

type recordTx struct {
	tx      pgx.Tx
	builder *mapper.SQLBuilder
}

func (t *recordTx) FindID(ctx context.Context, table string, key map[string]any) (int64, bool, error) {
	query, args, err := t.builder.BuildLookup(table, key)
	if err != nil {
		return 0, false, err
	}

	var id int64
	err = t.tx.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup on %s failed: %w", table, classify(err))
	}
	return id, true, nil
}

func (t *recordTx) Insert(ctx context.Context, table string, fields map[string]any) (int64, error) {
	query, args, err := t.builder.BuildInsert(table, fields)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert into %s failed: %w", table, classify(err))
	}
	return id, nil
}

func (t *recordTx) Update(ctx context.Context, table string, id int64, fields map[string]any) error {
	query, args, err := t.builder.BuildUpdate(table, id, fields)
	if err != nil {
		return err
	}

	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update of %s id=%d failed: %w", table, id, classify(err))
	}
	return nil
}

// classify maps Postgres error codes onto the package sentinels, keeping the original error
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s (%s)", ErrConflict, pgErr.ConstraintName, pgErr.Message)
	case "40001", "40P01", "55P03":
		return fmt.Errorf("%w: %s", ErrLockContention, pgErr.Message)
	default:
		return err
	}
}
