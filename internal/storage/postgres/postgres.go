// Package postgres provides a PostgreSQL-backed expense ledger.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"settlement/internal/core"
	"settlement/internal/ledger"
)

//go:embed 001_create_expenses.sql
var migrationSQL string

var _ ledger.Store = (*Store)(nil)

// Config holds the PostgreSQL store configuration.
type Config struct {
	// URL is a libpq connection string or postgres:// URL.
	URL string
	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
	// ConnectTimeout bounds the initial ping.
	ConnectTimeout time.Duration
}

// Store keeps the ledger in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects, verifies the connection and applies the schema.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 5
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database)

	s := &Store{pool: pool, logger: logger}
	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Insert implements ledger.Store.
func (s *Store) Insert(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	cats := e.Categories
	if cats == nil {
		cats = []string{}
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO expenses (amount, categories, occurred_at) VALUES ($1::numeric, $2, $3) RETURNING id`,
		core.FormatAmount(e.Amount), cats, e.OccurredAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting expense: %w", err)
	}
	return id, nil
}

const selectColumns = `id, amount::text, categories, occurred_at`

// MostRecent implements ledger.Store.
func (s *Store) MostRecent(ctx context.Context) (core.Expense, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM expenses ORDER BY occurred_at DESC, id DESC LIMIT 1`)
	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, core.ErrNoExpenses
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("querying most recent expense: %w", err)
	}
	return e, nil
}

// FindInRange implements ledger.Store.
func (s *Store) FindInRange(ctx context.Context, start, end time.Time) ([]core.Expense, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM expenses WHERE occurred_at BETWEEN $1 AND $2 ORDER BY occurred_at DESC, id DESC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("querying expenses in range: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expenses: %w", err)
	}
	return out, nil
}

// AddCategory implements ledger.Store.
func (s *Store) AddCategory(ctx context.Context, id int64, label string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM expenses WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking expense %d: %w", id, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE expenses SET categories = array_append(categories, $2) WHERE id = $1`, id, label); err != nil {
		return fmt.Errorf("appending category: %w", err)
	}
	return tx.Commit(ctx)
}

func scanExpense(row pgx.Row) (core.Expense, error) {
	var (
		e      core.Expense
		amount string
	)
	if err := row.Scan(&e.ID, &amount, &e.Categories, &e.OccurredAt); err != nil {
		return core.Expense{}, err
	}
	parsed, err := core.ParseAmount(amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	e.Amount = parsed
	if e.Categories == nil {
		e.Categories = []string{}
	}
	return e, nil
}
