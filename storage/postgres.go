package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config tunes the Postgres connection pool.
type Config struct {
	URL             string        `yaml:"url"`
	PingTimeout     time.Duration `yaml:"ping_timeout"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// DefaultConfig returns sane pool defaults; URL must still be set.
func DefaultConfig() Config {
	return Config{
		PingTimeout:     2 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("storage: url is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("storage: ping_timeout must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("storage: max_open_conns must be >= 1")
	}
	if c.MaxIdleConns < 0 {
		return errors.New("storage: max_idle_conns must be >= 0")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("storage: max_idle_conns must be <= max_open_conns")
	}
	return nil
}

// Postgres implements Querier over database/sql with the pgx driver.
type Postgres struct {
	db *sql.DB
}

// Open connects and verifies the pool within the configured ping timeout.
func Open(ctx context.Context, cfg Config) (*Postgres, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing pool, mainly for tests and embedding callers.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Query(ctx context.Context, query string, args ...any) (Result, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	return collectRows(rows)
}

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Query(ctx context.Context, query string, args ...any) (Result, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	return collectRows(rows)
}

func (t *pgTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *pgTx) Rollback(context.Context) error { return t.tx.Rollback() }

func collectRows(rows *sql.Rows) (Result, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	var out Result
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	out.RowCount = len(out.Rows)
	return out, nil
}
