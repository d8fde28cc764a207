// Package history keeps every successfully scraped quote in Postgres.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"dolarprovider/internal/quote"
)

// ErrNotFound is returned by Latest when nothing was recorded for a kind.
var ErrNotFound = errors.New("no recorded quote")

// DB is the subset of pgxpool.Pool used here.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

const createTable = `CREATE TABLE IF NOT EXISTS dollar_quotes (
	id             BIGSERIAL PRIMARY KEY,
	dollar         TEXT NOT NULL,
	code           TEXT NOT NULL,
	buy            DOUBLE PRECISION,
	sell           DOUBLE PRECISION,
	variation      DOUBLE PRECISION,
	variation_text TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL,
	fetched_at     TIMESTAMPTZ NOT NULL
)`

const createIndex = `CREATE INDEX IF NOT EXISTS dollar_quotes_code_fetched_at_idx
	ON dollar_quotes (code, fetched_at DESC)`

const insertQuote = `INSERT INTO dollar_quotes
	(dollar, code, buy, sell, variation, variation_text, source, fetched_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const selectLatest = `SELECT dollar, code, buy, sell, variation, variation_text, source, fetched_at
	FROM dollar_quotes WHERE code = $1 ORDER BY fetched_at DESC LIMIT 1`

// Connect opens a pool and makes sure the table exists.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range []string{createTable, createIndex} {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Insert stores one record. Error records are rejected.
func Insert(ctx context.Context, db DB, q quote.Quote) error {
	if !q.OK() {
		return fmt.Errorf("refusing to record failed quote for %s: %s", q.Dollar, q.Error)
	}
	_, err := db.Exec(ctx, insertQuote,
		q.Dollar, q.Code, q.Buy, q.Sell, q.Variation, q.VariationText, q.Source, q.Timestamp)
	if err != nil {
		return fmt.Errorf("insert quote %s: %w", q.Dollar, err)
	}
	return nil
}

// Latest returns the most recent record for k.
func Latest(ctx context.Context, db DB, k quote.Kind) (quote.Quote, error) {
	var q quote.Quote
	err := db.QueryRow(ctx, selectLatest, k.Code).Scan(
		&q.Dollar, &q.Code, &q.Buy, &q.Sell, &q.Variation, &q.VariationText, &q.Source, &q.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return quote.Quote{}, fmt.Errorf("%w for %s", ErrNotFound, k.Label)
	}
	if err != nil {
		return quote.Quote{}, fmt.Errorf("select latest %s: %w", k.Label, err)
	}
	q.Timestamp = q.Timestamp.UTC()
	return q, nil
}

// Recorder wraps a provider and records every successful quote it returns.
// Recording failures are logged and never affect the result.
type Recorder struct {
	P      quote.Provider
	DB     DB
	Logger *zap.Logger
}

func (r *Recorder) Name() string { return r.P.Name() }

func (r *Recorder) Fetch(ctx context.Context, kinds []quote.Kind) ([]quote.Quote, error) {
	qs, err := r.P.Fetch(ctx, kinds)
	if err != nil || r.DB == nil {
		return qs, err
	}
	for _, q := range qs {
		if !q.OK() {
			continue
		}
		if err := Insert(ctx, r.DB, q); err != nil && r.Logger != nil {
			r.Logger.Warn("history insert failed", zap.String("dollar", q.Dollar), zap.Error(err))
		}
	}
	return qs, nil
}
