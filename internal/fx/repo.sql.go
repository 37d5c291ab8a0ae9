package fx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists exchange rates in PostgreSQL. The exchange_rates table
// carries CHECK (source_currency < target_currency) and a unique pair index.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetRate(ctx context.Context, source, target string) (ExchangeRate, error) {
	if r == nil {
		return ExchangeRate{}, errors.New("fx repository not initialised")
	}
	var rate ExchangeRate
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT id, source_currency, target_currency, rate::text, inverted, created_at, updated_at
FROM exchange_rates WHERE source_currency=$1 AND target_currency=$2`, source, target).
		Scan(&rate.ID, &rate.Source, &rate.Target, &raw, &rate.Inverted, &rate.CreatedAt, &rate.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ExchangeRate{}, ErrRateNotFound
		}
		return ExchangeRate{}, err
	}
	rate.Rate, err = decimal.NewFromString(raw)
	if err != nil {
		return ExchangeRate{}, err
	}
	return rate, nil
}

func (r *Repository) UpsertRate(ctx context.Context, source, target string, value decimal.Decimal, inverted bool) (ExchangeRate, error) {
	if r == nil {
		return ExchangeRate{}, errors.New("fx repository not initialised")
	}
	var rate ExchangeRate
	var raw string
	err := r.pool.QueryRow(ctx, `INSERT INTO exchange_rates (source_currency, target_currency, rate, inverted, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (source_currency, target_currency)
DO UPDATE SET rate = EXCLUDED.rate, inverted = EXCLUDED.inverted, updated_at = NOW()
RETURNING id, source_currency, target_currency, rate::text, inverted, created_at, updated_at`, source, target, value.String(), inverted).
		Scan(&rate.ID, &rate.Source, &rate.Target, &raw, &rate.Inverted, &rate.CreatedAt, &rate.UpdatedAt)
	if err != nil {
		return ExchangeRate{}, err
	}
	rate.Rate, err = decimal.NewFromString(raw)
	if err != nil {
		return ExchangeRate{}, err
	}
	return rate, nil
}

func (r *Repository) ListRates(ctx context.Context) ([]ExchangeRate, error) {
	if r == nil {
		return nil, errors.New("fx repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, source_currency, target_currency, rate::text, inverted, created_at, updated_at
FROM exchange_rates ORDER BY source_currency, target_currency`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rates []ExchangeRate
	for rows.Next() {
		var rate ExchangeRate
		var raw string
		if err := rows.Scan(&rate.ID, &rate.Source, &rate.Target, &raw, &rate.Inverted, &rate.CreatedAt, &rate.UpdatedAt); err != nil {
			return nil, err
		}
		rate.Rate, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}
