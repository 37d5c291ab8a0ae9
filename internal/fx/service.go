package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/shared"
)

// StorePort describes the persistence operations used by the service.
type StorePort interface {
	GetRate(ctx context.Context, source, target string) (ExchangeRate, error)
	UpsertRate(ctx context.Context, source, target string, rate decimal.Decimal, inverted bool) (ExchangeRate, error)
	ListRates(ctx context.Context) ([]ExchangeRate, error)
}

// Service resolves and converts amounts between currencies.
type Service struct {
	store  StorePort
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewService constructs the currency engine. The cache client is optional;
// cache failures always degrade to a store lookup.
func NewService(store StorePort, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{store: store, cache: cache, ttl: ttl, logger: logger}
}

// Rate resolves the conversion factor from one currency into another.
// Identical currencies always resolve to 1.
func (s *Service) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if err := ValidateCurrency(from); err != nil {
		return decimal.Zero, err
	}
	if err := ValidateCurrency(to); err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := s.cachedRate(ctx, from, to); ok {
		return rate, nil
	}
	source, target, flipped := NormalizePair(from, to)
	stored, err := s.store.GetRate(ctx, source, target)
	if err != nil {
		if errors.Is(err, ErrRateNotFound) {
			return decimal.Zero, fmt.Errorf("%w for %s->%s", ErrRateNotFound, from, to)
		}
		return decimal.Zero, err
	}
	rate := stored.Rate
	if flipped != stored.Inverted {
		rate = decimal.NewFromInt(1).Div(stored.Rate)
	}
	s.storeCachedRate(ctx, from, to, rate)
	return rate, nil
}

// Convert re-expresses amount from one currency into another. A nil explicit
// rate triggers a store lookup; an explicit rate always wins over the store.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string, explicit *decimal.Decimal) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	if explicit != nil {
		if explicit.Sign() <= 0 {
			return decimal.Zero, ErrInvalidRate
		}
		return amount.Mul(*explicit), nil
	}
	rate, err := s.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// SetRate records a pair under its lexicographically ordered key. The rate is
// stored as entered, never divided, so the factor the operator typed is the
// factor conversions in that direction use.
func (s *Service) SetRate(ctx context.Context, from, to string, rate decimal.Decimal) (ExchangeRate, error) {
	if err := ValidateCurrency(from); err != nil {
		return ExchangeRate{}, err
	}
	if err := ValidateCurrency(to); err != nil {
		return ExchangeRate{}, err
	}
	if from == to {
		return ExchangeRate{}, ErrSamePair
	}
	if rate.Sign() <= 0 {
		return ExchangeRate{}, ErrInvalidRate
	}
	source, target, inverted := NormalizePair(from, to)
	stored, err := s.store.UpsertRate(ctx, source, target, rate, inverted)
	if err != nil {
		return ExchangeRate{}, err
	}
	s.invalidate(ctx, source, target)
	return stored, nil
}

// ListRates returns every configured pair.
func (s *Service) ListRates(ctx context.Context) ([]ExchangeRate, error) {
	return s.store.ListRates(ctx)
}

func (s *Service) cachedRate(ctx context.Context, from, to string) (decimal.Decimal, bool) {
	if s.cache == nil {
		return decimal.Zero, false
	}
	raw, err := s.cache.Get(ctx, shared.FxRateCacheKey(from, to)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warn("fx cache read", slog.Any("error", err))
		}
		return decimal.Zero, false
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return rate, true
}

func (s *Service) storeCachedRate(ctx context.Context, from, to string, rate decimal.Decimal) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, shared.FxRateCacheKey(from, to), rate.String(), s.ttl).Err(); err != nil && s.logger != nil {
		s.logger.Warn("fx cache write", slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, source, target string) {
	if s.cache == nil {
		return
	}
	keys := []string{
		shared.FxRateCacheKey(source, target),
		shared.FxRateCacheKey(target, source),
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil && s.logger != nil {
		s.logger.Warn("fx cache invalidate", slog.Any("error", err))
	}
}
