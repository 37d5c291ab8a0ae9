package fx

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ExchangeRate stores the conversion factor between a currency pair.
// Pairs are stored with source < target lexicographically so the table never
// carries both a pair and its inverse. Rate is kept exactly as entered;
// Inverted records that it was entered target->source, so a read divides at
// most once, and only for the direction the operator never typed.
type ExchangeRate struct {
	ID        int64
	Source    string
	Target    string
	Rate      decimal.Decimal
	Inverted  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrRateNotFound indicates no exchange rate is configured for a pair.
	ErrRateNotFound = errors.New("fx: no rate found")
	// ErrInvalidRate indicates a non-positive rate.
	ErrInvalidRate = errors.New("fx: rate must be positive")
	// ErrInvalidCurrency indicates a malformed or unknown ISO 4217 code.
	ErrInvalidCurrency = errors.New("fx: invalid currency code")
	// ErrSamePair indicates source and target are identical.
	ErrSamePair = errors.New("fx: source and target must differ")
)

// ValidateCurrency checks the code against ISO 4217.
func ValidateCurrency(code string) error {
	if _, err := currency.ParseISO(code); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return nil
}

// NormalizePair orders a currency pair lexicographically. The second return
// reports whether the requested direction is the inverse of the stored one.
func NormalizePair(from, to string) (source, target string, inverted bool) {
	if from < to {
		return from, to, false
	}
	return to, from, true
}
