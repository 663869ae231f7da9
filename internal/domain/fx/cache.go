package fx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mailledger/internal/shared/logger"
)

// Cache memoizes provider rates in the repository.
type Cache struct {
	repo     Repository
	provider Provider
	now      func() time.Time
	log      zerolog.Logger
}

// NewCache creates a rate cache. provider may be nil for lookup-only use.
func NewCache(repo Repository, provider Provider) *Cache {
	return &Cache{
		repo:     repo,
		provider: provider,
		now:      time.Now,
		log:      logger.Nop(),
	}
}

// WithLogger returns the cache with structured logging enabled
func (c *Cache) WithLogger(log zerolog.Logger) *Cache {
	c.log = log.With().Str("component", "fx_cache").Logger()
	return c
}

// ProviderName returns the configured provider's name, or "" when none is set.
func (c *Cache) ProviderName() string {
	if c.provider == nil {
		return ""
	}
	return c.provider.Name()
}

// Lookup returns the cached rate for key. Same-currency pairs yield 1
// without touching storage. A miss is ErrRateNotCached.
func (c *Cache) Lookup(ctx context.Context, key Key) (decimal.Decimal, error) {
	if key.SameCurrency() {
		return decimal.NewFromInt(1), nil
	}

	cached, err := c.repo.Get(ctx, key)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to read fx cache: %w", err)
	}
	if cached == nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", key, ErrRateNotCached)
	}
	return cached.Rate, nil
}

// FetchAndCache asks the provider for a rate and stores it. Provider
// failures and non-finite or non-positive rates are ErrUpstreamUnavailable
// and leave the cache untouched.
func (c *Cache) FetchAndCache(ctx context.Context, key Key) (decimal.Decimal, error) {
	if key.SameCurrency() {
		return decimal.NewFromInt(1), nil
	}
	if c.provider == nil {
		return decimal.Decimal{}, ErrProviderRequired
	}
	if err := key.Validate(); err != nil {
		return decimal.Decimal{}, err
	}

	value, err := c.provider.Rate(ctx, key.Date, key.Base, key.Quote)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key.String()).Msg("fx provider request failed")
		return decimal.Decimal{}, fmt.Errorf("%s: %v: %w", key, err, ErrProviderFailed)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%s: got %v: %w", key, value, ErrMalformedRate)
	}

	rate := Rate{
		Key:       key,
		Rate:      decimal.NewFromFloat(value),
		FetchedAt: c.now().UTC(),
	}
	if err := c.repo.Upsert(ctx, rate); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to store fx rate: %w", err)
	}

	c.log.Debug().Str("key", key.String()).Str("rate", rate.Rate.String()).Msg("fx rate cached")
	return rate.Rate, nil
}

// Resolve returns the cached rate, fetching it on a miss. It performs
// network I/O and must not be called inside a storage transaction.
func (c *Cache) Resolve(ctx context.Context, key Key) (decimal.Decimal, error) {
	rate, err := c.Lookup(ctx, key)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, ErrRateNotCached) {
		return decimal.Decimal{}, err
	}
	return c.FetchAndCache(ctx, key)
}

// Get returns the stored entry for inspection, nil when absent.
func (c *Cache) Get(ctx context.Context, key Key) (*Rate, error) {
	return c.repo.Get(ctx, key)
}
