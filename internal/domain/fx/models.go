package fx

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/shared/apperr"
)

// DateLayout is the calendar-day format rates are keyed by.
const DateLayout = "2006-01-02"

// Domain errors
var (
	ErrRateNotCached    = fmt.Errorf("fx rate not cached: %w", apperr.ErrUncachedDependency)
	ErrProviderFailed   = fmt.Errorf("fx provider request failed: %w", apperr.ErrUpstreamUnavailable)
	ErrMalformedRate    = fmt.Errorf("fx provider returned malformed rate: %w", apperr.ErrUpstreamUnavailable)
	ErrInvalidKey       = fmt.Errorf("invalid fx rate key: %w", apperr.ErrInvalidInput)
	ErrProviderRequired = fmt.Errorf("fx provider is not configured: %w", apperr.ErrUpstreamUnavailable)
)

// Key identifies a cached rate. Rates for the same pair and day from
// different providers are separate entries.
type Key struct {
	Date     string `json:"date"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Provider string `json:"provider"`
}

// NewKey builds a key for the calendar day of t (UTC).
func NewKey(t time.Time, base, quote, provider string) Key {
	return Key{
		Date:     t.UTC().Format(DateLayout),
		Base:     strings.ToUpper(strings.TrimSpace(base)),
		Quote:    strings.ToUpper(strings.TrimSpace(quote)),
		Provider: provider,
	}
}

// SameCurrency reports whether the pair converts a currency to itself.
func (k Key) SameCurrency() bool {
	return strings.EqualFold(k.Base, k.Quote)
}

// Validate checks the key shape.
func (k Key) Validate() error {
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		return fmt.Errorf("date %q: %w", k.Date, ErrInvalidKey)
	}
	if len(k.Base) != 3 || len(k.Quote) != 3 {
		return fmt.Errorf("currency pair %s/%s: %w", k.Base, k.Quote, ErrInvalidKey)
	}
	if k.Provider == "" {
		return fmt.Errorf("provider is empty: %w", ErrInvalidKey)
	}
	return nil
}

func (k Key) String() string {
	return fmt.Sprintf("%s %s/%s@%s", k.Date, k.Base, k.Quote, k.Provider)
}

// Rate is a cached conversion: 1 Base = Rate Quote.
type Rate struct {
	Key
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetchedAt"`
}
