package fx

import "context"

// Repository defines the interface for fx rate cache storage
type Repository interface {
	// Get returns nil, nil when the key has never been cached
	Get(ctx context.Context, key Key) (*Rate, error)

	// Upsert stores the rate, replacing any previous value for the key
	Upsert(ctx context.Context, rate Rate) error
}

// Provider fetches a live rate from an external source.
type Provider interface {
	Name() string
	Rate(ctx context.Context, date, base, quote string) (float64, error)
}
