package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/domain/fx"
	"mailledger/internal/shared/apperr"
)

func runFX(ctx context.Context, c *cli, args []string) (any, error) {
	sub, rest, err := subcommand("fx", args, "fetch", "get")
	if err != nil {
		return nil, err
	}

	fs := newFlagSet(c, "fx "+sub)
	date := fs.String("date", time.Now().UTC().Format(fx.DateLayout), "Rate date (YYYY-MM-DD)")
	base := fs.String("base", "", "Currency converted from (required)")
	quote := fs.String("quote", c.cfg.Ledger.ReportingCurrency, "Currency converted to")
	provider := fs.String("provider", c.cfg.FX.Provider, "Provider name the rate is cached under")
	if err := parseFlags(fs, rest); err != nil {
		return nil, err
	}

	day, err := time.Parse(fx.DateLayout, *date)
	if err != nil {
		return nil, fmt.Errorf("date %q: %w", *date, fx.ErrInvalidKey)
	}
	key := fx.NewKey(day, *base, *quote, *provider)
	if err := key.Validate(); err != nil {
		return nil, err
	}

	if sub == "fetch" {
		if name := c.deps.FX.ProviderName(); name != "" && name != key.Provider {
			return nil, fmt.Errorf("provider %q is not the configured provider %q: %w", key.Provider, name, apperr.ErrInvalidInput)
		}
		if _, err := c.deps.FX.FetchAndCache(ctx, key); err != nil {
			return nil, err
		}
	}

	rate, err := c.deps.FX.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rate == nil {
		if key.SameCurrency() {
			return &fx.Rate{Key: key, Rate: decimal.NewFromInt(1)}, nil
		}
		return nil, fmt.Errorf("no cached rate for %s: %w", key, apperr.ErrNotFound)
	}
	return rate, nil
}
