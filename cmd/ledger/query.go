package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mailledger/internal/domain/ledger"
)

type spendOutput struct {
	Currency string          `json:"currency"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Total    decimal.Decimal `json:"total"`
}

type byCategoryOutput struct {
	Currency   string                 `json:"currency"`
	From       time.Time              `json:"from"`
	To         time.Time              `json:"to"`
	Categories []ledger.CategoryTotal `json:"categories"`
}

func runQuery(ctx context.Context, c *cli, args []string) (any, error) {
	sub, rest, err := subcommand("query", args, "spend", "by-category")
	if err != nil {
		return nil, err
	}

	fs := newFlagSet(c, "query "+sub)
	days := fs.Int("days", 7, "Window ending now, in days")
	from := fs.String("from", "", "Window start (RFC3339 or YYYY-MM-DD); requires --to")
	to := fs.String("to", "", "Window end (RFC3339 or YYYY-MM-DD); a bare date includes the whole day")
	if err := parseFlags(fs, rest); err != nil {
		return nil, err
	}

	var rng ledger.Range
	if *from != "" || *to != "" {
		rng, err = ledger.ParseRange(*from, *to)
	} else {
		rng, err = ledger.LastNDays(*days, time.Now())
	}
	if err != nil {
		return nil, err
	}

	svc := c.deps.LedgerSvc
	if sub == "spend" {
		total, err := svc.Spend(ctx, rng)
		if err != nil {
			return nil, err
		}
		return spendOutput{Currency: svc.ReportingCurrency(), From: rng.From, To: rng.To, Total: total}, nil
	}

	totals, err := svc.ByCategory(ctx, rng)
	if err != nil {
		return nil, err
	}
	return byCategoryOutput{Currency: svc.ReportingCurrency(), From: rng.From, To: rng.To, Categories: totals}, nil
}
