// Package app wires configuration into the storage, domain services and
// collaborators shared by the ledger binaries.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mailledger/internal/domain/batch"
	"mailledger/internal/domain/category"
	"mailledger/internal/domain/fx"
	"mailledger/internal/domain/ingest"
	"mailledger/internal/domain/ledger"
	"mailledger/internal/domain/rawmessage"
	"mailledger/internal/infrastructure/emailparse"
	"mailledger/internal/infrastructure/exchangerate"
	"mailledger/internal/infrastructure/mailsource"
	"mailledger/internal/infrastructure/sqlstore"
	"mailledger/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *sqlstore.DB

	// Repositories
	Messages *sqlstore.RawMessageRepository
	Batches  *sqlstore.BatchRepository
	Ledger   *sqlstore.LedgerRepository
	Rates    *sqlstore.FxRateRepository
	Meta     *sqlstore.MetaRepository

	// Domain services
	Categories *category.Spec
	Dedup      *rawmessage.DedupService
	FX         *fx.Cache
	Committer  *ledger.Committer
	LedgerSvc  *ledger.Service
	BatchSvc   *batch.Service
	IngestSvc  *ingest.Service
}

// NewDependencies opens the store and builds every service from cfg.
func NewDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Dependencies, error) {
	db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	categories, err := category.Load(cfg.Ledger.CategoriesPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	if categories == nil {
		log.Warn().Str("path", cfg.Ledger.CategoriesPath).Msg("no taxonomy file, categories pass through unchanged")
	}

	d := &Dependencies{
		DB:         db,
		Messages:   sqlstore.NewRawMessageRepository(db),
		Batches:    sqlstore.NewBatchRepository(db),
		Ledger:     sqlstore.NewLedgerRepository(db),
		Rates:      sqlstore.NewFxRateRepository(db),
		Meta:       sqlstore.NewMetaRepository(db),
		Categories: categories,
	}

	reporting := cfg.Ledger.ReportingCurrency
	d.Dedup = rawmessage.NewDedupService(d.Messages).WithLogger(log)
	d.FX = fx.NewCache(d.Rates, NewProvider(cfg.FX)).WithLogger(log)
	d.Committer = ledger.NewCommitter(d.Ledger, d.FX, reporting)
	d.LedgerSvc = ledger.NewService(d.Ledger, reporting)
	d.BatchSvc = batch.NewService(d.Batches, db, d.Committer, d.Messages, categories).WithLogger(log)
	d.IngestSvc = ingest.NewService(ingest.Deps{
		Dedup:             d.Dedup,
		Messages:          d.Messages,
		Poster:            d.Committer,
		Rates:             d.FX,
		Tx:                db,
		Meta:              d.Meta,
		Parser:            emailparse.New(reporting),
		Source:            mailsource.NewDir(cfg.Ingest.MaildirPath).WithLogger(log),
		Categories:        categories,
		ReportingCurrency: reporting,
	}).WithLogger(log)

	return d, nil
}

// NewProvider builds the configured fx provider. "none" disables fetching,
// so only cached rates can be used.
func NewProvider(cfg config.FXConfig) fx.Provider {
	if cfg.Provider == "" || strings.EqualFold(cfg.Provider, "none") {
		return nil
	}
	return exchangerate.NewClient(
		exchangerate.WithName(cfg.Provider),
		exchangerate.WithBaseURL(cfg.BaseURL),
		exchangerate.WithTimeout(cfg.Timeout),
		exchangerate.WithAccessKey(cfg.AccessKey),
	)
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() error {
	if d.DB == nil {
		return nil
	}
	if err := d.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
