package main

import (
	"net/http"

	"github.com/rs/zerolog"

	"mailledger/internal/app"
	httphandlers "mailledger/internal/interfaces/http"
	"mailledger/internal/shared/config"
	"mailledger/internal/shared/middleware"
)

const maxBodyBytes = 1 << 20

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *app.Dependencies, cfg *config.Config, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	batches := httphandlers.NewBatchHandler(deps.BatchSvc)
	queries := httphandlers.NewLedgerHandler(deps.LedgerSvc)

	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.Tracing(h))
	}

	// Health check
	mux.HandleFunc("GET /health", httphandlers.HandleHealth)

	// Batch review
	handle("/api/batches", batches.HandleBatches)
	handle("GET /api/batches/{id}", batches.HandleBatchByID)
	handle("POST /api/batches/{id}/commit", batches.HandleCommit)
	handle("POST /api/batches/{id}/cancel", batches.HandleCancel)

	// Ledger queries
	handle("GET /api/ledger/spend", queries.HandleSpend)
	handle("GET /api/ledger/by-category", queries.HandleByCategory)

	// Apply global middleware, outermost last
	var handler http.Handler = mux
	handler = middleware.MaxBodyBytes(maxBodyBytes)(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.AllowedHosts(cfg.Server.AllowedHosts)(handler)
	handler = middleware.Logging(log)(handler)
	handler = middleware.Telemetry("mailledger.api")(handler)

	return handler
}
