package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/structhub/docintake/internal/ai"
	"github.com/structhub/docintake/internal/callback"
	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/core"
	"github.com/structhub/docintake/internal/core/async"
	"github.com/structhub/docintake/internal/extract"
	"github.com/structhub/docintake/internal/repository"
	"github.com/structhub/docintake/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.EnsureSchema(ctx, db); err != nil {
		logger.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	jobsRepo := repository.NewJobRepository(db, logger)
	ledgerRepo := repository.NewLedgerRepository(db, logger)
	auditRepo := repository.NewAuditRepository(db, logger)
	accountsRepo := repository.NewAccountRepository(db, logger)
	endpointsRepo := repository.NewEndpointRepository(db, logger)

	extractor := extract.NewExtractor(extract.Config{
		Tesseract:     cfg.Extract.Tesseract,
		TesseractLang: cfg.Extract.TesseractLang,
		TessdataDir:   cfg.Extract.TessdataDir,
		Pdftoppm:      cfg.Extract.Pdftoppm,
		DPI:           cfg.Extract.DPI,
		MaxPages:      cfg.Extract.MaxPages,
		MaxConcurrent: cfg.Extract.MaxConcurrent,
	}, logger)

	model := ai.NewClient(ai.ClientConfig{
		BaseURL:   cfg.AI.BaseURL,
		Model:     cfg.AI.Model,
		APIKey:    cfg.AI.APIKey,
		MaxTokens: cfg.AI.MaxTokens,
		Timeout:   cfg.AI.Timeout,
	}, logger)

	selector := core.NewSelector(model, extractor, extract.DetectFormat, logger)
	dispatcher := callback.NewDispatcher(callback.Config{
		Attempts:  cfg.Callback.Attempts,
		Timeout:   cfg.Callback.Timeout,
		BaseDelay: cfg.Callback.BaseDelay,
	}, logger)

	processor := core.NewProcessor(logger, jobsRepo, ledgerRepo, auditRepo, selector, dispatcher, cfg.Billing.MinCharge)
	queue := async.NewJobQueue(processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
	)

	srv := server.New(server.Config{
		TempDir:        cfg.Server.TempDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimitEvery: cfg.Server.RateLimitEvery,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}, logger, accountsRepo, endpointsRepo, jobsRepo, ledgerRepo, queue)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
