package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/export"
	"github.com/structhub/docintake/internal/repository"
)

func main() {
	var (
		accountFlag = flag.String("account", "", "account id (required)")
		fromFlag    = flag.String("from", "", "start date YYYY-MM-DD (optional)")
		toFlag      = flag.String("to", "", "end date YYYY-MM-DD (optional)")
		outFlag     = flag.String("out", "usage.xlsx", "output file")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	accountID, err := uuid.Parse(*accountFlag)
	if err != nil {
		logger.Error("a valid -account id is required", "error", err)
		os.Exit(2)
	}
	from, err := parseDate(*fromFlag)
	if err != nil {
		logger.Error("invalid -from date", "error", err)
		os.Exit(2)
	}
	to, err := parseDate(*toFlag)
	if err != nil {
		logger.Error("invalid -to date", "error", err)
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        2,
		MinConns:        1,
		MaxConnLifetime: time.Minute,
		MaxConnIdleTime: time.Minute,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)

	svc := export.NewService(repository.NewAuditRepository(db, logger), logger)
	data, err := svc.ExportUsageXLSX(ctx, accountID, from, to)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*outFlag, data, 0o644); err != nil {
		logger.Error("write output failed", "file", *outFlag, "error", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *outFlag, len(data))
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
