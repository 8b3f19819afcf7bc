package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/structhub/docintake/internal/repository"
)

// Service is a tiny façade over the audit repository that produces XLSX
// usage reports for an account.
type Service struct {
	audit  repository.AuditRepository
	logger *slog.Logger
}

func NewService(audit repository.AuditRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{audit: audit, logger: logger}
}

// ExportUsageXLSX returns an XLSX workbook (as bytes) of audit rows for the
// given account and date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all rows for the account.
func (s *Service) ExportUsageXLSX(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}

	entries, err := s.audit.ListByAccount(ctx, accountID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Usage"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		s.logger.Debug("default sheet not removed", "error", err)
	}

	headers := []string{"Job ID", "Status", "Error", "Total Tokens", "Credits Charged", "Logged At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, e := range entries {
		values := []any{
			e.JobID.String(),
			string(e.PayloadOut.Status),
			e.Error,
			e.PayloadOut.Usage.TotalTokens,
			e.CreditUse,
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("usage export complete",
		"account_id", accountID,
		"rows", len(entries),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
