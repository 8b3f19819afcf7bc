package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/structhub/docintake/constants"
	"github.com/structhub/docintake/internal/common"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string

	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // rasterization DPI for the vision strategy, default 150
	MaxPages int    // vision page cap, default 10; extra pages are dropped silently

	// MaxConcurrent bounds CPU-bound extraction work (OCR, PDF decode) so it
	// cannot stall the job workers sharing the scheduler. 0 = 4.
	MaxConcurrent int64
}

// Extractor runs the format-specific text strategies and the page renderer
// for the vision strategy.
type Extractor struct {
	cfg    Config
	runner Runner
	sem    *semaphore.Weighted
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Extractor{
		cfg:    cfg,
		runner: execRunner{},
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		logger: logger,
	}
}

// MaxPages exposes the configured vision page cap.
func (e *Extractor) MaxPages() int { return e.cfg.MaxPages }

// Text runs the format-specific text strategy: PDF text layer, DOCX paragraph
// text, or OCR for images. The work runs under a concurrency bound so a batch
// of CPU-heavy documents cannot starve other jobs.
func (e *Extractor) Text(ctx context.Context, path string, format constants.FileFormat) (string, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.sem.Release(1)

	start := time.Now()
	var (
		text string
		err  error
	)
	switch format {
	case constants.PDF:
		text, err = pdfText(path)
	case constants.DOCX:
		text, err = docxText(path)
	case constants.IMAGE:
		text, err = e.tesseractOCR(ctx, path)
	default:
		return "", common.FileError("unsupported file format for text extraction: " + string(format))
	}
	if err != nil {
		e.logger.Error("extract.text.failed", "path", path, "format", format, "err", err)
		return "", common.FileError(err.Error())
	}

	text = strings.TrimSpace(text)
	e.logger.Debug("extract.text.ok",
		"path", path,
		"format", format,
		"bytes", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
