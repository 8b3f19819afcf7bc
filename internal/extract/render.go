package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/structhub/docintake/constants"
	"github.com/structhub/docintake/internal/common"
)

// Pages prepares the image inputs for the vision strategy: PDFs are rendered
// to one PNG per page, capped at MaxPages (documents longer than the cap are
// truncated silently, not failed); images are passed through as-is.
func (e *Extractor) Pages(ctx context.Context, path string, format constants.FileFormat) ([][]byte, string, error) {
	switch format {
	case constants.IMAGE:
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, "", common.FileError("read image: " + err.Error())
		}
		return [][]byte{b}, "", nil
	case constants.PDF:
		pages, err := e.renderPDF(ctx, path)
		if err != nil {
			return nil, "", err
		}
		return pages, "image/png", nil
	default:
		return nil, "", common.FileError("unsupported file format for vision: " + string(format))
	}
}

func (e *Extractor) renderPDF(ctx context.Context, path string) ([][]byte, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	tmpDir, err := os.MkdirTemp("", "di-pp-*")
	if err != nil {
		return nil, common.FileError("mkdir temp: " + err.Error())
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("render temp dir cleanup failed", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png -f 1 -l <maxPages> <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", e.cfg.DPI),
		"-png",
		"-f", "1",
		"-l", fmt.Sprintf("%d", e.cfg.MaxPages),
		path, prefix,
	)
	if err != nil {
		return nil, common.FileError("pdftoppm: " + truncate(string(errb), 512))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) > e.cfg.MaxPages {
		e.logger.Warn("document exceeds vision page cap; truncating",
			"path", path, "pages", len(matches), "cap", e.cfg.MaxPages)
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, common.FileError("pdftoppm produced no images")
	}

	pages := make([][]byte, 0, len(matches))
	for _, img := range matches {
		b, err := os.ReadFile(img)
		if err != nil {
			return nil, common.FileError("read rendered page: " + err.Error())
		}
		pages = append(pages, b)
	}
	return pages, nil
}
