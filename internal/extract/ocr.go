package extract

import (
	"context"
	"fmt"
	"regexp"
)

// reBoxNoise strips the vertical-bar artifacts tesseract emits around table
// borders and form boxes.
var reBoxNoise = regexp.MustCompile(`(?m)^[|_\-\s]{3,}$`)

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}

	return reBoxNoise.ReplaceAllString(string(out), ""), nil
}
