package core

import (
	"context"
	"log/slog"

	"github.com/structhub/docintake/constants"
	"github.com/structhub/docintake/internal/ai"
	"github.com/structhub/docintake/internal/common"
	"github.com/structhub/docintake/internal/entity"
)

// StrategyRunner produces a structured record plus a usage measurement for
// one document, or fails with a file-processing or ai-service error.
type StrategyRunner interface {
	Run(ctx context.Context, path string, schema map[string]any, mode constants.AnalysisMode) (map[string]any, entity.Usage, error)
}

// DocumentSource is the slice of the extraction layer the selector needs.
type DocumentSource interface {
	Text(ctx context.Context, path string, format constants.FileFormat) (string, error)
	Pages(ctx context.Context, path string, format constants.FileFormat) ([][]byte, string, error)
}

// Selector sequences extraction strategies according to the analysis mode:
// vision first with text fallback (default), vision only, or text only.
type Selector struct {
	model  ai.DocumentExtractor
	docs   DocumentSource
	detect func(path string) (constants.FileFormat, string, error)
	logger *slog.Logger
}

func NewSelector(model ai.DocumentExtractor, docs DocumentSource, detect func(string) (constants.FileFormat, string, error), logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{model: model, docs: docs, detect: detect, logger: logger}
}

// Run drives the policy-ordered strategy sequence. Usage from every attempt
// on the job is aggregated into the returned measurement. A vision_first job
// that exhausts both strategies surfaces the text strategy's error; the
// fallback is transparent to the caller.
func (s *Selector) Run(ctx context.Context, path string, schema map[string]any, mode constants.AnalysisMode) (map[string]any, entity.Usage, error) {
	format, mime, err := s.detect(path)
	if err != nil {
		return nil, entity.Usage{}, err
	}
	s.logger.Debug("selector.start", "path", path, "format", format, "mime", mime, "mode", mode)

	var total entity.Usage

	if mode == constants.ModeVisionFirst || mode == constants.ModeVisionOnly {
		data, usage, visionErr := s.runVision(ctx, path, format, schema)
		total = total.Add(usage)
		if visionErr == nil {
			return data, total, nil
		}
		if mode == constants.ModeVisionOnly {
			return nil, total, visionErr
		}
		s.logger.Warn("selector.vision.failed; falling back to text",
			"path", path, "error", visionErr)
	}

	data, usage, err := s.runText(ctx, path, format, schema)
	total = total.Add(usage)
	if err != nil {
		return nil, total, err
	}
	return data, total, nil
}

func (s *Selector) runVision(ctx context.Context, path string, format constants.FileFormat, schema map[string]any) (map[string]any, entity.Usage, error) {
	pages, imageMIME, err := s.docs.Pages(ctx, path, format)
	if err != nil {
		return nil, entity.Usage{}, err
	}
	return s.model.ExtractFromImages(ctx, pages, imageMIME, schema)
}

func (s *Selector) runText(ctx context.Context, path string, format constants.FileFormat, schema map[string]any) (map[string]any, entity.Usage, error) {
	text, err := s.docs.Text(ctx, path, format)
	if err != nil {
		return nil, entity.Usage{}, err
	}
	if text == "" {
		return nil, entity.Usage{}, common.FileError("no text could be extracted from the file")
	}
	return s.model.ExtractFromText(ctx, text, schema)
}
