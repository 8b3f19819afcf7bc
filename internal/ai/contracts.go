package ai

import (
	"context"

	"github.com/structhub/docintake/internal/entity"
)

// DocumentExtractor is the model boundary the strategy selector depends on.
// Both methods return the structured record decoded from the model response
// together with the usage measured for the call; an extraction without a
// usage measurement (or vice versa) is reported as an error, never as a
// partial result.
type DocumentExtractor interface {
	// ExtractFromImages sends one or more page images with the output schema
	// embedded in the instruction (the vision strategy).
	ExtractFromImages(ctx context.Context, pages [][]byte, imageMIME string, schema map[string]any) (map[string]any, entity.Usage, error)
	// ExtractFromText sends pre-extracted document text plus the schema
	// (the text strategy).
	ExtractFromText(ctx context.Context, text string, schema map[string]any) (map[string]any, entity.Usage, error)
}
