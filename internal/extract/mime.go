package extract

import (
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/structhub/docintake/constants"
	"github.com/structhub/docintake/internal/common"
)

// DetectFormat sniffs the file content and maps it to a FileFormat. The file
// extension is only consulted when content sniffing is inconclusive.
func DetectFormat(path string) (constants.FileFormat, string, error) {
	m, err := mimetype.DetectFile(path)
	if err == nil && m != nil {
		if f := constants.MapMIMEToFormat(m.String()); f != "" {
			return f, m.String(), nil
		}
	}
	if f := constants.MapExtToFormat(filepath.Ext(path)); f != "" {
		return f, "", nil
	}
	detected := ""
	if m != nil {
		detected = m.String()
	}
	return "", detected, common.FileError("unsupported file type: " + detected)
}
