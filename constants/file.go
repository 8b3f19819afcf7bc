package constants

import "strings"

// FileFormat is the coarse document kind used to route extraction strategies.
type FileFormat string

const (
	PDF   FileFormat = "PDF"
	DOCX  FileFormat = "DOCX"
	IMAGE FileFormat = "IMAGE"
)

// MIMEDocx is the full DOCX MIME type; long enough to warrant a constant.
const MIMEDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// AllowedExtensions holds the default allowed file extensions for uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a normalized extension to a FileFormat, "" if unsupported.
func MapExtToFormat(ext string) FileFormat {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "docx":
		return DOCX
	case "jpg", "jpeg", "png", "tif", "tiff", "webp":
		return IMAGE
	default:
		return ""
	}
}

// MapMIMEToFormat maps a sniffed MIME type to a FileFormat, "" if unsupported.
func MapMIMEToFormat(mime string) FileFormat {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case mime == "application/pdf":
		return PDF
	case mime == MIMEDocx:
		return DOCX
	case strings.HasPrefix(mime, "image/"):
		return IMAGE
	default:
		return ""
	}
}
