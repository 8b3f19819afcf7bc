package extract

import (
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/structhub/docintake/internal/common"
)

// pdfText reads the embedded text layer of a PDF. Pages without a text layer
// contribute nothing; scanned PDFs typically come back empty and the caller
// decides whether that is a failure.
func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", common.WrapError(err, "open pdf")
	}
	defer func() {
		_ = f.Close()
	}()

	var b strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// keep going; a single damaged page should not void the rest
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
