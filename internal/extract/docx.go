package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/structhub/docintake/internal/common"
)

// docxText walks <w:body> in word/document.xml collecting paragraph text.
func docxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", common.WrapError(err, "open docx")
	}
	defer func() {
		_ = zr.Close()
	}()

	body, err := readZipFile(&zr.Reader, "word/document.xml")
	if err != nil {
		return "", common.WrapError(err, "read docx body")
	}

	dec := xml.NewDecoder(strings.NewReader(string(body)))
	var paragraphs []string
	var cur strings.Builder
	inParagraph := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" {
				inParagraph = true
				cur.Reset()
			}
		case xml.CharData:
			if inParagraph {
				cur.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				inParagraph = false
				if s := strings.TrimSpace(cur.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
			}
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = rc.Close()
		}()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
