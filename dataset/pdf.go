package dataset

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReference is the embedded OCR text layer of a scanned PDF document.
// Some report scans arrive as PDFs whose scanner already produced a text
// layer; that text is kept alongside the run as reference material for
// reviewing judge verdicts.
type PDFReference struct {
	Path  string `json:"path"`
	Pages int    `json:"pages"`
	Text  string `json:"text"`
}

// ExtractPDFReference reads the text layer of the PDF at path. Pages that
// fail to extract are skipped; a scan without any text layer yields an
// empty Text with the page count still set.
func ExtractPDFReference(path string) (*PDFReference, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	ref := &PDFReference{Path: path, Pages: reader.NumPage()}

	var b strings.Builder
	for i := 1; i <= ref.Pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	ref.Text = b.String()

	return ref, nil
}
