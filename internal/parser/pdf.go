package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// parsePDF extracts text page by page, joining pages with newlines.
// Pages that fail to decode (scanned images with no text layer, broken
// content streams) are skipped rather than aborting the whole document.
func parsePDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if _, err := io.WriteString(&buf, content); err != nil {
			return "", fmt.Errorf("write page %d: %w", i, err)
		}
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}
