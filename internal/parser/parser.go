// Package parser extracts plain text from documents so the chunker can
// split it for embedding. Each extractor is a black-box collaborator
// keyed by file extension; a file whose extension isn't recognized
// returns ErrUnsupported so callers can distinguish "nothing to index"
// from a genuine extraction failure.
package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned by ParseFile when path's extension has no
// registered extractor.
var ErrUnsupported = errors.New("unsupported file extension")

// ParseFile extracts text from path based on its extension, matched
// case-insensitively. Per-file parse failures and unsupported
// extensions are both reported as errors; the indexer logs and skips
// the file rather than aborting a scan.
func ParseFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		text string
		err  error
	)
	switch ext {
	case ".txt", ".md", ".rst":
		text, err = parsePlainText(path)
	case ".pdf":
		text, err = parsePDF(path)
	case ".docx":
		text, err = parseDocx(path)
	case ".pptx":
		text, err = parsePptx(path)
	case ".xlsx":
		text, err = parseXlsx(path)
	default:
		return "", ErrUnsupported
	}
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return text, nil
}
