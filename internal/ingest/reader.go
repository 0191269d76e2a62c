// Package ingest turns source files into indexed documents: read,
// split into chunks, embed and store.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Page is one page of extracted text. Plain-text and HTML sources
// produce a single page numbered 1.
type Page struct {
	Number int
	Text   string
}

// Source is a parsed input file before chunking.
type Source struct {
	Title string
	Pages []Page
}

// ReadFile parses path according to its extension. Supported are
// .pdf, .html/.htm, and plain text (.txt, .md or anything else).
func ReadFile(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return readPDF(path)
	case ".html", ".htm":
		return readHTML(path)
	default:
		return readText(path)
	}
}

func fallbackTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func wrapReadErr(path string, err error) error {
	return fmt.Errorf("reading %s: %w", path, err)
}
