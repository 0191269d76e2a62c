package ingest

import (
	"strings"

	"github.com/ledongthuc/pdf"
)

// readPDF extracts plain text page by page so chunks can carry page
// ranges. Pages that fail to decode are skipped rather than failing
// the whole file.
func readPDF(path string) (Source, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Source{}, wrapReadErr(path, err)
	}
	defer f.Close()

	src := Source{Title: fallbackTitle(path)}
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
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
		src.Pages = append(src.Pages, Page{Number: i, Text: text})
	}
	return src, nil
}
