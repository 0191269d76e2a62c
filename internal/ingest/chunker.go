package ingest

import "strings"

// DefaultChunkSize is the target chunk length in characters.
const DefaultChunkSize = 1600

// Draft is a chunk of source text before embedding. Offset is the
// chunk's ordinal within the document; PageStart and PageEnd bound the
// pages it draws from.
type Draft struct {
	PageStart int
	PageEnd   int
	Offset    int
	Text      string
}

// Split cuts the source into drafts of roughly maxChars characters.
// Paragraphs stay intact unless a single paragraph exceeds maxChars,
// in which case it is cut at word boundaries. Chunks may span pages.
func Split(src Source, maxChars int) []Draft {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}

	var drafts []Draft
	var buf strings.Builder
	pageStart, pageEnd := 0, 0

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text == "" {
			return
		}
		drafts = append(drafts, Draft{
			PageStart: pageStart,
			PageEnd:   pageEnd,
			Offset:    len(drafts),
			Text:      text,
		})
		buf.Reset()
		pageStart = 0
	}

	for _, page := range src.Pages {
		for _, para := range splitParagraphs(page.Text, maxChars) {
			if buf.Len() > 0 && buf.Len()+len(para)+2 > maxChars {
				flush()
			}
			if pageStart == 0 {
				pageStart = page.Number
			}
			pageEnd = page.Number
			if buf.Len() > 0 {
				buf.WriteString("\n\n")
			}
			buf.WriteString(para)
		}
	}
	flush()
	return drafts
}

// splitParagraphs breaks text on blank lines, then cuts any paragraph
// longer than maxChars at word boundaries.
func splitParagraphs(text string, maxChars int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxChars {
			out = append(out, para)
			continue
		}
		words := strings.Fields(para)
		var cur strings.Builder
		for _, w := range words {
			if cur.Len() > 0 && cur.Len()+len(w)+1 > maxChars {
				out = append(out, cur.String())
				cur.Reset()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(w)
		}
		if cur.Len() > 0 {
			out = append(out, cur.String())
		}
	}
	return out
}
