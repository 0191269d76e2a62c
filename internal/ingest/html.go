package ingest

import (
	"os"
	"strings"

	"golang.org/x/net/html"
)

// readHTML parses the document tree and collects visible text,
// skipping script and style subtrees. The <title> element becomes the
// document title when present.
func readHTML(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return Source{}, wrapReadErr(path, err)
	}
	defer f.Close()

	root, err := html.Parse(f)
	if err != nil {
		return Source{}, wrapReadErr(path, err)
	}

	var title string
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if title == "" {
		title = fallbackTitle(path)
	}
	src := Source{Title: title}
	if text := strings.Join(parts, " "); text != "" {
		src.Pages = []Page{{Number: 1, Text: text}}
	}
	return src, nil
}

func readText(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, wrapReadErr(path, err)
	}
	src := Source{Title: fallbackTitle(path)}
	if text := strings.TrimSpace(string(data)); text != "" {
		src.Pages = []Page{{Number: 1, Text: text}}
	}
	return src, nil
}
