package adapters

import (
	"strings"

	"golang.org/x/net/html"
)

// WikipediaAdapter selects article prose from Wikipedia pages
type WikipediaAdapter struct {
	BaseAdapter
	noiseClasses []string
}

// NewWikipediaAdapter creates a new Wikipedia adapter
func NewWikipediaAdapter() *WikipediaAdapter {
	return &WikipediaAdapter{
		noiseClasses: []string{
			"infobox", "navbox", "reference", "reflist", "references",
			"mw-editsection", "hatnote", "thumb", "metadata", "sidebar",
			"mw-references-wrap", "toc",
		},
	}
}

// Name returns the adapter name
func (a *WikipediaAdapter) Name() string {
	return "wikipedia"
}

// CanHandle checks if this is a Wikipedia URL
func (a *WikipediaAdapter) CanHandle(rawURL string, contentType string) bool {
	return strings.Contains(strings.ToLower(rawURL), "wikipedia.org")
}

// ContentRoot returns the parser output with citations and boxes removed
func (a *WikipediaAdapter) ContentRoot(doc *html.Node) *html.Node {
	content := a.FindFirst(doc, func(n *html.Node) bool {
		return a.IsElement(n, "div") &&
			(a.HasClass(n, "mw-parser-output") || a.GetAttribute(n, "id") == "mw-content-text")
	})
	if content == nil {
		return nil
	}

	a.Prune(content, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		// Footnote markers like [12] would otherwise glue onto sentences, and
		// headings have no terminal punctuation to split on
		if a.IsElement(n, "sup", "table", "h1", "h2", "h3", "h4", "h5", "h6") {
			return true
		}
		for _, class := range a.noiseClasses {
			if a.HasClass(n, class) {
				return true
			}
		}
		return false
	})
	return content
}
