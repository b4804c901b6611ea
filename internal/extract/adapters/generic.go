package adapters

import (
	"golang.org/x/net/html"
)

// GenericAdapter is the fallback adapter for unknown sites
type GenericAdapter struct {
	BaseAdapter
}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(rawURL string, contentType string) bool {
	return true
}

// ContentRoot prefers <main>, then <article>, then <body>, and drops page chrome
func (a *GenericAdapter) ContentRoot(doc *html.Node) *html.Node {
	var root *html.Node
	for _, tag := range []string{"main", "article", "body"} {
		root = a.FindFirst(doc, func(n *html.Node) bool { return a.IsElement(n, tag) })
		if root != nil {
			break
		}
	}
	if root == nil {
		root = doc
	}

	a.Prune(root, func(n *html.Node) bool {
		return a.IsElement(n, "nav", "header", "footer", "aside", "form", "button")
	})
	return root
}
