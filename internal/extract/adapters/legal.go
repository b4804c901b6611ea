package adapters

import (
	"strings"

	"golang.org/x/net/html"
)

// LegalAdapter selects the operative text of legislation and case-law pages
type LegalAdapter struct {
	BaseAdapter
	legalDomains []string
	contentIDs   []string
}

// NewLegalAdapter creates a new legal document adapter
func NewLegalAdapter() *LegalAdapter {
	return &LegalAdapter{
		legalDomains: []string{
			"legislation.gov.uk",
			"law.cornell.edu",
			"justice.gov",
			"eur-lex.europa.eu",
		},
		contentIDs: []string{"viewLegContents", "main-content", "content"},
	}
}

// Name returns the adapter name
func (a *LegalAdapter) Name() string {
	return "legal"
}

// CanHandle checks if this is a legal document URL
func (a *LegalAdapter) CanHandle(rawURL string, contentType string) bool {
	lowerURL := strings.ToLower(rawURL)

	for _, domain := range a.legalDomains {
		if strings.Contains(lowerURL, domain) {
			return true
		}
	}

	return strings.Contains(lowerURL, "/statute") ||
		strings.Contains(lowerURL, "/legal") ||
		strings.Contains(lowerURL, "/law/") ||
		strings.Contains(lowerURL, "/regulation")
}

// ContentRoot returns the first known content container, or <main>
func (a *LegalAdapter) ContentRoot(doc *html.Node) *html.Node {
	for _, id := range a.contentIDs {
		if n := a.FindFirst(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && a.GetAttribute(n, "id") == id
		}); n != nil {
			a.pruneChrome(n)
			return n
		}
	}

	if n := a.FindFirst(doc, func(n *html.Node) bool { return a.IsElement(n, "main") }); n != nil {
		a.pruneChrome(n)
		return n
	}
	return nil
}

func (a *LegalAdapter) pruneChrome(root *html.Node) {
	a.Prune(root, func(n *html.Node) bool {
		return a.IsElement(n, "nav", "header", "footer", "aside", "form")
	})
}
