// Package adapters picks the part of a fetched page worth tagging.
//
// Site adapters know where a site keeps its body text and which blocks
// (references, navigation boxes, edit links) would only add noise. Pages from
// unknown sites fall back to the generic adapter.
package adapters

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/epimap/internal/extract"
)

// Adapter defines the interface for site-specific content selection
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter can handle the given URL/content
	CanHandle(rawURL string, contentType string) bool

	// ContentRoot returns the node holding the page's body text. It may
	// prune the tree in place.
	ContentRoot(doc *html.Node) *html.Node
}

// Registry manages site adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a registry with the built-in adapters
func NewRegistry() *Registry {
	registry := &Registry{
		adapters: make([]Adapter, 0),
	}

	registry.Register(NewWikipediaAdapter())
	registry.Register(NewLegalAdapter())

	registry.generic = NewGenericAdapter()

	return registry
}

// Register registers a new adapter. Adapters are tried in registration order.
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// FindAdapter finds the best adapter for the given URL and content type
func (r *Registry) FindAdapter(rawURL string, contentType string) Adapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(rawURL, contentType) {
			return adapter
		}
	}
	return r.generic
}

// Extract parses htmlContent and splits the adapter-selected content into
// passages. It returns the name of the adapter used.
func (r *Registry) Extract(ex *extract.PassageExtractor, htmlContent, rawURL, contentType string) (*extract.Document, string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}

	adapter := r.FindAdapter(rawURL, contentType)
	root := adapter.ContentRoot(doc)
	if root == nil && adapter != r.generic {
		// Site layout not recognised
		adapter = r.generic
		root = adapter.ContentRoot(doc)
	}
	if root == nil {
		root = doc
	}
	return ex.ExtractNode(doc, root), adapter.Name(), nil
}

// BaseAdapter provides common tree helpers for adapters
type BaseAdapter struct{}

// HasClass checks if a node has a specific CSS class
func (b *BaseAdapter) HasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}

	for _, class := range strings.Fields(b.GetAttribute(n, "class")) {
		if class == className {
			return true
		}
	}
	return false
}

// GetAttribute gets an attribute value from a node
func (b *BaseAdapter) GetAttribute(n *html.Node, attrKey string) string {
	for _, attr := range n.Attr {
		if attr.Key == attrKey {
			return attr.Val
		}
	}
	return ""
}

// FindFirst finds the first node matching a predicate, depth first
func (b *BaseAdapter) FindFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node

	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(n)
	return result
}

// Prune removes every subtree under n whose root matches predicate
func (b *BaseAdapter) Prune(n *html.Node, predicate func(*html.Node) bool) {
	var doomed []*html.Node

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node != n && predicate(node) {
			doomed = append(doomed, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	for _, node := range doomed {
		node.Parent.RemoveChild(node)
	}
}

// IsElement reports whether n is an element with one of the given tag names
func (b *BaseAdapter) IsElement(n *html.Node, tags ...string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, tag := range tags {
		if n.Data == tag {
			return true
		}
	}
	return false
}
