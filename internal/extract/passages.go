// Package extract turns HTML pages and plain text into passages for tagging.
package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// Default sentence length bounds, in bytes
const (
	DefaultMinLength = 30
	DefaultMaxLength = 500
)

// Passage is one sentence-sized piece of a source document
type Passage struct {
	Text  string `json:"text"`
	Index int    `json:"index"` // Position among the kept passages
}

// Document is the extracted view of an HTML page
type Document struct {
	Title    string
	Text     string
	Passages []Passage
}

// PassageExtractor splits documents into passages
type PassageExtractor struct {
	minLength int
	maxLength int
}

// NewPassageExtractor creates an extractor keeping sentences whose length is
// within [minLength, maxLength]. Non-positive bounds fall back to the defaults.
func NewPassageExtractor(minLength, maxLength int) *PassageExtractor {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &PassageExtractor{minLength: minLength, maxLength: maxLength}
}

// ExtractHTML parses an HTML document and returns its visible text split into passages
func (e *PassageExtractor) ExtractHTML(htmlContent string) (*Document, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	return e.ExtractNode(doc, doc), nil
}

// ExtractNode splits the visible text under root into passages. The title is
// read from doc, which may be root itself.
func (e *PassageExtractor) ExtractNode(doc, root *html.Node) *Document {
	text := extractVisibleText(root)
	return &Document{
		Title:    extractTitle(doc),
		Text:     text,
		Passages: e.SplitText(text),
	}
}

// SplitText splits plain text into deduplicated passages
func (e *PassageExtractor) SplitText(text string) []Passage {
	sentences := splitSentences(text, e.minLength, e.maxLength)

	seen := make(map[string]bool)
	passages := make([]Passage, 0, len(sentences))
	for _, s := range sentences {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		passages = append(passages, Passage{Text: s, Index: len(passages)})
	}
	return passages
}

// VisibleText returns the text nodes of an HTML document, skipping scripts and styles
func VisibleText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(extractVisibleText(doc)), nil
}

func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head", "template":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}

func extractTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := extractTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// splitSentences splits on . ! ? followed by whitespace and keeps sentences
// whose byte length is within [minLen, maxLen]
func splitSentences(text string, minLen, maxLen int) []string {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)

	var sentences []string
	var current strings.Builder

	keep := func() {
		sentence := strings.Join(strings.Fields(current.String()), " ")
		if len(sentence) >= minLen && len(sentence) <= maxLen {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i, r := range text {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			// Only split when whitespace follows, so "p<0.05" and "e.g." survive
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				keep()
			}
		}
	}

	if current.Len() > 0 {
		keep()
	}

	return sentences
}
