// Package catalogue holds the epistemology rule table: keywords, patterns,
// weights and explanations per category. It is validated eagerly and is
// read-only after construction.
package catalogue

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/epimap/internal/model"
)

// ErrInvalidCatalogue is returned when the rule table is inconsistent
var ErrInvalidCatalogue = errors.New("invalid catalogue")

// DefaultWeight applies when a rule leaves Weight unset
const DefaultWeight = 1.0

// Rule describes how one category is recognised
type Rule struct {
	Keywords []string // Literal phrases, catalogue order matters for cue words
	Patterns []string // Regular expressions, matched case-insensitively
	Weight   float64  // Multiplier applied to the combined score
}

// Entry binds a rule and its explanation to a category
type Entry struct {
	Category    model.Category
	Rule        Rule
	Explanation string
}

// CompiledRule is a Rule with its patterns compiled once
type CompiledRule struct {
	Keywords      []string
	LowerKeywords []string
	Patterns      []*regexp.Regexp
	Weight        float64
}

// Catalogue is the validated, immutable rule table
type Catalogue struct {
	order        []model.Category
	rules        map[model.Category]*CompiledRule
	explanations map[model.Category]string
}

// New validates entries and compiles their patterns
func New(entries []Entry) (*Catalogue, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidCatalogue)
	}

	c := &Catalogue{
		order:        make([]model.Category, 0, len(entries)),
		rules:        make(map[model.Category]*CompiledRule, len(entries)),
		explanations: make(map[model.Category]string, len(entries)),
	}

	for _, e := range entries {
		if e.Category == "" {
			return nil, fmt.Errorf("%w: entry without category", ErrInvalidCatalogue)
		}
		if _, dup := c.rules[e.Category]; dup {
			return nil, fmt.Errorf("%w: duplicate category %s", ErrInvalidCatalogue, e.Category.ID())
		}
		if strings.TrimSpace(e.Explanation) == "" {
			return nil, fmt.Errorf("%w: category %s has no explanation", ErrInvalidCatalogue, e.Category.ID())
		}

		compiled, err := compile(e.Rule)
		if err != nil {
			return nil, fmt.Errorf("%w: category %s: %v", ErrInvalidCatalogue, e.Category.ID(), err)
		}

		c.order = append(c.order, e.Category)
		c.rules[e.Category] = compiled
		c.explanations[e.Category] = e.Explanation
	}

	// The fallback tag needs an explanation too
	if _, ok := c.explanations[model.FallbackCategory]; !ok {
		return nil, fmt.Errorf("%w: fallback category %s missing", ErrInvalidCatalogue, model.FallbackCategory.ID())
	}

	return c, nil
}

func compile(r Rule) (*CompiledRule, error) {
	if len(r.Keywords) == 0 && len(r.Patterns) == 0 {
		return nil, errors.New("rule has neither keywords nor patterns")
	}

	weight := r.Weight
	if weight == 0 {
		weight = DefaultWeight
	}
	if weight < 0 {
		return nil, fmt.Errorf("weight must be positive, got %v", r.Weight)
	}

	cr := &CompiledRule{
		Keywords:      make([]string, 0, len(r.Keywords)),
		LowerKeywords: make([]string, 0, len(r.Keywords)),
		Patterns:      make([]*regexp.Regexp, 0, len(r.Patterns)),
		Weight:        weight,
	}

	seen := make(map[string]bool)
	for _, kw := range r.Keywords {
		lower := strings.ToLower(strings.TrimSpace(kw))
		if lower == "" {
			return nil, errors.New("empty keyword")
		}
		// Distinct keywords only: a duplicate would be counted twice
		if seen[lower] {
			continue
		}
		seen[lower] = true
		cr.Keywords = append(cr.Keywords, kw)
		cr.LowerKeywords = append(cr.LowerKeywords, lower)
	}

	for _, p := range r.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		cr.Patterns = append(cr.Patterns, re)
	}

	return cr, nil
}

// Categories returns the categories in insertion order
func (c *Catalogue) Categories() []model.Category {
	out := make([]model.Category, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of categories
func (c *Catalogue) Len() int {
	return len(c.order)
}

// Rule returns the compiled rule for a category
func (c *Catalogue) Rule(cat model.Category) (*CompiledRule, bool) {
	r, ok := c.rules[cat]
	return r, ok
}

// Explanation returns the one-sentence explanation for a category
func (c *Catalogue) Explanation(cat model.Category) string {
	return c.explanations[cat]
}

// Explanations returns a copy of the category -> explanation mapping
func (c *Catalogue) Explanations() map[model.Category]string {
	out := make(map[model.Category]string, len(c.explanations))
	for k, v := range c.explanations {
		out[k] = v
	}
	return out
}

// CueWords returns the first n display keywords of a category
func (c *Catalogue) CueWords(cat model.Category, n int) []string {
	r, ok := c.rules[cat]
	if !ok {
		return []string{}
	}
	if n > len(r.Keywords) {
		n = len(r.Keywords)
	}
	out := make([]string, n)
	copy(out, r.Keywords[:n])
	return out
}

// Describe returns the catalogue as ordered entries, pattern sources included
func (c *Catalogue) Describe() []Description {
	out := make([]Description, 0, len(c.order))
	for _, cat := range c.order {
		r := c.rules[cat]
		patterns := make([]string, len(r.Patterns))
		for i, re := range r.Patterns {
			patterns[i] = strings.TrimPrefix(re.String(), "(?i)")
		}
		keywords := make([]string, len(r.Keywords))
		copy(keywords, r.Keywords)
		out = append(out, Description{
			ID:          cat.ID(),
			Label:       cat.Label(),
			Keywords:    keywords,
			Patterns:    patterns,
			Weight:      r.Weight,
			Explanation: c.explanations[cat],
		})
	}
	return out
}

// Description is the serialisable view of one catalogue entry
type Description struct {
	ID          string   `json:"id" yaml:"id"`
	Label       string   `json:"label" yaml:"label"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Patterns    []string `json:"patterns" yaml:"patterns"`
	Weight      float64  `json:"weight" yaml:"weight"`
	Explanation string   `json:"explanation" yaml:"explanation"`
}
