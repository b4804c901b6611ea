package catalogue

import "github.com/ppiankov/epimap/internal/model"

// DefaultEntries returns the built-in rule table in catalogue order.
// Adding a category means adding a model.Category constant and one entry here.
func DefaultEntries() []Entry {
	return []Entry{
		{
			Category: model.CategoryEmpiricalQuantitative,
			Rule: Rule{
				Keywords: []string{"average", "measured", "p<", "n=", "statistical", "correlation"},
				Patterns: []string{`p\s*[<>=]\s*0\.\d+`, `n\s*=\s*\d+`, `\d+\.?\d*\s*°C`},
				Weight:   1.0,
			},
			Explanation: "Validated through measurement, statistics, and scientific method.",
		},
		{
			Category: model.CategoryOralIntergenerational,
			Rule: Rule{
				Keywords: []string{"elders say", "ancestors taught", "passed down", "generations"},
				Patterns: []string{`elders\s+(?:say|said|taught)`, `for\s+\d+\s+generations`},
				Weight:   1.0,
			},
			Explanation: "Preserved through spoken tradition across generations.",
		},
		{
			Category: model.CategoryRitualCeremonial,
			Rule: Rule{
				Keywords: []string{"ceremony", "ritual", "sacred", "traditional practice"},
				Patterns: []string{`according\s+to\s+(?:ritual|ceremony)`},
				Weight:   1.0,
			},
			Explanation: "Embedded in cultural practices and sacred ceremonies.",
		},
		{
			Category: model.CategoryExperientialPersonal,
			Rule: Rule{
				Keywords: []string{"I observed", "in my experience", "I have seen"},
				Patterns: []string{`I\s+(?:have\s+)?observed`, `in\s+my\s+\d+\s+years`},
				Weight:   1.0,
			},
			Explanation: "Gained through direct lived experience.",
		},
		{
			Category: model.CategoryTechnologicalInstrumental,
			Rule: Rule{
				Keywords: []string{"sensor", "GPS", "satellite", "instrument measured"},
				Patterns: []string{`(?:sensor|GPS|satellite)\s+(?:detected|measured)`},
				Weight:   1.0,
			},
			Explanation: "Derived from tools and technological measurement.",
		},
		{
			Category: model.CategoryEcologicalRelational,
			Rule: Rule{
				Keywords: []string{"interconnected", "ecosystem", "web of life"},
				Patterns: []string{`(?:interconnected|ecosystem|web\s+of\s+life)`},
				Weight:   1.0,
			},
			Explanation: "Understanding systems through relationships and connections.",
		},
		{
			Category: model.CategoryHistoricalDocumentary,
			Rule: Rule{
				Keywords: []string{"historical records", "archives show", "documented"},
				Patterns: []string{`(?:historical\s+records|archives)\s+show`},
				Weight:   1.0,
			},
			Explanation: "From historical records and documented events.",
		},
		{
			Category: model.CategoryPhilosophicalDeductive,
			Rule: Rule{
				Keywords: []string{"by necessity", "it follows that", "logical"},
				Patterns: []string{`by\s+necessity`, `it\s+follows\s+that`},
				Weight:   1.0,
			},
			Explanation: "Derived through logical reasoning and principles.",
		},
		{
			Category: model.CategoryIntuitiveInspirational,
			Rule: Rule{
				Keywords: []string{"I felt", "intuition", "gut feeling", "came to me"},
				Patterns: []string{`I\s+felt`, `gut\s+feeling`},
				Weight:   1.0,
			},
			Explanation: "Arising from intuition, instinct, or sudden insight.",
		},
		{
			Category: model.CategoryTheologicalDoctrinal,
			Rule: Rule{
				Keywords: []string{"scripture says", "divine", "holy text"},
				Patterns: []string{`scripture\s+says`},
				Weight:   1.0,
			},
			Explanation: "From religious texts or divine revelation.",
		},
		{
			Category: model.CategoryArtisticExpressive,
			Rule: Rule{
				Keywords: []string{"like a dance", "metaphorically", "symbolizes"},
				Patterns: []string{`like\s+a\s+\w+`},
				Weight:   1.0,
			},
			Explanation: "Conveyed through creative expression and metaphor.",
		},
		{
			Category: model.CategoryLegalPrecedential,
			Rule: Rule{
				Keywords: []string{"according to law", "precedent", "regulation"},
				Patterns: []string{`according\s+to\s+law`},
				Weight:   1.0,
			},
			Explanation: "Based on laws, regulations, and precedents.",
		},
	}
}

// Default builds the validated built-in catalogue
func Default() (*Catalogue, error) {
	return New(DefaultEntries())
}

// MustDefault is Default that panics on an inconsistent table
func MustDefault() *Catalogue {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}
