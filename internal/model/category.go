package model

import (
	"fmt"
	"strings"
)

// Category is an epistemology category: the claimed mode of knowing behind a passage.
// The string value is the display label used on the wire.
type Category string

const (
	CategoryEmpiricalQuantitative     Category = "Empirical-Quantitative"
	CategoryOralIntergenerational     Category = "Oral-Intergenerational"
	CategoryRitualCeremonial          Category = "Ritual-Ceremonial"
	CategoryExperientialPersonal      Category = "Experiential-Personal"
	CategoryTechnologicalInstrumental Category = "Technological-Instrumental"
	CategoryEcologicalRelational      Category = "Ecological-Relational"
	CategoryHistoricalDocumentary     Category = "Historical-Documentary"
	CategoryPhilosophicalDeductive    Category = "Philosophical-Deductive"
	CategoryIntuitiveInspirational    Category = "Intuitive-Inspirational"
	CategoryTheologicalDoctrinal      Category = "Theological-Doctrinal"
	CategoryArtisticExpressive        Category = "Artistic-Expressive"
	CategoryLegalPrecedential         Category = "Legal-Precedential"
)

// FallbackCategory is emitted when a non-empty passage clears no threshold
const FallbackCategory = CategoryExperientialPersonal

var allCategories = []Category{
	CategoryEmpiricalQuantitative,
	CategoryOralIntergenerational,
	CategoryRitualCeremonial,
	CategoryExperientialPersonal,
	CategoryTechnologicalInstrumental,
	CategoryEcologicalRelational,
	CategoryHistoricalDocumentary,
	CategoryPhilosophicalDeductive,
	CategoryIntuitiveInspirational,
	CategoryTheologicalDoctrinal,
	CategoryArtisticExpressive,
	CategoryLegalPrecedential,
}

// AllCategories returns every category in catalogue order
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Label returns the display label (e.g. "Empirical-Quantitative")
func (c Category) Label() string {
	return string(c)
}

// ID returns the upper-snake identifier (e.g. "EMPIRICAL_QUANTITATIVE")
func (c Category) ID() string {
	return strings.ToUpper(strings.ReplaceAll(string(c), "-", "_"))
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return c.Label()
}

// ParseCategory accepts either the identifier or the display label, case-insensitively
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range allCategories {
		if strings.EqualFold(s, c.Label()) || strings.EqualFold(s, c.ID()) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category: %q", s)
}
