// Package classify assigns epistemology tags to passages by literal keyword
// and regular-expression matching against the catalogue.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/epimap/internal/cache"
	"github.com/ppiankov/epimap/internal/catalogue"
	"github.com/ppiankov/epimap/internal/model"
)

const (
	keywordStep   = 0.3 // Per distinct keyword hit
	patternStep   = 0.4 // Per distinct pattern hit
	keywordShare  = 0.6
	patternShare  = 0.4
	maxCueWords   = 3
	cacheNS       = "detect"
	decimalPlaces = 1000.0
)

// FallbackConfidence is the confidence of the tag emitted when nothing clears the threshold
const FallbackConfidence = 0.2

// Classifier is immutable after New and safe for concurrent use
type Classifier struct {
	catalogue     *catalogue.Catalogue
	minConfidence float64
	memo          cache.Cache
	memoTTL       time.Duration
}

// Option configures a Classifier
type Option func(*Classifier)

// WithCache memoizes Detect results. Detect is a pure function of its input,
// so a hit is indistinguishable from a recomputation.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(cl *Classifier) {
		cl.memo = c
		cl.memoTTL = ttl
	}
}

// New creates a classifier over cat with the given minimum confidence threshold
func New(cat *catalogue.Catalogue, minConfidence float64, opts ...Option) (*Classifier, error) {
	if cat == nil {
		return nil, errors.New("catalogue is required")
	}
	if minConfidence < 0 || minConfidence > 1 || math.IsNaN(minConfidence) {
		return nil, fmt.Errorf("min confidence must be within [0,1], got %v", minConfidence)
	}

	c := &Classifier{
		catalogue:     cat,
		minConfidence: minConfidence,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Catalogue returns the rule table the classifier reads
func (c *Classifier) Catalogue() *catalogue.Catalogue {
	return c.catalogue
}

// MinConfidence returns the configured threshold
func (c *Classifier) MinConfidence() float64 {
	return c.minConfidence
}

// Score is the transparent breakdown for one category
type Score struct {
	Category        model.Category `json:"category"`
	MatchedKeywords []string       `json:"matched_keywords"`
	MatchedPatterns []string       `json:"matched_patterns"`
	KeywordScore    float64        `json:"keyword_score"`
	PatternScore    float64        `json:"pattern_score"`
	Confidence      float64        `json:"confidence"`
	Accepted        bool           `json:"accepted"` // Confidence cleared the threshold
}

// Detect returns the ranked tags for text, highest confidence first.
// Whitespace-only input yields no tags; any other input yields at least one.
func (c *Classifier) Detect(text string) []model.Tag {
	if strings.TrimSpace(text) == "" {
		return []model.Tag{}
	}

	if c.memo == nil {
		return c.detect(text)
	}

	key := cache.CacheKey(cacheNS, text)
	if data, ok := c.memo.Get(key); ok {
		var tags []model.Tag
		if err := json.Unmarshal(data, &tags); err == nil {
			return tags
		}
	}

	tags := c.detect(text)
	if data, err := json.Marshal(tags); err == nil {
		_ = c.memo.Set(key, data, c.memoTTL)
	}
	return tags
}

func (c *Classifier) detect(text string) []model.Tag {
	var tags []model.Tag
	for _, s := range c.Score(text) {
		if !s.Accepted {
			continue
		}
		tags = append(tags, model.Tag{
			Category:    s.Category,
			Confidence:  s.Confidence,
			CueWords:    c.catalogue.CueWords(s.Category, maxCueWords),
			Explanation: c.catalogue.Explanation(s.Category),
		})
	}

	if len(tags) == 0 {
		return []model.Tag{c.fallback()}
	}

	// Ties keep catalogue order
	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].Confidence > tags[j].Confidence
	})
	return tags
}

func (c *Classifier) fallback() model.Tag {
	return model.Tag{
		Category:    model.FallbackCategory,
		Confidence:  FallbackConfidence,
		CueWords:    []string{},
		Explanation: c.catalogue.Explanation(model.FallbackCategory),
	}
}

// Score computes the breakdown for every category in catalogue order.
// It applies no fallback and no ranking.
func (c *Classifier) Score(text string) []Score {
	lower := strings.ToLower(text)
	cats := c.catalogue.Categories()
	scores := make([]Score, 0, len(cats))

	for _, cat := range cats {
		rule, ok := c.catalogue.Rule(cat)
		if !ok {
			continue
		}

		s := Score{
			Category:        cat,
			MatchedKeywords: []string{},
			MatchedPatterns: []string{},
		}

		for i, kw := range rule.LowerKeywords {
			if strings.Contains(lower, kw) {
				s.MatchedKeywords = append(s.MatchedKeywords, rule.Keywords[i])
			}
		}
		for _, re := range rule.Patterns {
			if re.MatchString(text) {
				s.MatchedPatterns = append(s.MatchedPatterns, strings.TrimPrefix(re.String(), "(?i)"))
			}
		}

		s.KeywordScore = math.Min(keywordStep*float64(len(s.MatchedKeywords)), 1.0)
		s.PatternScore = math.Min(patternStep*float64(len(s.MatchedPatterns)), 1.0)
		s.Confidence = Confidence(s.KeywordScore, s.PatternScore, rule.Weight)
		s.Accepted = s.Confidence >= c.minConfidence

		scores = append(scores, s)
	}

	return scores
}

// Confidence combines keyword and pattern scores, applies the weight,
// clamps to [0,1] and rounds to three decimals
func Confidence(keywordScore, patternScore, weight float64) float64 {
	conf := (keywordScore*keywordShare + patternScore*patternShare) * weight
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return Round3(conf)
}

// Round3 rounds to three decimal places
func Round3(v float64) float64 {
	return math.Round(v*decimalPlaces) / decimalPlaces
}
