package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ppiankov/epimap/internal/model"
)

// MaxNodeTextRunes bounds the passage text retained in a node
const MaxNodeTextRunes = 200

var (
	// ErrEmptyText is returned for empty or whitespace-only submissions
	ErrEmptyText = errors.New("text is required")
	// ErrTextTooLong is returned when a submission exceeds the configured length
	ErrTextTooLong = errors.New("text too long")
)

// ValidateText trims text and checks it against maxLength (in characters).
// It returns the trimmed text.
func ValidateText(text string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	if maxLength > 0 && utf8.RuneCountInString(trimmed) > maxLength {
		return "", fmt.Errorf("%w (max %d)", ErrTextTooLong, maxLength)
	}
	return trimmed, nil
}

// NewNodeID returns a random UUIDv4 string
func NewNodeID() string {
	return uuid.NewString()
}

// TruncateRunes returns the first n characters of s without splitting a code point
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// BuildNode packages classifier output into a node: text truncated to
// MaxNodeTextRunes, tags sorted by confidence and capped at maxTags.
func BuildNode(tags []model.Tag, text string, maxTags int, now time.Time, newID func() string) model.Node {
	if newID == nil {
		newID = NewNodeID
	}

	kept := make([]model.Tag, len(tags))
	copy(kept, tags)
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	if maxTags > 0 && len(kept) > maxTags {
		kept = kept[:maxTags]
	}

	return model.Node{
		ID:         newID(),
		Text:       TruncateRunes(text, MaxNodeTextRunes),
		Tags:       kept,
		Timestamp:  now,
		SourceType: model.SourceTypeText,
	}
}
