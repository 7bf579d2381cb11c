package parser

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

const (
	dateDelimiter = "on "
	sourceLayout  = "2 January 2006"
	storedLayout  = "02/01/2006"
)

// NormalizeDate converts "Reviewed in <place> on 15 March 2022" to "15/03/2022".
func NormalizeDate(raw string) (string, error) {
	idx := strings.LastIndex(raw, dateDelimiter)
	if idx < 0 {
		return "", fmt.Errorf("%w: date %q has no %q delimiter", models.ErrFormat, raw, strings.TrimSpace(dateDelimiter))
	}
	value := strings.TrimSpace(raw[idx+len(dateDelimiter):])
	parsed, err := time.Parse(sourceLayout, value)
	if err != nil {
		return "", fmt.Errorf("%w: parse date %q: %w", models.ErrFormat, raw, err)
	}
	return parsed.Format(storedLayout), nil
}

// IsNormalizedDate reports whether value is a valid dd/mm/yyyy date.
func IsNormalizedDate(value string) bool {
	if len(value) != len(storedLayout) {
		return false
	}
	_, err := time.Parse(storedLayout, value)
	return err == nil
}

// DateNormalizer memoises NormalizeDate. Failed conversions are not cached.
type DateNormalizer struct {
	cache *lru.Cache[string, string]
}

// NewDateNormalizer returns a normalizer caching up to size conversions.
// A size of zero disables caching.
func NewDateNormalizer(size int) (*DateNormalizer, error) {
	if size <= 0 {
		return &DateNormalizer{}, nil
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create date cache: %w", err)
	}
	return &DateNormalizer{cache: cache}, nil
}

// Normalize converts raw like NormalizeDate.
func (n *DateNormalizer) Normalize(raw string) (string, error) {
	if n == nil || n.cache == nil {
		return NormalizeDate(raw)
	}
	if value, ok := n.cache.Get(raw); ok {
		return value, nil
	}
	value, err := NormalizeDate(raw)
	if err != nil {
		return "", err
	}
	n.cache.Add(raw, value)
	return value, nil
}

// NormalizeAll converts every entry of raw, failing on the first bad date.
func (n *DateNormalizer) NormalizeAll(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, value := range raw {
		normalized, err := n.Normalize(value)
		if err != nil {
			return nil, err
		}
		out = append(out, normalized)
	}
	return out, nil
}

// Len reports the number of cached conversions.
func (n *DateNormalizer) Len() int {
	if n == nil || n.cache == nil {
		return 0
	}
	return n.cache.Len()
}
