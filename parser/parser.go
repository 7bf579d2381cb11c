package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// ValidateProductReviews ensures a scrape result is safe to persist.
func ValidateProductReviews(pr *models.ProductReviews) error {
	if pr == nil {
		return fmt.Errorf("%w: product reviews are nil", models.ErrExtraction)
	}
	if strings.TrimSpace(pr.Product.Name) == "" {
		return fmt.Errorf("%w: product missing name for %s", models.ErrExtraction, pr.SourceURL)
	}
	for i, review := range pr.Reviews {
		if !IsNormalizedDate(review.Date) {
			return fmt.Errorf("%w: review %d of %q has date %q", models.ErrFormat, i, pr.Product.Name, review.Date)
		}
	}
	return nil
}

// NormalizeText trims surrounding whitespace from extracted text.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}

// NormalizeBody strips leading and trailing newlines from a review body.
// Other surrounding whitespace is part of the review and kept.
func NormalizeBody(body string) string {
	return strings.Trim(body, "\n")
}
