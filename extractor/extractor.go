// Package extractor pulls review fields out of listing page markup.
package extractor

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

// DocumentExtractor turns a parsed listing page into its field collections.
// Implementations exist per site markup so the aggregator stays unchanged.
type DocumentExtractor interface {
	Extract(doc *goquery.Document) (*models.PageFields, error)
}

// Selectors are the CSS selectors locating each field on a page.
type Selectors struct {
	ProductName string
	Reviewer    string
	Date        string
	Body        string
}

// AmazonSelectors matches the Amazon product-reviews listing markup.
func AmazonSelectors() Selectors {
	return Selectors{
		ProductName: "h1.a-size-large.a-text-ellipsis",
		Reviewer:    "span.a-profile-name",
		Date:        "span.review-date",
		Body:        `span[data-hook="review-body"]`,
	}
}

// SelectorExtractor extracts fields using flat, document-order selector
// matches. Markup changes yield empty collections, not errors, except for
// the product name which is required.
type SelectorExtractor struct {
	sel Selectors
}

// NewSelectorExtractor returns an extractor for sel.
func NewSelectorExtractor(sel Selectors) *SelectorExtractor {
	return &SelectorExtractor{sel: sel}
}

// NewAmazonExtractor returns an extractor using AmazonSelectors.
func NewAmazonExtractor() *SelectorExtractor {
	return NewSelectorExtractor(AmazonSelectors())
}

// Parse builds a traversable document from raw page content.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", models.ErrExtraction, err)
	}
	return doc, nil
}

// Extract implements DocumentExtractor.
func (x *SelectorExtractor) Extract(doc *goquery.Document) (*models.PageFields, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", models.ErrExtraction)
	}

	heading := doc.Find(x.sel.ProductName).First()
	if heading.Length() == 0 {
		return nil, fmt.Errorf("%w: product name element %q not found", models.ErrExtraction, x.sel.ProductName)
	}
	name := parser.NormalizeText(heading.Text())
	if name == "" {
		return nil, fmt.Errorf("%w: product name element %q is empty", models.ErrExtraction, x.sel.ProductName)
	}

	return &models.PageFields{
		ProductName: name,
		Reviewers:   texts(doc, x.sel.Reviewer, parser.NormalizeText),
		Dates:       texts(doc, x.sel.Date, parser.NormalizeText),
		Bodies:      texts(doc, x.sel.Body, parser.NormalizeBody),
	}, nil
}

func texts(doc *goquery.Document, selector string, normalize func(string) string) []string {
	nodes := doc.Find(selector)
	out := make([]string, 0, nodes.Length())
	nodes.Each(func(_ int, s *goquery.Selection) {
		out = append(out, normalize(s.Text()))
	})
	return out
}
