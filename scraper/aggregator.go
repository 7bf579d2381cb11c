package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aluiziolira/go-scrape-reviews/extractor"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

// Aggregator scrapes a fixed number of listing pages for one product and
// aligns the collected fields into reviews.
type Aggregator struct {
	fetcher   Fetcher
	extractor extractor.DocumentExtractor
	dates     *parser.DateNormalizer
	pages     int
	metrics   *Metrics
}

// NewAggregator wires an aggregator. A nil dates normalizer converts
// without caching.
func NewAggregator(fetcher Fetcher, x extractor.DocumentExtractor, dates *parser.DateNormalizer, pages int, metrics *Metrics) *Aggregator {
	return &Aggregator{
		fetcher:   fetcher,
		extractor: x,
		dates:     dates,
		pages:     pages,
		metrics:   metrics,
	}
}

// Scrape fetches pages seedURL+"1" through seedURL+"N" in order. Any page
// failure aborts the product; nothing partial is returned.
func (a *Aggregator) Scrape(ctx context.Context, seedURL string) (*models.ProductReviews, error) {
	var (
		productName string
		names       []string
		dates       []string
		bodies      []string
	)

	for page := 1; page <= a.pages; page++ {
		pageURL := seedURL + strconv.Itoa(page)
		fields, err := a.scrapePage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("page %d of %s: %w", page, seedURL, err)
		}
		a.metrics.IncPages()
		slog.Debug("page scraped",
			slog.String("url", pageURL),
			slog.Int("reviewers", len(fields.Reviewers)),
			slog.Int("dates", len(fields.Dates)),
			slog.Int("bodies", len(fields.Bodies)),
		)

		productName = fields.ProductName
		names = append(names, fields.Reviewers...)
		dates = append(dates, fields.Dates...)
		bodies = append(bodies, fields.Bodies...)
	}

	names, dates, bodies, dropped := Align(names, dates, bodies)

	reviews := make([]models.Review, len(bodies))
	for i := range bodies {
		reviews[i] = models.Review{
			User:    names[i],
			Date:    dates[i],
			Message: bodies[i],
		}
	}
	a.metrics.AddReviews(len(reviews), dropped)

	if dropped > 0 {
		slog.Warn("truncated misaligned review fields",
			slog.String("seed", seedURL),
			slog.Int("dropped", dropped),
			slog.Int("reviews", len(reviews)),
		)
	}

	return &models.ProductReviews{
		SourceURL: seedURL,
		Product:   models.Product{Name: productName},
		Reviews:   reviews,
		Pages:     a.pages,
		Truncated: dropped,
	}, nil
}

// scrapePage returns the page's fields with dates already normalized.
func (a *Aggregator) scrapePage(ctx context.Context, pageURL string) (*models.PageFields, error) {
	body, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := extractor.Parse(body)
	if err != nil {
		return nil, err
	}
	fields, err := a.extractor.Extract(doc)
	if err != nil {
		return nil, err
	}
	normalized, err := a.dates.NormalizeAll(fields.Dates)
	if err != nil {
		return nil, err
	}
	fields.Dates = normalized
	return fields, nil
}

// Align truncates the three collections to their shortest length, keeping
// each original prefix. In practice review bodies are the shortest, as page
// chrome adds spurious name and date matches. dropped counts discarded
// entries across all three.
func Align(names, dates, bodies []string) ([]string, []string, []string, int) {
	n := min(len(names), len(dates), len(bodies))
	dropped := len(names) + len(dates) + len(bodies) - 3*n
	return names[:n:n], dates[:n:n], bodies[:n:n], dropped
}
