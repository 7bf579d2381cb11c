// Package models defines data structures for the review scraper.
package models

import "time"

// Product is a reviewed item. ID is assigned by the store.
type Product struct {
	ID   int64  `json:"product_id"`
	Name string `json:"name"`
}

// Review is a single customer review belonging to a product.
// Date is always formatted as dd/mm/yyyy.
type Review struct {
	ID        int64   `json:"sid"`
	ProductID int64   `json:"product_id"`
	User      string  `json:"user"`
	Date      string  `json:"date"`
	Message   string  `json:"message"`
	Sentiment *string `json:"sentiment,omitempty"`
}

// PageFields holds the raw field collections pulled from one listing page.
type PageFields struct {
	ProductName string
	Reviewers   []string
	Dates       []string
	Bodies      []string
}

// ProductReviews is the aligned result of scraping every page of one seed URL.
type ProductReviews struct {
	SourceURL string
	Product   Product
	Reviews   []Review
	Pages     int
	// Truncated counts reviewer and date entries dropped to keep fields aligned.
	Truncated int
}

// SeedFailure records why a seed URL failed. In RunResult.Failures nothing
// was stored for URL; in RunResult.ExportFailures the product was stored
// but an export mirror missed it.
type SeedFailure struct {
	URL  string
	Kind string
	Err  string
}

// RunResult holds the overall result of a pipeline run.
type RunResult struct {
	StartTime      time.Time
	EndTime        time.Time
	Seeds          int
	ProductsStored int
	ReviewsStored  int
	Failures       []SeedFailure
	ExportFailures []SeedFailure
	ErrorsByKind   map[string]int
}
