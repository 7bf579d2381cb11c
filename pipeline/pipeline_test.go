package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/extractor"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/aluiziolira/go-scrape-reviews/seed"
	"github.com/aluiziolira/go-scrape-reviews/store"
)

type stubSource struct {
	results map[string]*models.ProductReviews
	errs    map[string]error
	calls   []string
}

func (s *stubSource) Scrape(ctx context.Context, seedURL string) (*models.ProductReviews, error) {
	s.calls = append(s.calls, seedURL)
	if err, ok := s.errs[seedURL]; ok {
		return nil, err
	}
	pr, ok := s.results[seedURL]
	if !ok {
		return nil, fmt.Errorf("%w: no stub for %s", models.ErrTransport, seedURL)
	}
	copied := *pr
	copied.Reviews = append([]models.Review(nil), pr.Reviews...)
	return &copied, nil
}

type mockWriter struct {
	mu       sync.Mutex
	written  []*models.ProductReviews
	nextID   int64
	writeErr error
	closed   bool
}

func (mw *mockWriter) Write(_ context.Context, pr *models.ProductReviews) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	mw.nextID++
	pr.Product.ID = mw.nextID
	mw.written = append(mw.written, pr)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func reviewsFor(name string, count int) *models.ProductReviews {
	pr := &models.ProductReviews{Product: models.Product{Name: name}}
	for i := 1; i <= count; i++ {
		pr.Reviews = append(pr.Reviews, models.Review{
			User:    fmt.Sprintf("User %d", i),
			Date:    "15/03/2022",
			Message: fmt.Sprintf("Body %d", i),
		})
	}
	return pr
}

func TestPipelineRunIsolatesSeedFailures(t *testing.T) {
	source := &stubSource{
		results: map[string]*models.ProductReviews{
			"a": reviewsFor("Widget A", 2),
			"c": reviewsFor("Widget C", 3),
		},
		errs: map[string]error{
			"b": fmt.Errorf("page 1 of b: %w", fmt.Errorf("%w: product name not found", models.ErrExtraction)),
		},
	}
	writer := &mockWriter{}
	p := NewPipeline(source, writer, scraper.NewMetrics())

	result, err := p.Run(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b", "c"}, source.calls)
	require.Equal(t, 3, result.Seeds)
	require.Equal(t, 2, result.ProductsStored)
	require.Equal(t, 5, result.ReviewsStored)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "b", result.Failures[0].URL)
	require.Equal(t, "extraction", result.Failures[0].Kind)
	require.Equal(t, map[string]int{"extraction": 1}, result.ErrorsByKind)

	metrics := p.GetMetrics()
	require.Equal(t, int64(2), metrics["stored_products"])
	require.Equal(t, int64(5), metrics["stored_reviews"])
}

func TestPipelineRunRejectsInvalidResult(t *testing.T) {
	bad := reviewsFor("Widget A", 1)
	bad.Reviews[0].Date = "15 March 2022"
	source := &stubSource{results: map[string]*models.ProductReviews{"a": bad}}
	writer := &mockWriter{}

	result, err := NewPipeline(source, writer, nil).Run(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Empty(t, writer.written)
	require.Equal(t, "format", result.Failures[0].Kind)
}

func TestPipelineRunWriteFailure(t *testing.T) {
	source := &stubSource{results: map[string]*models.ProductReviews{
		"a": reviewsFor("Widget A", 1),
		"b": reviewsFor("Widget B", 1),
	}}
	writer := &mockWriter{writeErr: fmt.Errorf("%w: disk full", models.ErrStorage)}

	result, err := NewPipeline(source, writer, nil).Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Zero(t, result.ProductsStored)
	require.Equal(t, map[string]int{"storage": 2}, result.ErrorsByKind)
}

func TestPipelineRunCanceled(t *testing.T) {
	source := &stubSource{results: map[string]*models.ProductReviews{"a": reviewsFor("Widget A", 1)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewPipeline(source, &mockWriter{}, nil).Run(ctx, []string{"a", "b"})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, source.calls)
	require.Zero(t, result.ProductsStored)
}

func TestPipelineRunNoSeeds(t *testing.T) {
	_, err := NewPipeline(&stubSource{}, &mockWriter{}, nil).Run(context.Background(), nil)
	require.True(t, errors.Is(err, ErrNoSeeds))
}

func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "terms.txt")
	require.NoError(t, os.WriteFile(seedPath, []byte("http://example.test/widget-x/reviews?pageNumber=\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.SeedPath = seedPath
	cfg.DBPath = filepath.Join(dir, "amazon.db")
	cfg.PagesPerProduct = 2
	require.NoError(t, cfg.Validate())

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/widget-x/reviews?pageNumber=1", htmlResponder(buildReviewPage("Widget X", 1, 5)))
	transport.RegisterResponder("GET", "http://example.test/widget-x/reviews?pageNumber=2", htmlResponder(buildReviewPage("Widget X", 6, 5)))

	metrics := scraper.NewMetrics()
	fetcher := scraper.NewCollyFetcher(cfg, metrics)
	fetcher.WithTransport(transport)
	dates, err := parser.NewDateNormalizer(cfg.DateCacheSize)
	require.NoError(t, err)
	agg := scraper.NewAggregator(fetcher, extractor.NewAmazonExtractor(), dates, cfg.PagesPerProduct, metrics)

	sqlite := store.NewSQLiteStore(cfg.DBPath)
	exportPath := filepath.Join(dir, "export", "reviews.jsonl")
	jsonWriter, err := NewJSONWriter(exportPath)
	require.NoError(t, err)
	writer := NewMultiWriter(sqlite, jsonWriter)

	seeds, err := seed.Load(cfg.SeedPath)
	require.NoError(t, err)

	result, err := NewPipeline(agg, writer, metrics).Run(context.Background(), seeds)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	require.Empty(t, result.Failures)
	require.Equal(t, 1, result.ProductsStored)
	require.Equal(t, 10, result.ReviewsStored)

	db, err := sql.Open("sqlite", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var productID int64
	var name string
	require.NoError(t, db.QueryRow(`SELECT Product_id, name FROM products`).Scan(&productID, &name))
	require.Equal(t, "Widget X", name)

	rows, err := db.Query(`SELECT Product_id, Date FROM reviews ORDER BY SID`)
	require.NoError(t, err)
	defer rows.Close()
	count := 0
	for rows.Next() {
		var pid int64
		var date string
		require.NoError(t, rows.Scan(&pid, &date))
		require.Equal(t, productID, pid)
		require.True(t, parser.IsNormalizedDate(date), "date %q", date)
		count++
	}
	require.NoError(t, rows.Err())
	require.Equal(t, 10, count)

	exported, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(exported)), "\n")
	require.Len(t, lines, 10)
	require.Contains(t, lines[0], fmt.Sprintf(`"product_id":%d`, productID))
}

func TestPipelineRerunDuplicatesProduct(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.PagesPerProduct = 1

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/w/page-1", htmlResponder(buildReviewPage("Widget X", 1, 2)))

	fetcher := scraper.NewCollyFetcher(cfg, nil)
	fetcher.WithTransport(transport)
	agg := scraper.NewAggregator(fetcher, extractor.NewAmazonExtractor(), nil, cfg.PagesPerProduct, nil)
	sqlite := store.NewSQLiteStore(filepath.Join(dir, "amazon.db"))

	for run := 0; run < 2; run++ {
		result, err := NewPipeline(agg, sqlite, nil).Run(context.Background(), []string{"http://example.test/w/page-"})
		require.NoError(t, err)
		require.Equal(t, 1, result.ProductsStored)
	}

	products, reviews, err := sqlite.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, products)
	require.Equal(t, 4, reviews)
}

func TestPipelineRunExportFailureAfterStoreCommit(t *testing.T) {
	seedURL := "http://example.test/w/page-"
	source := &stubSource{results: map[string]*models.ProductReviews{
		seedURL: reviewsFor("Widget X", 3),
	}}
	sqlite := store.NewSQLiteStore(filepath.Join(t.TempDir(), "amazon.db"))
	metrics := scraper.NewMetrics()

	p := NewPipeline(source, NewMultiWriter(sqlite, &failingWriter{}), metrics)
	result, err := p.Run(context.Background(), []string{seedURL})
	require.NoError(t, err)

	require.Equal(t, 1, result.ProductsStored)
	require.Equal(t, 3, result.ReviewsStored)
	require.Empty(t, result.Failures)
	require.Len(t, result.ExportFailures, 1)
	require.Equal(t, "export", result.ExportFailures[0].Kind)
	require.Equal(t, map[string]int{"export": 1}, result.ErrorsByKind)

	products, reviews, err := sqlite.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, products)
	require.Equal(t, 3, reviews)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ProductsTotal.WithLabelValues("stored_export_failed")))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.ProductsTotal.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.SeedFailuresTotal.WithLabelValues("export")))
}

func TestPipelineTransportFailureCountedOncePerMetric(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PagesPerProduct = 1

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/w/page-1", httpmock.NewStringResponder(404, ""))

	metrics := scraper.NewMetrics()
	fetcher := scraper.NewCollyFetcher(cfg, metrics)
	fetcher.WithTransport(transport)
	agg := scraper.NewAggregator(fetcher, extractor.NewAmazonExtractor(), nil, cfg.PagesPerProduct, metrics)

	result, err := NewPipeline(agg, &mockWriter{}, metrics).Run(context.Background(), []string{"http://example.test/w/page-"})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "transport", result.Failures[0].Kind)

	require.Equal(t, 1, testutil.CollectAndCount(metrics.ErrorsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("not_found")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.SeedFailuresTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.SeedFailuresTotal.WithLabelValues("transport")))
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func buildReviewPage(product string, first, count int) string {
	var builder strings.Builder
	builder.WriteString("<html><body>")
	fmt.Fprintf(&builder, "<h1 class=\"a-size-large a-text-ellipsis\">%s</h1>", product)
	for i := first; i < first+count; i++ {
		builder.WriteString("<div data-hook=\"review\">")
		fmt.Fprintf(&builder, "<span class=\"a-profile-name\">User %d</span>", i)
		fmt.Fprintf(&builder, "<span class=\"a-size-base a-color-secondary review-date\">Reviewed in the United States on %d March 2022</span>", i)
		fmt.Fprintf(&builder, "<span data-hook=\"review-body\">\n\nReview %d\n</span>", i)
		builder.WriteString("</div>")
	}
	builder.WriteString("</body></html>")
	return builder.String()
}
