package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
)

// ErrNoSeeds is returned by Run when there is nothing to process.
var ErrNoSeeds = errors.New("pipeline: no seed urls")

// ReviewSource scrapes one seed URL into aligned product reviews.
type ReviewSource interface {
	Scrape(ctx context.Context, seedURL string) (*models.ProductReviews, error)
}

// ReviewWriter persists one product with its reviews.
type ReviewWriter interface {
	Write(ctx context.Context, pr *models.ProductReviews) error
	Close() error
}

// Pipeline runs seeds one at a time: scrape, validate, write. A failing
// seed is logged and skipped; the remaining seeds still run.
type Pipeline struct {
	source  ReviewSource
	writer  ReviewWriter
	metrics *scraper.Metrics

	counters counters

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline. metrics may be nil.
func NewPipeline(source ReviewSource, writer ReviewWriter, metrics *scraper.Metrics) *Pipeline {
	return &Pipeline{
		source:   source,
		writer:   writer,
		metrics:  metrics,
		counters: newCounters(),
		shutdown: make(chan struct{}),
	}
}

// Run processes seeds sequentially. It returns an error only when ctx is
// canceled or there are no seeds; per-seed failures are in the result.
// A product whose export failed after the store committed counts as stored
// and is listed in ExportFailures, not Failures.
func (p *Pipeline) Run(ctx context.Context, seeds []string) (*models.RunResult, error) {
	defer p.signalShutdown()

	result := &models.RunResult{
		StartTime: time.Now(),
		Seeds:     len(seeds),
	}
	if len(seeds) == 0 {
		result.EndTime = time.Now()
		return result, ErrNoSeeds
	}

	for i, seedURL := range seeds {
		if err := ctx.Err(); err != nil {
			result.EndTime = time.Now()
			result.ErrorsByKind = p.counters.snapshotErrors()
			return result, err
		}

		stored, err := p.processSeed(ctx, seedURL)
		if err != nil && !errors.Is(err, models.ErrExport) {
			kind := models.Kind(err)
			p.counters.addError(kind)
			p.metrics.IncProduct("failed")
			p.metrics.IncSeedFailure(kind)
			result.Failures = append(result.Failures, models.SeedFailure{
				URL:  seedURL,
				Kind: kind,
				Err:  err.Error(),
			})
			slog.Error("seed failed",
				slog.Int("index", i),
				slog.String("url", seedURL),
				slog.String("kind", kind),
				slog.Any("error", err),
			)
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.EndTime = time.Now()
				result.ErrorsByKind = p.counters.snapshotErrors()
				return result, ctxErr
			}
			continue
		}

		p.counters.addStored(len(stored.Reviews))
		result.ProductsStored++
		result.ReviewsStored += len(stored.Reviews)

		if err != nil {
			// The store committed; only an export mirror is missing this product.
			kind := models.Kind(err)
			p.counters.addError(kind)
			p.metrics.IncProduct("stored_export_failed")
			p.metrics.IncSeedFailure(kind)
			result.ExportFailures = append(result.ExportFailures, models.SeedFailure{
				URL:  seedURL,
				Kind: kind,
				Err:  err.Error(),
			})
			slog.Error("product stored but export failed",
				slog.Int("index", i),
				slog.String("url", seedURL),
				slog.Int64("product_id", stored.Product.ID),
				slog.Any("error", err),
			)
			continue
		}

		p.metrics.IncProduct("stored")
		slog.Info("product stored",
			slog.String("url", seedURL),
			slog.String("product", stored.Product.Name),
			slog.Int64("product_id", stored.Product.ID),
			slog.Int("reviews", len(stored.Reviews)),
		)
	}

	result.EndTime = time.Now()
	result.ErrorsByKind = p.counters.snapshotErrors()
	return result, nil
}

// processSeed returns pr together with a models.ErrExport error when the
// store committed but an export writer failed.
func (p *Pipeline) processSeed(ctx context.Context, seedURL string) (*models.ProductReviews, error) {
	pr, err := p.source.Scrape(ctx, seedURL)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	if err := parser.ValidateProductReviews(pr); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if err := p.writer.Write(ctx, pr); err != nil {
		if errors.Is(err, models.ErrExport) {
			return pr, fmt.Errorf("export: %w", err)
		}
		return nil, fmt.Errorf("write: %w", err)
	}
	return pr, nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.counters.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Run returns.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("products", metrics["stored_products"].(int64)),
					slog.Int64("reviews", metrics["stored_reviews"].(int64)),
					slog.Int("error_kinds", len(metrics["errors"].(map[string]int))),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type counters struct {
	mu       sync.Mutex
	products int64
	reviews  int64
	errors   map[string]int
}

func newCounters() counters {
	return counters{
		errors: make(map[string]int),
	}
}

func (c *counters) addStored(reviews int) {
	c.mu.Lock()
	c.products++
	c.reviews += int64(reviews)
	c.mu.Unlock()
}

func (c *counters) addError(kind string) {
	c.mu.Lock()
	c.errors[kind]++
	c.mu.Unlock()
}

func (c *counters) snapshotErrors() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.errors))
	for k, v := range c.errors {
		out[k] = v
	}
	return out
}

func (c *counters) snapshot() map[string]interface{} {
	errorsCopy := c.snapshotErrors()

	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"stored_products": c.products,
		"stored_reviews":  c.reviews,
		"errors":          errorsCopy,
	}
}
