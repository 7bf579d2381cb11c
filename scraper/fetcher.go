package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Fetcher retrieves the raw content of one page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// CollyFetcher issues synchronous GET requests through a colly collector.
type CollyFetcher struct {
	collector      *colly.Collector
	acceptLanguage string
	metrics        *Metrics
}

// NewCollyFetcher builds a fetcher configured from cfg.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) *CollyFetcher {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	// Listing pages for a repeated seed are fetched again on purpose.
	collector.AllowURLRevisit = true
	// Status codes are checked in Fetch so every 2xx counts as success.
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &CollyFetcher{
		collector:      collector,
		acceptLanguage: cfg.AcceptLanguage,
		metrics:        metrics,
	}
}

// WithTransport replaces the HTTP round tripper used for every fetch.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch returns the response body for pageURL. Network failures, timeouts,
// and non-2xx responses are returned as transport errors.
//
// ctx is checked before the request is sent. colly cannot abort a request
// in flight, so a cancellation takes effect once the current request
// finishes or hits the configured timeout.
func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Clones share the HTTP backend but carry their own callbacks, so each
	// call captures only its own response.
	c := f.collector.Clone()

	var (
		body       []byte
		statusCode int
	)
	c.OnRequest(func(r *colly.Request) {
		if f.acceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.acceptLanguage)
		}
		f.metrics.IncRequest("started")
	})
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	start := time.Now()
	err := c.Visit(pageURL)
	f.metrics.ObserveDuration(time.Since(start))
	if err == nil && (statusCode < 200 || statusCode >= 300) {
		err = fmt.Errorf("http status %d", statusCode)
	}
	if err != nil {
		classified := classifyError(err, statusCode)
		category := errorTypeLabel(classified)
		f.metrics.IncRequest("failed")
		f.metrics.IncError(category)
		slog.Error("request error",
			slog.String("url", pageURL),
			slog.Int("status", statusCode),
			slog.String("category", category),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: fetch %s: %w", models.ErrTransport, pageURL, classified)
	}

	f.metrics.IncRequest("completed")
	return body, nil
}
