package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/extractor"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/pipeline"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/aluiziolira/go-scrape-reviews/seed"
	"github.com/aluiziolira/go-scrape-reviews/store"
)

type options struct {
	configPath   string
	seedPath     string
	pages        int
	userAgent    string
	dbPath       string
	timeout      time.Duration
	exportFile   string
	exportFormat string
	metricsAddr  string
	verbose      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	defaults := config.DefaultConfig()
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "reviews",
		Short:        "reviews scrapes paginated product review listings into SQLite.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			logger, level := newLogger(cfg.Verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())
			return run(cmd.Context(), cfg)
		},
	}

	bindFlags(cmd.Flags(), opts, defaults)

	return cmd
}

func bindFlags(flags *pflag.FlagSet, opts *options, defaults *config.Config) {
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.seedPath, "seeds", defaults.SeedPath, "File listing one review URL prefix per line")
	flags.IntVar(&opts.pages, "pages", defaults.PagesPerProduct, "Review pages to scrape per product")
	flags.StringVar(&opts.userAgent, "user-agent", defaults.UserAgent, "User-Agent header sent with every request")
	flags.StringVar(&opts.dbPath, "db", defaults.DBPath, "SQLite database file")
	flags.DurationVar(&opts.timeout, "timeout", defaults.Timeout, "Per-request timeout")
	flags.StringVar(&opts.exportFile, "export", defaults.ExportFile, "Also export stored reviews to this file")
	flags.StringVar(&opts.exportFormat, "format", defaults.ExportFormat, "Export format: csv, json, or dual")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", defaults.Verbose, "Enable verbose logging")
}

// buildConfig layers defaults, the optional YAML file, REVIEWS_* variables,
// and flags the user set explicitly, in that order.
func buildConfig(flags *pflag.FlagSet, opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if flags.Changed("seeds") {
		cfg.SeedPath = opts.seedPath
	}
	if flags.Changed("pages") {
		cfg.PagesPerProduct = opts.pages
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = opts.userAgent
	}
	if flags.Changed("db") {
		cfg.DBPath = opts.dbPath
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("export") {
		cfg.ExportFile = opts.exportFile
	}
	if flags.Changed("format") {
		cfg.ExportFormat = opts.exportFormat
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if flags.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	cfg.ExportFormat = strings.ToLower(cfg.ExportFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	seeds, err := seed.Load(cfg.SeedPath)
	if err != nil {
		return err
	}

	slog.Info("starting scrape",
		slog.String("seeds", cfg.SeedPath),
		slog.Int("seed_urls", len(seeds)),
		slog.Int("pages_per_product", cfg.PagesPerProduct),
		slog.String("db", cfg.DBPath),
	)

	sqlite := store.NewSQLiteStore(cfg.DBPath)
	if err := sqlite.EnsureSchema(ctx); err != nil {
		return err
	}

	writer, err := createWriter(cfg, sqlite)
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	metrics := scraper.NewMetrics()
	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	dates, err := parser.NewDateNormalizer(cfg.DateCacheSize)
	if err != nil {
		return err
	}
	fetcher := scraper.NewCollyFetcher(cfg, metrics)
	agg := scraper.NewAggregator(fetcher, extractor.NewAmazonExtractor(), dates, cfg.PagesPerProduct, metrics)

	p := pipeline.NewPipeline(agg, writer, metrics)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, runErr := p.Run(ctx, seeds)
	if errors.Is(runErr, pipeline.ErrNoSeeds) {
		slog.Warn("seed file has no urls", slog.String("seeds", cfg.SeedPath))
		return nil
	}
	if runErr != nil {
		slog.Info("shutdown signal received, stopping after the current product")
	}

	products, reviews, err := sqlite.Stats(context.Background())
	if err != nil {
		slog.Error("read store totals", slog.Any("error", err))
	}
	printSummary(result, cfg.DBPath, products, reviews)

	if runErr != nil {
		return runErr
	}
	if n := len(result.Failures); n > 0 {
		return fmt.Errorf("%d of %d seed urls failed", n, result.Seeds)
	}
	if n := len(result.ExportFailures); n > 0 {
		return fmt.Errorf("export incomplete for %d of %d seed urls; their products are stored in %s, re-running them would duplicate rows", n, result.Seeds, cfg.DBPath)
	}
	return nil
}

func createWriter(cfg *config.Config, sqlite *store.SQLiteStore) (pipeline.ReviewWriter, error) {
	switch cfg.ExportFormat {
	case "":
		return sqlite, nil
	case "json":
		export, err := pipeline.NewJSONWriter(cfg.ExportFile)
		if err != nil {
			return nil, err
		}
		return pipeline.NewMultiWriter(sqlite, export), nil
	case "csv":
		export, err := pipeline.NewCSVWriter(cfg.ExportFile)
		if err != nil {
			return nil, err
		}
		return pipeline.NewMultiWriter(sqlite, export), nil
	case "dual":
		csvWriter, err := pipeline.NewCSVWriter(cfg.ExportFile)
		if err != nil {
			return nil, err
		}
		jsonFilename := strings.TrimSuffix(cfg.ExportFile, ".csv") + ".jsonl"
		jsonWriter, err := pipeline.NewJSONWriter(jsonFilename)
		if err != nil {
			csvWriter.Close()
			return nil, err
		}
		return pipeline.NewMultiWriter(sqlite, csvWriter, jsonWriter), nil
	default:
		return nil, fmt.Errorf("%w: unsupported export format: %s", models.ErrConfig, cfg.ExportFormat)
	}
}

func printSummary(result *models.RunResult, dbPath string, totalProducts, totalReviews int) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	fmt.Printf("  Seed URLs:     %d\n", result.Seeds)
	fmt.Printf("  Products:      %d\n", result.ProductsStored)
	fmt.Printf("  Reviews:       %d\n", result.ReviewsStored)
	fmt.Printf("  Failed seeds:  %d\n", len(result.Failures))
	if len(result.ErrorsByKind) > 0 {
		fmt.Printf("  Error kinds:   %v\n", result.ErrorsByKind)
	}
	for _, failure := range result.Failures {
		fmt.Printf("    %s [%s]\n", failure.URL, failure.Kind)
	}
	if len(result.ExportFailures) > 0 {
		fmt.Printf("  Stored, export failed: %d\n", len(result.ExportFailures))
		for _, failure := range result.ExportFailures {
			fmt.Printf("    %s [%s]\n", failure.URL, failure.Kind)
		}
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Printf("  Database:      %s (%d products, %d reviews)\n", dbPath, totalProducts, totalReviews)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
