package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"deadref/packages/checker"
	"deadref/packages/config"
	"deadref/packages/coordinator"
	"deadref/packages/domain"
	"deadref/packages/history"
	"deadref/packages/metrics"
	"deadref/packages/report"
	"deadref/packages/store"
	"deadref/packages/wiki"
)

// Pacing between article fetches. The parse API is a shared resource and one
// article can already fan out into hundreds of link probes.
const articleFetchDelay = 500 * time.Millisecond

var (
	flagLimit      int
	flagDaily      bool
	flagForce      bool
	flagAllLinks   bool
	flagNoCSV      bool
	flagNoParallel bool
	flagTimeout    time.Duration
	flagDelay      time.Duration
	flagMaxWorkers int
	flagChunkSize  int
	flagOutputDir  string
)

var rootCmd = &cobra.Command{
	Use:   "scanner [article ...]",
	Short: "Scans Wikipedia article references for dead links",
	Long: `Fetches Wikipedia articles, extracts the external links from their
reference sections and classifies each one as alive, dead, bot-blocked or
already archived. Articles can be named as arguments; without arguments the
scanner picks them from the Popular pages listing, or from yesterday's most
viewed articles with --daily.`,
	Run: run,
}

func init() {
	rootCmd.Flags().IntVar(&flagLimit, "limit", 0, "Number of articles to scan when none are named")
	rootCmd.Flags().BoolVar(&flagDaily, "daily", false, "Pick articles from yesterday's most viewed list")
	rootCmd.Flags().BoolVar(&flagForce, "force", false, "Scan articles even if they were scanned recently")
	rootCmd.Flags().BoolVar(&flagAllLinks, "all-links", false, "Check every external link, not just the reference section")
	rootCmd.Flags().BoolVar(&flagNoCSV, "no-csv", false, "Skip writing the CSV and summary reports")
	rootCmd.Flags().BoolVar(&flagNoParallel, "no-parallel", false, "Check links one at a time instead of in parallel")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Per-request timeout for link probes")
	rootCmd.Flags().DurationVar(&flagDelay, "delay", 0, "Delay between probes in sequential mode")
	rootCmd.Flags().IntVar(&flagMaxWorkers, "max-workers", 0, "Concurrent probe workers in parallel mode")
	rootCmd.Flags().IntVar(&flagChunkSize, "chunk-size", 0, "Targets dispatched per worker batch")
	rootCmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "Directory for CSV and summary reports")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logDir := filepath.Dir(cfg.LogFile)
	if err := os.MkdirAll(logDir, 0750); err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error(
			"Failed to create log directory", "path", logDir, "error", err,
		)
	}

	logRotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    5,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}

	multiWriter := io.MultiWriter(os.Stdout, logRotator)

	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}).WithAttrs([]slog.Attr{slog.String("service", "deadref-scanner")})

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("limit") {
		cfg.ArticleLimit = flagLimit
	}
	if cmd.Flags().Changed("timeout") {
		cfg.RequestTimeout = flagTimeout
	}
	if cmd.Flags().Changed("delay") {
		cfg.RequestDelay = flagDelay
	}
	if cmd.Flags().Changed("max-workers") {
		cfg.MaxWorkers = flagMaxWorkers
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.ChunkSize = flagChunkSize
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = flagOutputDir
	}
	if flagNoParallel {
		cfg.Parallel = false
	}
}

func run(cmd *cobra.Command, args []string) {
	if err := godotenv.Load(); err != nil {
		slog.Info("Could not load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("FATAL: Failed to load configuration", "error", err)
		os.Exit(1)
	}
	applyFlags(cmd, &cfg)
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("--- Starting Dead Reference Scanner ---")

	if cfg.MetricsAddr != "" {
		go metrics.ExposeMetrics(cfg.MetricsAddr)
	}

	runID := uuid.New()
	startedAt := time.Now()

	var sink *store.Store
	if cfg.DatabaseURL != "" {
		s, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("Result persistence unavailable. Scanning without it.", "error", err)
		} else if err := s.BeginRun(ctx, runID, startedAt); err != nil {
			slog.Warn("Result persistence unavailable. Scanning without it.", "error", err)
			s.Close()
		} else {
			sink = s
			defer sink.Close()
		}
	}

	var hist *history.History
	if cfg.RedisAddr != "" {
		hist, err = history.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.HistoryTTL)
		if err != nil {
			slog.Warn("Scan history unavailable. Scanning without it.", "error", err)
		} else {
			defer hist.Close()
		}
	}

	client := wiki.NewClient(cfg)
	titles, err := articleTitles(ctx, client, cfg, args)
	if err != nil {
		slog.Error("Failed to resolve article list", "error", err)
		os.Exit(1)
	}

	if hist != nil && !flagForce {
		before := len(titles)
		titles = hist.FilterFresh(ctx, titles)
		if skipped := before - len(titles); skipped > 0 {
			slog.Info("Skipping recently scanned articles", "skipped", skipped)
		}
	}
	if len(titles) == 0 {
		slog.Info("No articles left to scan.")
		return
	}
	slog.Info("Resolved article list", "articles", len(titles))

	check := checker.New(checker.Options{
		Timeout:         cfg.RequestTimeout,
		UserAgent:       cfg.UserAgent,
		BlockingDomains: cfg.BlockingDomains,
		BodySniffLimit:  cfg.BodySniffLimit,
	})
	coord := coordinator.New(check, coordinator.Options{
		Parallel:   cfg.Parallel,
		MaxWorkers: cfg.MaxWorkers,
		ChunkSize:  cfg.ChunkSize,
		Delay:      cfg.RequestDelay,
	})

	articles, scanned := scanArticles(ctx, client, coord, sink, titles)

	if hist != nil && len(scanned) > 0 {
		hist.MarkScanned(context.WithoutCancel(ctx), scanned)
	}

	summary := domain.Summarize(runID.String(), articles, startedAt)
	report.LogSummary(summary)

	if !flagNoCSV && len(articles) > 0 {
		csvPath, err := report.WriteCSV(cfg.OutputDir, articles)
		if err != nil {
			slog.Error("Failed to write CSV report", "error", err)
		}
		summaryPath, err := report.WriteSummary(cfg.OutputDir, summary, articles)
		if err != nil {
			slog.Error("Failed to write summary report", "error", err)
		}
		slog.Info("Reports written", "csv", csvPath, "summary", summaryPath)
	}

	if sink != nil {
		if err := sink.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
			slog.Error("Failed to finalize run record", "error", err)
		}
	}

	slog.Info("--- Dead Reference Scanner Completed ---")
}

func articleTitles(ctx context.Context, client *wiki.Client, cfg config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if flagDaily {
		return client.TopArticles(ctx, cfg.ArticleLimit)
	}
	return client.PopularArticles(ctx, cfg.ArticleLimit)
}

// scanArticles works through the titles one by one. A failed article is
// logged and skipped; only fully scanned titles are returned for the history
// marker.
func scanArticles(ctx context.Context, client *wiki.Client, coord *coordinator.Coordinator, sink *store.Store, titles []string) ([]domain.ArticleResult, []string) {
	limiter := rate.NewLimiter(rate.Every(articleFetchDelay), 1)
	articles := make([]domain.ArticleResult, 0, len(titles))
	scanned := make([]string, 0, len(titles))

	for _, title := range titles {
		if err := limiter.Wait(ctx); err != nil {
			slog.Warn("Scan cancelled. Stopping article loop.", "remaining", len(titles)-len(articles))
			break
		}

		article, err := scanArticle(ctx, client, coord, title)
		if err != nil {
			slog.Error("Failed to scan article", "article", title, "error", err)
			continue
		}

		articles = append(articles, article)
		scanned = append(scanned, title)
		metrics.ArticlesProcessed.Inc()
		if sink != nil {
			sink.Enqueue(article)
		}
	}
	return articles, scanned
}

func scanArticle(ctx context.Context, client *wiki.Client, coord *coordinator.Coordinator, title string) (domain.ArticleResult, error) {
	html, err := client.ArticleHTML(ctx, title)
	if err != nil {
		return domain.ArticleResult{}, err
	}

	var refs []domain.Reference
	if flagAllLinks {
		refs, err = wiki.ExtractAllLinks(html)
	} else {
		refs, err = wiki.ExtractReferences(html)
	}
	if err != nil {
		return domain.ArticleResult{}, err
	}

	targets := wiki.BuildTargets(title, refs)
	slog.Info("Scanning article references", "article", wiki.CleanTitle(title), "links", len(targets))

	results := coord.Run(ctx, targets)
	return domain.ArticleResult{Title: wiki.CleanTitle(title), Results: results}, nil
}
