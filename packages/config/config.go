// Package config
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RequestTimeout time.Duration
	RequestDelay   time.Duration
	MaxWorkers     int
	ChunkSize      int
	Parallel       bool
	ArticleLimit   int

	UserAgent       string
	BlockingDomains []string
	BodySniffLimit  int64

	WikiAPIURL      string
	PageviewsAPIURL string
	WikiRestURL     string

	OutputDir string
	LogFile   string
	LogLevel  string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HistoryTTL    time.Duration

	MetricsAddr string
}

// Browser User-Agent sent on probes. Plain library UAs get walled off by
// enough hosts to skew verdicts toward blocked.
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const defaultBlockingDomains = "nytimes.com,bloomberg.com,wsj.com,ft.com,reuters.com,jstor.org,sciencedirect.com,tandfonline.com,academic.oup.com,link.springer.com"

func Load() (Config, error) {
	cfg := Config{}

	var err error
	cfg.RequestTimeout, err = time.ParseDuration(getEnv("CHECK_TIMEOUT", "5s"))
	if err != nil {
		slog.Warn("Invalid CHECK_TIMEOUT", "value", getEnv("CHECK_TIMEOUT", "5s"), "error", err)
		cfg.RequestTimeout = 5 * time.Second
	}
	cfg.RequestDelay, err = time.ParseDuration(getEnv("CHECK_DELAY", "100ms"))
	if err != nil {
		slog.Warn("Invalid CHECK_DELAY", "value", getEnv("CHECK_DELAY", "100ms"), "error", err)
		cfg.RequestDelay = 100 * time.Millisecond
	}
	cfg.MaxWorkers, err = strconv.Atoi(getEnv("MAX_WORKERS", "20"))
	if err != nil {
		slog.Warn("Invalid MAX_WORKERS", "value", getEnv("MAX_WORKERS", "20"), "error", err)
		cfg.MaxWorkers = 20
	}
	cfg.ChunkSize, _ = strconv.Atoi(getEnv("CHUNK_SIZE", "100"))
	cfg.Parallel, _ = strconv.ParseBool(getEnv("PARALLEL", "true"))
	cfg.ArticleLimit, _ = strconv.Atoi(getEnv("ARTICLE_LIMIT", "25"))

	cfg.UserAgent = getEnv("USER_AGENT", defaultUserAgent)
	cfg.BlockingDomains = strings.Split(getEnv("BLOCKING_DOMAINS", defaultBlockingDomains), ",")
	for i, d := range cfg.BlockingDomains {
		cfg.BlockingDomains[i] = strings.TrimSpace(d)
	}
	cfg.BodySniffLimit, _ = strconv.ParseInt(getEnv("BODY_SNIFF_LIMIT", "65536"), 10, 64)

	cfg.WikiAPIURL = getEnv("WIKI_API_URL", "https://en.wikipedia.org/w/api.php")
	cfg.PageviewsAPIURL = getEnv("PAGEVIEWS_API_URL", "https://wikimedia.org/api/rest_v1/metrics/pageviews/top/en.wikipedia/all-access")
	cfg.WikiRestURL = getEnv("WIKI_REST_URL", "https://en.wikipedia.org/api/rest_v1")

	cfg.OutputDir = getEnv("OUTPUT_DIR", "output")
	cfg.LogFile = getEnv("LOG_FILE", "logs/deadref.log")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// Optional backends. Empty values leave them disabled.
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, _ = strconv.Atoi(getEnv("REDIS_DB", "0"))
	cfg.HistoryTTL, _ = time.ParseDuration(getEnv("HISTORY_TTL", "168h"))
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	if cfg.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("CHECK_TIMEOUT must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.MaxWorkers < 1 {
		return cfg, fmt.Errorf("MAX_WORKERS must be at least 1, got %d", cfg.MaxWorkers)
	}
	if cfg.ChunkSize < 1 {
		return cfg, fmt.Errorf("CHUNK_SIZE must be at least 1, got %d", cfg.ChunkSize)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
