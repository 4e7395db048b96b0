// Package checker classifies the liveness of reference links. Transport
// faults never surface as errors; every target gets exactly one verdict.
package checker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"deadref/packages/archive"
	"deadref/packages/domain"
	"deadref/packages/metrics"
)

const (
	DefaultTimeout        = 5 * time.Second
	DefaultBodySniffLimit = 64 * 1024
)

type Options struct {
	Timeout         time.Duration
	UserAgent       string
	BlockingDomains []string
	HeaderMarkers   []string
	BodyMarkers     []string
	BodySniffLimit  int64
}

type Checker struct {
	client *http.Client
	opts   Options
}

// New builds a checker around a single shared HTTP client. Zero-value
// options fall back to defaults; redirects follow the client's standard
// ten-hop cap.
func New(opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if opts.BodySniffLimit <= 0 {
		opts.BodySniffLimit = DefaultBodySniffLimit
	}
	if opts.HeaderMarkers == nil {
		opts.HeaderMarkers = DefaultHeaderMarkers
	}
	if opts.BodyMarkers == nil {
		opts.BodyMarkers = DefaultBodyMarkers
	}
	return &Checker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts: opts,
	}
}

// Classify determines the verdict for a single reference link.
func (c *Checker) Classify(ctx context.Context, target domain.LinkTarget) domain.ClassificationResult {
	res := c.classify(ctx, target)
	metrics.ChecksTotal.WithLabelValues(string(res.Status)).Inc()
	return res
}

func (c *Checker) classify(ctx context.Context, target domain.LinkTarget) domain.ClassificationResult {
	res := domain.ClassificationResult{Target: target, CheckedAt: time.Now().UTC()}

	if err := validateURL(target.OriginalURL); err != nil {
		res.Status = domain.StatusError
		res.Detail = err.Error()
		return res
	}

	// A reference that already cites an archival service needs no probe.
	if archive.IsArchiveURL(target.OriginalURL) {
		res.Status = domain.StatusArchived
		res.Detail = "link already points at an archival service"
		return res
	}

	// A reachable archived copy settles the verdict without ever touching
	// the original.
	if target.ArchiveURL != "" && c.archiveReachable(ctx, target.ArchiveURL) {
		res.Status = domain.StatusArchived
		res.Detail = "archived copy reachable"
		return res
	}

	return c.probeOriginal(ctx, target)
}

func (c *Checker) archiveReachable(ctx context.Context, archiveURL string) bool {
	if validateURL(archiveURL) != nil {
		return false
	}
	status, err := c.probe(ctx, http.MethodHead, archiveURL, "archive")
	if err != nil || status >= 400 {
		status, err = c.probe(ctx, http.MethodGet, archiveURL, "archive")
	}
	return err == nil && status < 400
}

func (c *Checker) probeOriginal(ctx context.Context, target domain.LinkTarget) domain.ClassificationResult {
	res := domain.ClassificationResult{Target: target, CheckedAt: time.Now().UTC()}

	status, headers, err := c.head(ctx, target.OriginalURL)
	if err != nil {
		res.Status, res.Detail = classifyTransportError(err)
		return res
	}

	switch {
	case status < 400:
		res.Status = domain.StatusAlive
		res.StatusCode = status
	case status == http.StatusForbidden:
		res.Status = domain.StatusBlocked
		res.StatusCode = status
		res.Detail = c.blockSignal(ctx, target.OriginalURL, headers)
	case status == http.StatusNotFound:
		res.Status, res.StatusCode = c.getFallback(ctx, target.OriginalURL)
	default:
		res.Status = domain.StatusDead
		res.StatusCode = status
	}
	return res
}

// getFallback retries a 404 with one GET. Some hosts reject HEAD outright
// while serving GET normally.
func (c *Checker) getFallback(ctx context.Context, rawURL string) (domain.Status, int) {
	status, err := c.probe(ctx, http.MethodGet, rawURL, "get")
	if err != nil {
		return domain.StatusDead, http.StatusNotFound
	}
	if status < 400 {
		return domain.StatusAlive, status
	}
	return domain.StatusDead, status
}

func (c *Checker) head(ctx context.Context, rawURL string) (int, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("checker: failed to build HEAD request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ProbeDuration.WithLabelValues("head").Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, nil, err
	}
	drainAndClose(resp.Body)
	return resp.StatusCode, resp.Header, nil
}

// probe issues a single request and discards the body as soon as the status
// line is read.
func (c *Checker) probe(ctx context.Context, method, rawURL, kind string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("checker: failed to build %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ProbeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}
	drainAndClose(resp.Body)
	return resp.StatusCode, nil
}

// drainAndClose reads a small remainder before closing so keep-alive
// connections stay reusable without downloading large payloads.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4*1024))
	_ = body.Close()
}

// validateURL rejects targets that cannot produce a meaningful probe, before
// any network traffic happens.
func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("unparseable URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}

// classifyTransportError maps a transport fault onto the verdict taxonomy.
func classifyTransportError(err error) (domain.Status, string) {
	var (
		dnsErr  *net.DNSError
		certErr *tls.CertificateVerificationError
		netErr  net.Error
	)
	switch {
	case errors.Is(err, context.Canceled):
		return domain.StatusNotChecked, "run cancelled mid-probe"
	case errors.Is(err, context.DeadlineExceeded):
		return domain.StatusTimeout, "request deadline exceeded"
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.StatusTimeout, err.Error()
	case errors.As(err, &dnsErr):
		return domain.StatusConnectionError, "DNS resolution failed for " + dnsErr.Name
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return domain.StatusConnectionError, err.Error()
	case errors.As(err, &certErr):
		return domain.StatusConnectionError, err.Error()
	}

	msg := err.Error()
	if strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") {
		return domain.StatusConnectionError, msg
	}
	return domain.StatusError, msg
}
