package checker

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"deadref/packages/metrics"
)

// DefaultHeaderMarkers are matched against lowercased "Name: value" header
// entries of a 403 response.
var DefaultHeaderMarkers = []string{
	"cloudflare",
	"captcha",
	"challenge",
	"bot",
	"automated",
	"rate limit",
	"access denied",
	"security",
	"blocked",
}

// DefaultBodyMarkers are matched against the lowercased body text of a
// bounded GET re-fetch.
var DefaultBodyMarkers = []string{
	"access denied",
	"forbidden",
	"blocked",
	"bot detected",
	"automated access",
	"rate limit",
	"captcha",
	"challenge",
	"security check",
	"cloudflare",
	"ddos protection",
}

// blockSignal names the automation-blocking evidence behind a 403. Absence
// of evidence still reads as blocking: hosts that refuse a browser-styled
// HEAD are overwhelmingly bot walls, not removed pages.
func (c *Checker) blockSignal(ctx context.Context, rawURL string, headers http.Header) string {
	if marker, ok := matchHeaders(headers, c.opts.HeaderMarkers); ok {
		return "blocking header marker: " + marker
	}
	if marker, ok := c.sniffBody(ctx, rawURL); ok {
		return "blocking phrase in body: " + marker
	}
	if host, ok := matchDomain(rawURL, c.opts.BlockingDomains); ok {
		return "domain known to block automated clients: " + host
	}
	return "no explicit signal, 403 treated as automated-traffic block"
}

func matchHeaders(headers http.Header, markers []string) (string, bool) {
	for name, values := range headers {
		entry := strings.ToLower(name + ": " + strings.Join(values, " "))
		for _, marker := range markers {
			if strings.Contains(entry, marker) {
				return marker, true
			}
		}
	}
	return "", false
}

// sniffBody re-fetches the page with GET and scans a bounded prefix of the
// decoded body for blocking phrases.
func (c *Checker) sniffBody(ctx context.Context, rawURL string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ProbeDuration.WithLabelValues("sniff").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.opts.BodySniffLimit)
	reader, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = limited
	}
	raw, err := io.ReadAll(reader)
	if err != nil && len(raw) == 0 {
		return "", false
	}

	text := strings.ToLower(string(raw))
	for _, marker := range c.opts.BodyMarkers {
		if strings.Contains(text, marker) {
			return marker, true
		}
	}
	return "", false
}

func matchDomain(rawURL string, domains []string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range domains {
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}
