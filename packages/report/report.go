// Package report writes the scan artifacts: a CSV row per checked link and a
// plain-text run digest.
package report

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"deadref/packages/domain"
)

const timestampLayout = "20060102_150405"

var csvHeader = []string{"article_title", "url", "archive_url", "has_archive", "error_code", "timestamp"}

var statusOrder = []domain.Status{
	domain.StatusAlive,
	domain.StatusArchived,
	domain.StatusDead,
	domain.StatusBlocked,
	domain.StatusConnectionError,
	domain.StatusTimeout,
	domain.StatusError,
	domain.StatusNotChecked,
}

// WriteCSV writes one row per classified link and returns the file path.
func WriteCSV(dir string, articles []domain.ArticleResult) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("report: failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("dead_links_report_%s.csv", time.Now().Format(timestampLayout)))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("report: failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("report: failed to write header: %w", err)
	}
	for _, article := range articles {
		for _, r := range article.Results {
			row := []string{
				article.Title,
				r.Target.OriginalURL,
				r.Target.ArchiveURL,
				strconv.FormatBool(r.Target.HasArchive()),
				r.Code(),
				r.CheckedAt.Format(time.RFC3339),
			}
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("report: failed to write row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("report: failed to flush csv: %w", err)
	}
	return path, nil
}

// WriteSummary writes the human-readable digest next to the CSV.
func WriteSummary(dir string, summary domain.RunSummary, articles []domain.ArticleResult) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("report: failed to create output directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("Dead reference scan summary\n")
	b.WriteString("===========================\n\n")
	fmt.Fprintf(&b, "Run ID:           %s\n", summary.RunID)
	fmt.Fprintf(&b, "Started:          %s\n", summary.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration:         %s\n", formatDuration(summary.Elapsed))
	fmt.Fprintf(&b, "Articles scanned: %d\n", summary.Articles)
	fmt.Fprintf(&b, "Links checked:    %d\n\n", summary.Links)

	b.WriteString("Verdicts:\n")
	for _, s := range statusOrder {
		if n := summary.ByStatus[s]; n > 0 {
			fmt.Fprintf(&b, "  %-17s %d\n", string(s), n)
		}
	}

	if len(summary.ByCode) > 0 {
		b.WriteString("\nFailure codes:\n")
		codes := make([]string, 0, len(summary.ByCode))
		for code := range summary.ByCode {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			label := code
			if code == "403" {
				label = "403 (bot blocked)"
			}
			fmt.Fprintf(&b, "  %-17s %d\n", label, summary.ByCode[code])
		}
	}

	wroteHeader := false
	for _, article := range articles {
		dead := article.ByStatus(domain.StatusDead)
		if len(dead) == 0 {
			continue
		}
		if !wroteHeader {
			b.WriteString("\nDead links by article:\n")
			wroteHeader = true
		}
		fmt.Fprintf(&b, "\n%s\n", article.Title)
		for _, r := range dead {
			fmt.Fprintf(&b, "  [%s] %s\n", r.Code(), r.Target.OriginalURL)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("dead_links_summary_%s.txt", summary.Started.Format(timestampLayout)))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("report: failed to write summary: %w", err)
	}
	return path, nil
}

// LogSummary emits the aggregate counters through the structured logger.
func LogSummary(summary domain.RunSummary) {
	slog.Info("Scan run complete",
		"run_id", summary.RunID,
		"articles", summary.Articles,
		"links", summary.Links,
		"alive", summary.ByStatus[domain.StatusAlive],
		"archived", summary.ByStatus[domain.StatusArchived],
		"dead", summary.ByStatus[domain.StatusDead],
		"blocked", summary.ByStatus[domain.StatusBlocked],
		"duration", formatDuration(summary.Elapsed),
	)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
