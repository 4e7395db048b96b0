// Package domain
package domain

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusAlive           Status = "alive"
	StatusDead            Status = "dead"
	StatusBlocked         Status = "blocked"
	StatusArchived        Status = "archived"
	StatusConnectionError Status = "connection_error"
	StatusTimeout         Status = "timeout"
	StatusError           Status = "error"
	StatusNotChecked      Status = "not_checked"
)

type LinkTarget struct {
	ArticleTitle string `json:"article_title,omitempty"`
	OriginalURL  string `json:"original_url"`
	ArchiveURL   string `json:"archive_url,omitempty"`
}

func (t LinkTarget) HasArchive() bool {
	return t.ArchiveURL != ""
}

type ClassificationResult struct {
	Target     LinkTarget `json:"target"`
	Status     Status     `json:"status"`
	StatusCode int        `json:"status_code,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	CheckedAt  time.Time  `json:"checked_at"`
}

// Code renders the report cell for a result: the numeric status code when one
// was obtained, a sentinel for code-less failures, "Not checked" when the
// original was never probed.
func (r ClassificationResult) Code() string {
	switch {
	case r.Status == StatusArchived || r.Status == StatusNotChecked:
		return "Not checked"
	case r.StatusCode > 0:
		return strconv.Itoa(r.StatusCode)
	case r.Status == StatusConnectionError:
		return "CONNECTION_ERROR"
	case r.Status == StatusTimeout:
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

type Reference struct {
	OriginalURL, ArchiveURL string
}

type ArticleResult struct {
	Title   string                 `json:"title"`
	Results []ClassificationResult `json:"results"`
}

func (a ArticleResult) ByStatus(s Status) []ClassificationResult {
	var out []ClassificationResult
	for _, r := range a.Results {
		if r.Status == s {
			out = append(out, r)
		}
	}
	return out
}

type RunSummary struct {
	RunID    string
	Articles int
	Links    int
	ByStatus map[Status]int
	ByCode   map[string]int
	Started  time.Time
	Elapsed  time.Duration
}

// Summarize aggregates per-article results into run totals. Failure codes are
// tallied only for verdicts an editor would act on.
func Summarize(runID string, articles []ArticleResult, started time.Time) RunSummary {
	s := RunSummary{
		RunID:    runID,
		Articles: len(articles),
		ByStatus: make(map[Status]int),
		ByCode:   make(map[string]int),
		Started:  started,
		Elapsed:  time.Since(started),
	}
	for _, a := range articles {
		for _, r := range a.Results {
			s.Links++
			s.ByStatus[r.Status]++
			if r.Status == StatusDead || r.Status == StatusBlocked {
				s.ByCode[r.Code()]++
			}
		}
	}
	return s
}
