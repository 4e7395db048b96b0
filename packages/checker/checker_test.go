package checker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"deadref/packages/domain"
)

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		wantStatus domain.Status
		wantCode   int
	}{
		{"ok", http.StatusOK, domain.StatusAlive, http.StatusOK},
		{"no content", http.StatusNoContent, domain.StatusAlive, http.StatusNoContent},
		{"forbidden", http.StatusForbidden, domain.StatusBlocked, http.StatusForbidden},
		{"not found both methods", http.StatusNotFound, domain.StatusDead, http.StatusNotFound},
		{"gone", http.StatusGone, domain.StatusDead, http.StatusGone},
		{"server error", http.StatusInternalServerError, domain.StatusDead, http.StatusInternalServerError},
		{"unavailable", http.StatusServiceUnavailable, domain.StatusDead, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer server.Close()

			c := New(Options{Timeout: 2 * time.Second})
			got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL})
			if got.Status != tt.wantStatus {
				t.Errorf("Classify() status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.StatusCode != tt.wantCode {
				t.Errorf("Classify() code = %d, want %d", got.StatusCode, tt.wantCode)
			}
		})
	}
}

func TestClassifyHeadRejectedGetServed(t *testing.T) {
	var heads, gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gets.Add(1)
		fmt.Fprint(w, "still here")
	}))
	defer server.Close()

	c := New(Options{Timeout: 2 * time.Second})
	got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL})
	if got.Status != domain.StatusAlive {
		t.Errorf("Classify() status = %q, want %q (detail: %s)", got.Status, domain.StatusAlive, got.Detail)
	}
	if got.StatusCode != http.StatusOK {
		t.Errorf("Classify() code = %d, want %d", got.StatusCode, http.StatusOK)
	}
	if heads.Load() != 1 || gets.Load() != 1 {
		t.Errorf("request counts = %d HEAD / %d GET, want 1 / 1", heads.Load(), gets.Load())
	}
}

func TestClassifyArchiveShortCircuit(t *testing.T) {
	var originHits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer origin.Close()

	archiveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer archiveSrv.Close()

	c := New(Options{Timeout: 2 * time.Second})
	got := c.Classify(context.Background(), domain.LinkTarget{
		OriginalURL: origin.URL,
		ArchiveURL:  archiveSrv.URL,
	})
	if got.Status != domain.StatusArchived {
		t.Errorf("Classify() status = %q, want %q", got.Status, domain.StatusArchived)
	}
	if n := originHits.Load(); n != 0 {
		t.Errorf("original received %d requests, want 0", n)
	}
	if got.Code() != "Not checked" {
		t.Errorf("Code() = %q, want %q", got.Code(), "Not checked")
	}
}

func TestClassifyArchiveHeadRejectedGetServed(t *testing.T) {
	archiveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "snapshot")
	}))
	defer archiveSrv.Close()

	c := New(Options{Timeout: 2 * time.Second})
	got := c.Classify(context.Background(), domain.LinkTarget{
		OriginalURL: "http://192.0.2.1/unreachable",
		ArchiveURL:  archiveSrv.URL,
	})
	if got.Status != domain.StatusArchived {
		t.Errorf("Classify() status = %q, want %q", got.Status, domain.StatusArchived)
	}
}

func TestClassifyArchiveUnreachableFallsThrough(t *testing.T) {
	var originHits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer origin.Close()

	archiveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer archiveSrv.Close()

	c := New(Options{Timeout: 2 * time.Second})
	got := c.Classify(context.Background(), domain.LinkTarget{
		OriginalURL: origin.URL,
		ArchiveURL:  archiveSrv.URL,
	})
	if got.Status != domain.StatusAlive {
		t.Errorf("Classify() status = %q, want %q", got.Status, domain.StatusAlive)
	}
	if originHits.Load() == 0 {
		t.Error("original should be probed when the archive is unreachable")
	}
}

func TestClassifyArchiveServiceLink(t *testing.T) {
	// No server backs this URL. The verdict must come without network I/O.
	c := New(Options{Timeout: 100 * time.Millisecond})
	got := c.Classify(context.Background(), domain.LinkTarget{
		OriginalURL: "https://web.archive.org/web/20230101000000/https://example.com/page",
	})
	if got.Status != domain.StatusArchived {
		t.Errorf("Classify() status = %q, want %q", got.Status, domain.StatusArchived)
	}
}

func TestClassifyBotBlock(t *testing.T) {
	t.Run("header marker", func(t *testing.T) {
		var gets atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				gets.Add(1)
			}
			w.Header().Set("Server", "cloudflare")
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		c := New(Options{Timeout: 2 * time.Second})
		got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL})
		if got.Status != domain.StatusBlocked {
			t.Fatalf("Classify() status = %q, want %q", got.Status, domain.StatusBlocked)
		}
		if !strings.Contains(got.Detail, "cloudflare") {
			t.Errorf("Detail = %q, want cloudflare marker", got.Detail)
		}
		if gets.Load() != 0 {
			t.Errorf("body sniff ran despite header signal, %d GETs", gets.Load())
		}
	})

	t.Run("body phrase", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			if r.Method == http.MethodGet {
				fmt.Fprint(w, "<html><body>Please complete the CAPTCHA to continue.</body></html>")
			}
		}))
		defer server.Close()

		c := New(Options{Timeout: 2 * time.Second})
		got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL})
		if got.Status != domain.StatusBlocked {
			t.Fatalf("Classify() status = %q, want %q", got.Status, domain.StatusBlocked)
		}
		if !strings.Contains(got.Detail, "captcha") {
			t.Errorf("Detail = %q, want captcha marker", got.Detail)
		}
	})

	t.Run("domain list", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		c := New(Options{Timeout: 2 * time.Second, BlockingDomains: []string{"127.0.0.1"}})
		got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL})
		if got.Status != domain.StatusBlocked {
			t.Fatalf("Classify() status = %q, want %q", got.Status, domain.StatusBlocked)
		}
		if !strings.Contains(got.Detail, "127.0.0.1") {
			t.Errorf("Detail = %q, want domain match", got.Detail)
		}
	})

	t.Run("no signals still blocked", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		c := New(Options{Timeout: 2 * time.Second})
		got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL})
		if got.Status != domain.StatusBlocked {
			t.Fatalf("Classify() status = %q, want %q", got.Status, domain.StatusBlocked)
		}
		if got.StatusCode != http.StatusForbidden {
			t.Errorf("StatusCode = %d, want 403", got.StatusCode)
		}
		if !strings.Contains(got.Detail, "no explicit signal") {
			t.Errorf("Detail = %q, want conservative-default note", got.Detail)
		}
	})
}

func TestClassifyTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(80 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Run("deadline below latency", func(t *testing.T) {
		c := New(Options{Timeout: 20 * time.Millisecond})
		got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL})
		if got.Status != domain.StatusTimeout {
			t.Errorf("Classify() status = %q, want %q (detail: %s)", got.Status, domain.StatusTimeout, got.Detail)
		}
		if got.Code() != "TIMEOUT" {
			t.Errorf("Code() = %q, want TIMEOUT", got.Code())
		}
	})

	t.Run("deadline above latency", func(t *testing.T) {
		c := New(Options{Timeout: 2 * time.Second})
		got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL})
		if got.Status != domain.StatusAlive {
			t.Errorf("Classify() status = %q, want %q", got.Status, domain.StatusAlive)
		}
	})
}

func TestClassifyConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	c := New(Options{Timeout: 2 * time.Second})
	got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: addr})
	if got.Status != domain.StatusConnectionError {
		t.Errorf("Classify() status = %q, want %q (detail: %s)", got.Status, domain.StatusConnectionError, got.Detail)
	}
	if got.Code() != "CONNECTION_ERROR" {
		t.Errorf("Code() = %q, want CONNECTION_ERROR", got.Code())
	}
}

func TestClassifyDNSFailure(t *testing.T) {
	c := New(Options{Timeout: 2 * time.Second})
	got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: "http://no-such-host.invalid/page"})
	if got.Status != domain.StatusConnectionError {
		t.Errorf("Classify() status = %q, want %q (detail: %s)", got.Status, domain.StatusConnectionError, got.Detail)
	}
}

func TestClassifyMalformedURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"no scheme", "example.com/page"},
		{"bad scheme", "ftp://example.com/file"},
		{"scheme only", "http://"},
		{"garbage", "://nope"},
	}
	c := New(Options{Timeout: 100 * time.Millisecond})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: tt.url})
			if got.Status != domain.StatusError {
				t.Errorf("Classify(%q) status = %q, want %q", tt.url, got.Status, domain.StatusError)
			}
			if got.Detail == "" {
				t.Error("Detail should explain the rejection")
			}
		})
	}
}

func TestClassifyFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(Options{Timeout: 2 * time.Second})
	got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL + "/start"})
	if got.Status != domain.StatusAlive {
		t.Errorf("Classify() status = %q, want %q", got.Status, domain.StatusAlive)
	}
	if got.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200 from the redirect target", got.StatusCode)
	}
}

func TestClassifyRedirectLoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer server.Close()

	c := New(Options{Timeout: 2 * time.Second})
	got := c.Classify(context.Background(), domain.LinkTarget{OriginalURL: server.URL + "/loop"})
	if got.Status != domain.StatusError {
		t.Errorf("Classify() status = %q, want %q (detail: %s)", got.Status, domain.StatusError, got.Detail)
	}
	if !strings.Contains(got.Detail, "redirect") {
		t.Errorf("Detail = %q, want redirect cap mention", got.Detail)
	}
}
