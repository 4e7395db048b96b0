package wiki

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deadref/packages/config"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return NewClient(config.Config{
		WikiAPIURL:      server.URL + "/w/api.php",
		PageviewsAPIURL: server.URL + "/metrics/pageviews/top/en.wikipedia/all-access",
		WikiRestURL:     server.URL + "/api/rest_v1",
	})
}

func TestTopArticles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics/pageviews/top/en.wikipedia/all-access/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"articles":[
			{"article":"Main_Page","views":100,"rank":1},
			{"article":"Special:Search","views":90,"rank":2},
			{"article":"Artificial_intelligence","views":80,"rank":3},
			{"article":"Moon","views":70,"rank":4},
			{"article":"Ada_Lovelace","views":60,"rank":5}
		]}]}`)
	})

	client := newTestClient(t, mux)
	titles, err := client.TopArticles(context.Background(), 2)
	if err != nil {
		t.Fatalf("TopArticles() error = %v", err)
	}
	want := []string{"Artificial_intelligence", "Moon"}
	if len(titles) != len(want) {
		t.Fatalf("TopArticles() = %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("titles[%d] = %q, want %q", i, titles[i], want[i])
		}
	}
}

func TestTopArticlesEmptyPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics/pageviews/top/en.wikipedia/all-access/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	})

	client := newTestClient(t, mux)
	if _, err := client.TopArticles(context.Background(), 5); err == nil {
		t.Error("TopArticles() with empty payload should fail")
	}
}

func TestPopularArticles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rest_v1/page/html/Wikipedia:Popular_pages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><table>
			<tr><td><a href="./Earth">Earth</a></td></tr>
			<tr><td><a href="./Talk:Earth">talk</a></td></tr>
			<tr><td><a href="./Main_Page">main</a></td></tr>
			<tr><td><a href="./Moon#section">Moon</a></td></tr>
			<tr><td><a href="./Earth">Earth again</a></td></tr>
			<tr><td><a href="./Cleopatra">Cleopatra</a></td></tr>
		</table></body></html>`)
	})

	client := newTestClient(t, mux)
	titles, err := client.PopularArticles(context.Background(), 10)
	if err != nil {
		t.Fatalf("PopularArticles() error = %v", err)
	}
	want := []string{"Earth", "Moon", "Cleopatra"}
	if len(titles) != len(want) {
		t.Fatalf("PopularArticles() = %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("titles[%d] = %q, want %q", i, titles[i], want[i])
		}
	}
}

func TestPopularArticlesHonorsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rest_v1/page/html/Wikipedia:Popular_pages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="./One">1</a><a href="./Two">2</a><a href="./Three">3</a>
		</body></html>`)
	})

	client := newTestClient(t, mux)
	titles, err := client.PopularArticles(context.Background(), 2)
	if err != nil {
		t.Fatalf("PopularArticles() error = %v", err)
	}
	if len(titles) != 2 {
		t.Errorf("got %d titles, want 2", len(titles))
	}
}

func TestArticleHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/w/api.php", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "parse" || q.Get("prop") != "text" || q.Get("formatversion") != "2" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		switch q.Get("page") {
		case "Moon":
			fmt.Fprint(w, `{"parse":{"title":"Moon","text":"<div>lunar content</div>"}}`)
		default:
			fmt.Fprint(w, `{"error":{"code":"missingtitle","info":"The page you specified doesn't exist."}}`)
		}
	})

	client := newTestClient(t, mux)

	html, err := client.ArticleHTML(context.Background(), "Moon")
	if err != nil {
		t.Fatalf("ArticleHTML() error = %v", err)
	}
	if !strings.Contains(html, "lunar content") {
		t.Errorf("ArticleHTML() = %q, want parse text", html)
	}

	if _, err := client.ArticleHTML(context.Background(), "No_Such_Page"); err == nil {
		t.Error("ArticleHTML() for a missing page should fail")
	} else if !strings.Contains(err.Error(), "doesn't exist") {
		t.Errorf("error = %v, want the API info string", err)
	}
}

func TestArticleHTMLBadStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/w/api.php", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := newTestClient(t, mux)
	if _, err := client.ArticleHTML(context.Background(), "Moon"); err == nil {
		t.Error("ArticleHTML() on API outage should fail")
	}
}
