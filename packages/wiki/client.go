// Package wiki talks to the Wikimedia APIs and digs citation links out of
// rendered article HTML.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"deadref/packages/config"
)

// API requests identify the tool per Wikimedia etiquette. The browser UA is
// reserved for probing reference links.
const apiUserAgent = "deadref/1.0 (dead reference scanning; github.com/deadref)"

const apiTimeout = 30 * time.Second

type Client struct {
	http         *http.Client
	apiURL       string
	pageviewsURL string
	restURL      string
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		http:         &http.Client{Timeout: apiTimeout},
		apiURL:       cfg.WikiAPIURL,
		pageviewsURL: cfg.PageviewsAPIURL,
		restURL:      cfg.WikiRestURL,
	}
}

type topViewsResponse struct {
	Items []struct {
		Articles []struct {
			Article string `json:"article"`
			Views   int64  `json:"views"`
			Rank    int    `json:"rank"`
		} `json:"articles"`
	} `json:"items"`
}

// TopArticles returns yesterday's most viewed article titles, service pages
// filtered out.
func (c *Client) TopArticles(ctx context.Context, limit int) ([]string, error) {
	day := time.Now().UTC().AddDate(0, 0, -1)
	endpoint := fmt.Sprintf("%s/%d/%02d/%02d", c.pageviewsURL, day.Year(), int(day.Month()), day.Day())

	var payload topViewsResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("wiki: failed to fetch top articles: %w", err)
	}
	if len(payload.Items) == 0 {
		return nil, errors.New("wiki: pageviews response carried no items")
	}

	titles := make([]string, 0, limit)
	for _, art := range payload.Items[0].Articles {
		if len(titles) >= limit {
			break
		}
		if strings.HasPrefix(art.Article, "Special:") || art.Article == "Main_Page" {
			continue
		}
		titles = append(titles, art.Article)
	}
	return titles, nil
}

// PopularArticles returns titles from the curated all-time popularity
// listing, parsed out of the page's rendered HTML.
func (c *Client) PopularArticles(ctx context.Context, limit int) ([]string, error) {
	endpoint := c.restURL + "/page/html/" + url.PathEscape("Wikipedia:Popular_pages")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("wiki: failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", apiUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wiki: failed to fetch popular pages: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wiki: bad status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wiki: failed to parse popular pages: %w", err)
	}

	seen := make(map[string]bool)
	var titles []string
	doc.Find("a[href^='./']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		title := strings.TrimPrefix(href, "./")
		if i := strings.IndexAny(title, "#?"); i >= 0 {
			title = title[:i]
		}
		if unescaped, err := url.PathUnescape(title); err == nil {
			title = unescaped
		}
		// Colons mark namespace pages (Wikipedia:, Talk:, File:, ...).
		if title == "" || title == "Main_Page" || strings.Contains(title, ":") || seen[title] {
			return true
		}
		seen[title] = true
		titles = append(titles, title)
		return len(titles) < limit
	})
	if len(titles) == 0 {
		return nil, errors.New("wiki: no article links found in popular pages")
	}
	return titles, nil
}

type parseResponse struct {
	Parse struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"parse"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// ArticleHTML fetches an article's rendered HTML through the parse API.
func (c *Client) ArticleHTML(ctx context.Context, title string) (string, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("prop", "text")
	params.Set("formatversion", "2")
	params.Set("format", "json")

	var payload parseResponse
	if err := c.getJSON(ctx, c.apiURL+"?"+params.Encode(), &payload); err != nil {
		return "", fmt.Errorf("wiki: failed to fetch article %q: %w", title, err)
	}
	if payload.Error != nil {
		return "", fmt.Errorf("wiki: parse API rejected %q: %s", title, payload.Error.Info)
	}
	if payload.Parse.Text == "" {
		return "", fmt.Errorf("wiki: empty parse payload for %q", title)
	}
	return payload.Parse.Text, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", apiUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status code: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CleanTitle turns an API article key into its display form.
func CleanTitle(title string) string {
	return strings.ReplaceAll(title, "_", " ")
}
