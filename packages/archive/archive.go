// Package archive recognizes web-archival service URLs and recovers the
// original page addresses they preserve.
package archive

import (
	"net/url"
	"regexp"
	"strings"
)

// Domains lists the hosts treated as archival services.
var Domains = []string{
	"web.archive.org",
	"wayback.archive.org",
	"archive.org",
	"archive.today",
	"archive.is",
	"archive.fo",
	"archive.md",
	"archive.ph",
	"archive.li",
	"archive.vn",
	"webcitation.org",
	"ghostarchive.org",
}

var (
	waybackPattern     = regexp.MustCompile(`^https?://(?:web|wayback)\.archive\.org/web/\d+[a-z_]*/(.+)$`)
	ghostPattern       = regexp.MustCompile(`^https?://(?:www\.)?ghostarchive\.org/archive/\w+/(.+)$`)
	webcitationPattern = regexp.MustCompile(`^https?://(?:www\.)?webcitation\.org/[^/]+/(.+)$`)
)

// Common commercial ccTLD suffixes folded to .com so regional mirrors of the
// same publisher compare equal.
var domainVariations = map[string]string{
	".co.uk":  ".com",
	".co.za":  ".com",
	".co.au":  ".com",
	".co.nz":  ".com",
	".co.in":  ".com",
	".co.jp":  ".com",
	".co.kr":  ".com",
	".co.il":  ".com",
	".com.au": ".com",
	".com.br": ".com",
	".com.mx": ".com",
	".com.sg": ".com",
	".com.hk": ".com",
	".com.tw": ".com",
	".com.my": ".com",
	".com.ph": ".com",
	".com.vn": ".com",
	".com.th": ".com",
	".com.id": ".com",
}

// IsArchiveURL reports whether raw points at a known archival service.
func IsArchiveURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range Domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// OriginalURL extracts the preserved page address embedded in an archive URL.
// It returns "" for services that hide the original behind opaque snapshot
// identifiers.
func OriginalURL(archiveURL string) string {
	archiveURL = strings.TrimSpace(archiveURL)
	for _, re := range []*regexp.Regexp{waybackPattern, ghostPattern, webcitationPattern} {
		if m := re.FindStringSubmatch(archiveURL); m != nil {
			return ensureScheme(m[1])
		}
	}

	u, err := url.Parse(archiveURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "archive.today", "archive.is", "archive.fo", "archive.md", "archive.ph", "archive.li", "archive.vn":
		// Some snapshot paths carry the original after the identifier,
		// e.g. archive.today/2024/https://example.com/page.
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		if len(parts) == 2 && (strings.HasPrefix(parts[1], "http") || strings.HasPrefix(parts[1], "www.")) {
			return ensureScheme(parts[1])
		}
	}
	return ""
}

func ensureScheme(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// Equivalent reports whether two URLs point at the same page, ignoring
// protocol, www prefix, trailing slashes and regional ccTLD variants of the
// same publisher.
func Equivalent(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	na, nb := normalize(a), normalize(b)
	if na == nb {
		return true
	}
	fa, fb := foldVariants(na), foldVariants(nb)
	if fa == fb {
		return true
	}

	// Same host with one path nested in the other still names the same page
	// for archives that strip query strings or session fragments.
	ha, pa := splitHostPath(fa)
	hb, pb := splitHostPath(fb)
	if ha != "" && ha == hb && pa != "" && pb != "" {
		return strings.Contains(pa, pb) || strings.Contains(pb, pa)
	}
	return false
}

func normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}

func foldVariants(normalized string) string {
	for variant, standard := range domainVariations {
		if strings.Contains(normalized, variant) {
			normalized = strings.Replace(normalized, variant, standard, 1)
		}
	}
	return normalized
}

func splitHostPath(normalized string) (host, path string) {
	host, path, found := strings.Cut(normalized, "/")
	if !found {
		return host, ""
	}
	return host, path
}
