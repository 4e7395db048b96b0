package wiki

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"deadref/packages/archive"
	"deadref/packages/domain"
)

// ExtractReferences pulls external links out of an article's citation list.
// Each reference pairs the cited original URL with an archived copy when one
// sits in the same citation.
func ExtractReferences(html string) ([]domain.Reference, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("wiki: failed to parse article HTML: %w", err)
	}

	items := doc.Find("ol.references > li")
	if items.Length() == 0 {
		// Some skins render citations without the classed list.
		items = doc.Find("li[id^='cite_note']")
	}

	seen := make(map[string]bool)
	var refs []domain.Reference
	items.Each(func(_ int, item *goquery.Selection) {
		refs = append(refs, referencesFrom(item, seen)...)
	})
	return refs, nil
}

// ExtractAllLinks collects every external link in the document, not only the
// citation list. Archive association then works document-wide.
func ExtractAllLinks(html string) ([]domain.Reference, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("wiki: failed to parse article HTML: %w", err)
	}
	seen := make(map[string]bool)
	return referencesFrom(doc.Selection, seen), nil
}

func referencesFrom(scope *goquery.Selection, seen map[string]bool) []domain.Reference {
	var originals, archives []string
	scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return
		}
		if archive.IsArchiveURL(href) {
			archives = append(archives, href)
		} else {
			originals = append(originals, href)
		}
	})

	used := make([]bool, len(archives))
	var refs []domain.Reference
	for _, orig := range originals {
		if seen[orig] {
			continue
		}
		seen[orig] = true
		refs = append(refs, domain.Reference{
			OriginalURL: orig,
			ArchiveURL:  pickArchive(orig, archives, used),
		})
	}

	// Archives nobody claimed still name a preserved page worth reporting.
	for i, arch := range archives {
		if used[i] {
			continue
		}
		orig := archive.OriginalURL(arch)
		if orig == "" {
			// The snapshot hides its original; check the snapshot itself.
			orig = arch
		}
		if seen[orig] {
			continue
		}
		seen[orig] = true
		refs = append(refs, domain.Reference{OriginalURL: orig, ArchiveURL: arch})
	}
	return refs
}

// pickArchive prefers the archive whose embedded address matches the cited
// URL, falling back to the first unclaimed archive in the same scope.
func pickArchive(original string, archives []string, used []bool) string {
	for i, arch := range archives {
		if !used[i] && archive.Equivalent(original, archive.OriginalURL(arch)) {
			used[i] = true
			return arch
		}
	}
	for i, arch := range archives {
		if !used[i] {
			used[i] = true
			return arch
		}
	}
	return ""
}

// BuildTargets converts one article's extracted references into link targets.
func BuildTargets(title string, refs []domain.Reference) []domain.LinkTarget {
	targets := make([]domain.LinkTarget, 0, len(refs))
	for _, ref := range refs {
		targets = append(targets, domain.LinkTarget{
			ArticleTitle: CleanTitle(title),
			OriginalURL:  ref.OriginalURL,
			ArchiveURL:   ref.ArchiveURL,
		})
	}
	return targets
}
