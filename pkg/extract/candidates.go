package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/parse"
)

// FuzzyThreshold is the minimum SequenceMatcher ratio for a keyword match
const FuzzyThreshold = 0.6

var (
	hrefPattern = regexp.MustCompile(`(?i)href=["']([^"']*\.pdf[^"']*)["']`)
	srcPattern  = regexp.MustCompile(`(?i)src=["']([^"']*\.pdf[^"']*)["']`)
)

// Extractor proposes candidate download URLs from an HTML page
type Extractor struct {
	keywords []string
}

// New creates an Extractor matching against keywords (lowercased).
// An empty list falls back to config.DefaultKeywords.
func New(keywords []string) *Extractor {
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, config.DefaultKeywords...)
	}
	return &Extractor{keywords: cleaned}
}

// Candidates runs every strategy with the default keywords
func Candidates(page, baseURL string) []string {
	return New(nil).Candidates(page, baseURL)
}

// Candidates returns de-duplicated absolute URLs in discovery order.
// Strategies: pdf href/src pattern scan, iframe/embed sources, citation_pdf_url meta,
// fuzzy anchor/button scan, dropdown scan. Malformed markup never fails; a DOM that
// cannot be built only disables the DOM strategies.
func (e *Extractor) Candidates(page, baseURL string) []string {
	var urls []string
	for _, g := range e.CandidateGroups(page, baseURL) {
		urls = append(urls, g...)
	}
	return urls
}

// CandidateGroups is Candidates grouped per discovered link: each group holds the
// join resolution of one href, followed by its RFC 3986 resolution when that differs.
// Groups never share a URL.
func (e *Extractor) CandidateGroups(page, baseURL string) [][]string {
	c := newCollector(baseURL)

	for _, pattern := range []*regexp.Regexp{hrefPattern, srcPattern} {
		for _, m := range pattern.FindAllStringSubmatch(page, -1) {
			c.add(html.UnescapeString(m[1]))
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return c.groups
	}

	doc.Find("iframe, embed").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.Contains(src, ".pdf") {
			c.add(src)
		}
	})

	doc.Find(`meta[name="citation_pdf_url"]`).Each(func(_ int, s *goquery.Selection) {
		c.add(s.AttrOr("content", ""))
	})

	doc.Find("a, button").Each(func(_ int, s *goquery.Selection) {
		if e.fuzzyMatch(combinedText(s)) {
			c.add(firstAttr(s, "href", "data-href"))
		}
	})

	doc.Find("ul.dropdown-menu, div.dropdown, select").Each(func(_ int, menu *goquery.Selection) {
		menu.Find("a, option, button").Each(func(_ int, s *goquery.Selection) {
			if e.containsKeyword(strings.ToLower(elementText(s))) {
				c.add(firstAttr(s, "href", "data-href", "value"))
			}
		})
	})

	return c.groups
}

// fuzzyMatch flags "epdf", keyword containment, or a close SequenceMatcher ratio
func (e *Extractor) fuzzyMatch(combined string) bool {
	if combined == "" {
		return false
	}
	if strings.Contains(combined, "epdf") || e.containsKeyword(combined) {
		return true
	}
	a := strings.Split(combined, "")
	for _, kw := range e.keywords {
		if Similarity(a, strings.Split(kw, "")) >= FuzzyThreshold {
			return true
		}
	}
	return false
}

func (e *Extractor) containsKeyword(s string) bool {
	for _, kw := range e.keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Similarity is the difflib SequenceMatcher ratio of two character sequences
func Similarity(a, b []string) float64 {
	return difflib.NewMatcher(a, b).Ratio()
}

// combinedText joins visible text and the descriptive attributes, lowercased
func combinedText(s *goquery.Selection) string {
	parts := []string{elementText(s)}
	for _, attr := range []string{"title", "alt", "aria-label", "data-title"} {
		parts = append(parts, strings.TrimSpace(s.AttrOr(attr, "")))
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.ToLower(strings.Join(nonEmpty, " "))
}

func elementText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(s.AttrOr(name, "")); v != "" {
			return v
		}
	}
	return ""
}

// collector resolves and de-duplicates links, keeping first-seen order
type collector struct {
	base   string
	seen   map[string]bool
	groups [][]string
}

func newCollector(base string) *collector {
	return &collector{base: base, seen: make(map[string]bool)}
}

// add records the literal join resolution, then the RFC 3986 resolution when it differs
func (c *collector) add(href string) {
	href = strings.TrimSpace(href)
	if skipHref(href) {
		return
	}
	var group []string
	group = c.push(group, parse.ResolveLink(c.base, href))
	if ref := parse.ResolveReference(c.base, href); ref != "" {
		group = c.push(group, ref)
	}
	if len(group) > 0 {
		c.groups = append(c.groups, group)
	}
}

func (c *collector) push(group []string, u string) []string {
	key := parse.URLKey(u)
	if c.seen[key] {
		return group
	}
	c.seen[key] = true
	return append(group, u)
}

// skipHref drops empty values, in-page anchors and non-navigational schemes
func skipHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
