package parse

import (
	"net/url"
	"regexp"
	"strings"
)

var validHost = regexp.MustCompile(`^[A-Za-z0-9.-]+(:[0-9]+)?$`)

// ResolveLink turns an href found on a page into an absolute URL against base.
//   - absolute http(s) hrefs are returned unchanged
//   - hrefs starting with "/" are joined to base's scheme and host
//   - anything else is joined to base with exactly one "/"
//
// It never fails. A base without a usable scheme and host is treated as https.
func ResolveLink(base, href string) string {
	if hasHTTPScheme(href) {
		return href
	}

	origin, full := splitBase(base)
	if strings.HasPrefix(href, "/") {
		return origin + href
	}
	return strings.TrimRight(full, "/") + "/" + strings.TrimLeft(href, "/")
}

// ResolveReference resolves href the way a browser would (RFC 3986), so
// "paper.pdf" against "https://x.org/article/5" becomes "https://x.org/article/paper.pdf".
// Returns "" when either side cannot be parsed or the result is not http(s).
func ResolveReference(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// hasHTTPScheme reports whether href is already an absolute http(s) URL with a host
func hasHTTPScheme(href string) bool {
	lower := strings.ToLower(href)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	parsed, err := url.Parse(href)
	return err == nil && parsed.Host != ""
}

// splitBase returns "scheme://host" and the full base string, both guaranteed
// to carry a scheme and host.
func splitBase(base string) (origin, full string) {
	base = strings.TrimSpace(base)
	parsed, err := url.Parse(base)
	if err == nil && parsed.Scheme != "" && parsed.Host != "" {
		return parsed.Scheme + "://" + parsed.Host, base
	}

	// Schemeless or unparseable: assume https and take everything up to the first "/" as host
	rest := strings.TrimLeft(strings.TrimPrefix(base, "//"), "/")
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	host := rest
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		host = rest[:i]
	}
	if !validHost.MatchString(host) {
		return "https://localhost", "https://localhost"
	}
	return "https://" + host, "https://" + rest
}
