package parse

import (
	"net/url"
	"strings"
	"testing"
)

func TestNormalizeURL_NilInput(t *testing.T) {
	result := NormalizeURL(nil)
	if result != "" {
		t.Errorf("NormalizeURL(nil) = %q, want empty string", result)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"UppercaseSchemeHost", "HTTPS://Example.COM/Paper.pdf", "https://example.com/Paper.pdf"},
		{"DefaultHTTPSPort", "https://example.com:443/a.pdf", "https://example.com/a.pdf"},
		{"DefaultHTTPPort", "http://example.com:80/a.pdf", "http://example.com/a.pdf"},
		{"NonDefaultPortKept", "http://example.com:8080/a.pdf", "http://example.com:8080/a.pdf"},
		{"TrailingSlash", "https://example.com/pdf/", "https://example.com/pdf"},
		{"EmptyPath", "https://example.com", "https://example.com/"},
		{"FragmentDropped", "https://example.com/a.pdf#page=2", "https://example.com/a.pdf"},
		{"QueryKept", "https://example.com/a.pdf?token=abc", "https://example.com/a.pdf?token=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := url.Parse(tt.input)
			if err != nil {
				t.Fatalf("url.Parse(%q): %v", tt.input, err)
			}
			if got := NormalizeURL(parsed); got != tt.expected {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestURLKey(t *testing.T) {
	if URLKey("https://X.org/a.pdf#x") != URLKey("https://x.org/a.pdf") {
		t.Error("URLKey should treat case and fragment variants as the same URL")
	}
	if got := URLKey("not a url"); got != "not a url" {
		t.Errorf("URLKey(unparseable) = %q, want input", got)
	}
}

// --- NormalizeIdentifier ---

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"10.1000/xyz", "10.1000/xyz"},
		{"  10.1000/xyz \n", "10.1000/xyz"},
		{"doi:10.1000/xyz", "10.1000/xyz"},
		{"DOI:10.1000/xyz", "10.1000/xyz"},
		{"https://doi.org/10.1000/xyz", "10.1000/xyz"},
		{"http://doi.org/10.1000/xyz", "10.1000/xyz"},
		{"https://dx.doi.org/10.1000/xyz", "10.1000/xyz"},
		{"http://dx.doi.org/10.1000/xyz", "10.1000/xyz"},
		{"doi: 10.1000/xyz", "10.1000/xyz"},
		{"doi:https://doi.org/10.1000/xyz", "10.1000/xyz"},
		{"Doi:10.1000/xyz", "Doi:10.1000/xyz"}, // Only the listed spellings are prefixes
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeIdentifier(tt.input); got != tt.expected {
				t.Errorf("NormalizeIdentifier(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdentifier_Idempotent(t *testing.T) {
	inputs := []string{
		"10.1000/xyz",
		"doi:doi:10.1/a",
		"https://doi.org/doi:10.1/a",
		"  DOI:  https://dx.doi.org/ 10.1/a ",
		"http://doi.org/",
		"doi:",
		"plain text",
		"\t",
	}
	for _, in := range inputs {
		once := NormalizeIdentifier(in)
		twice := NormalizeIdentifier(once)
		if once != twice {
			t.Errorf("NormalizeIdentifier not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

// --- ResolveLink ---

func TestResolveLink(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		href     string
		expected string
	}{
		{"AbsoluteUnchanged", "https://x.org/a", "https://cdn.y.org/p.pdf", "https://cdn.y.org/p.pdf"},
		{"AbsoluteHTTPUnchanged", "https://x.org/a", "http://y.org/p.pdf", "http://y.org/p.pdf"},
		{"RootRelative", "https://x.org/article/5?ref=1", "/files/p.pdf", "https://x.org/files/p.pdf"},
		{"Relative", "https://x.org/article/5", "paper.pdf", "https://x.org/article/5/paper.pdf"},
		{"RelativeTrailingSlashBase", "https://x.org/article/", "paper.pdf", "https://x.org/article/paper.pdf"},
		{"DotSegmentKept", "https://x.org/a/", "./p.pdf", "https://x.org/a/./p.pdf"},
		{"HTTPLookalikeIsRelative", "https://x.org/a", "httpdocs/p.pdf", "https://x.org/a/httpdocs/p.pdf"},
		{"SchemelessBase", "x.org/a", "p.pdf", "https://x.org/a/p.pdf"},
		{"SchemelessBaseRootRelative", "x.org/a", "/p.pdf", "https://x.org/p.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveLink(tt.base, tt.href); got != tt.expected {
				t.Errorf("ResolveLink(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.expected)
			}
		})
	}
}

func TestResolveLink_AlwaysHasSchemeAndHost(t *testing.T) {
	bases := []string{"https://x.org/article/5", "http://x.org", "x.org/path", "", "::bad::", "/only/path", "https://"}
	hrefs := []string{"paper.pdf", "/p.pdf", "../up.pdf", "?q=1", "#frag", "http://", "https://y.org/z", "mailto:a@b", " ", "ftp://f.org/x"}

	for _, b := range bases {
		for _, h := range hrefs {
			got := ResolveLink(b, h)
			parsed, err := url.Parse(got)
			if err != nil {
				t.Errorf("ResolveLink(%q, %q) = %q does not parse: %v", b, h, got, err)
				continue
			}
			if parsed.Scheme == "" || parsed.Host == "" {
				t.Errorf("ResolveLink(%q, %q) = %q lacks scheme or host", b, h, got)
			}
			if !strings.HasPrefix(got, "http://") && !strings.HasPrefix(got, "https://") {
				t.Errorf("ResolveLink(%q, %q) = %q is not http(s)", b, h, got)
			}
		}
	}
}

func TestResolveReference(t *testing.T) {
	tests := []struct {
		base     string
		href     string
		expected string
	}{
		{"https://x.org/article/5", "paper.pdf", "https://x.org/article/paper.pdf"},
		{"https://x.org/article/5", "../paper.pdf", "https://x.org/paper.pdf"},
		{"https://x.org/article/5", "//cdn.x.org/p.pdf", "https://cdn.x.org/p.pdf"},
		{"https://x.org/article/5", "mailto:a@b.org", ""},
		{"not a base", "paper.pdf", ""},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			if got := ResolveReference(tt.base, tt.href); got != tt.expected {
				t.Errorf("ResolveReference(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.expected)
			}
		})
	}
}
