package parse

import "strings"

// identifierPrefixes are stripped from raw identifiers, first match wins per pass
var identifierPrefixes = []string{
	"doi:",
	"DOI:",
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
}

// NormalizeIdentifier trims whitespace and strips resolver prefixes.
// Stripping repeats until no prefix matches, so
// NormalizeIdentifier(NormalizeIdentifier(s)) == NormalizeIdentifier(s) for every s.
func NormalizeIdentifier(raw string) string {
	id := strings.TrimSpace(raw)
	for {
		stripped := false
		for _, prefix := range identifierPrefixes {
			if strings.HasPrefix(id, prefix) {
				id = strings.TrimSpace(id[len(prefix):])
				stripped = true
				break
			}
		}
		if !stripped {
			return id
		}
	}
}
