package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// Source produces one mirror URL for a normalized DOI
type Source interface {
	Name() string
	Resolve(ctx context.Context, doi string) (string, error)
}

// BodyFetcher GETs an API URL and returns its body; *fetch.Fetcher implements it
type BodyFetcher interface {
	FetchBody(ctx context.Context, rawURL string) ([]byte, error)
}

// FromConfig builds the ordered source list from validated source entries.
// api serves the sources that call JSON APIs and may be nil when none are configured.
func FromConfig(entries []config.SourceConfig, api BodyFetcher, tool string) ([]Source, error) {
	out := make([]Source, 0, len(entries))
	for i, e := range entries {
		switch e.Type {
		case config.SourceTypeTemplate, "":
			out = append(out, NewTemplate(e.Name, e.Template))
		case config.SourceTypeUnpaywall:
			if api == nil {
				return nil, fmt.Errorf("%w: sources[%d] %q needs an API fetcher", utils.ErrConfigValidation, i, e.Name)
			}
			out = append(out, NewUnpaywall(e.Name, e.BaseURL, e.Email, api))
		case config.SourceTypePMC:
			if api == nil {
				return nil, fmt.Errorf("%w: sources[%d] %q needs an API fetcher", utils.ErrConfigValidation, i, e.Name)
			}
			out = append(out, NewPMC(e.Name, e.BaseURL, tool, e.Email, api))
		default:
			return nil, fmt.Errorf("%w: sources[%d] has unknown type %q", utils.ErrConfigValidation, i, e.Type)
		}
	}
	return out, nil
}

// Describe renders a source entry for listings
func Describe(e config.SourceConfig) string {
	switch e.Type {
	case config.SourceTypeUnpaywall:
		return fmt.Sprintf("%s (unpaywall, %s)", e.Name, firstNonEmpty(e.BaseURL, DefaultUnpaywallBaseURL))
	case config.SourceTypePMC:
		return fmt.Sprintf("%s (pmc, %s)", e.Name, firstNonEmpty(e.BaseURL, DefaultIDConvURL))
	default:
		return fmt.Sprintf("%s (template, %s)", e.Name, e.Template)
	}
}

// Template fills {doi} and {doi_query} placeholders in a URL template
type Template struct {
	name     string
	template string
}

// NewTemplate creates a template source
func NewTemplate(name, template string) *Template {
	return &Template{name: name, template: template}
}

func (t *Template) Name() string { return t.name }

// Resolve never calls the network
func (t *Template) Resolve(_ context.Context, doi string) (string, error) {
	if doi == "" {
		return "", fmt.Errorf("%w: %s: empty identifier", utils.ErrSourceResolve, t.name)
	}
	r := strings.NewReplacer("{doi}", doi, "{doi_query}", url.QueryEscape(doi))
	return r.Replace(t.template), nil
}

// escapeDOIPath escapes each "/"-separated segment, keeping the separators
func escapeDOIPath(doi string) string {
	parts := strings.Split(doi, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
