package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

const (
	// DefaultIDConvURL is the NCBI article ID converter
	DefaultIDConvURL = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"
	// PMCArticleBaseURL prefixes a PMCID to form the article landing page
	PMCArticleBaseURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/"
)

// PMC maps a DOI to its PubMed Central article page via the ID converter
type PMC struct {
	name    string
	baseURL string
	tool    string
	email   string
	api     BodyFetcher
}

// NewPMC creates a PMC source; an empty baseURL uses DefaultIDConvURL
func NewPMC(name, baseURL, tool, email string, api BodyFetcher) *PMC {
	if baseURL == "" {
		baseURL = DefaultIDConvURL
	}
	return &PMC{name: name, baseURL: baseURL, tool: tool, email: email, api: api}
}

func (p *PMC) Name() string { return p.name }

// Resolve returns the PMC article page; the extractor finds the pdf link on it
func (p *PMC) Resolve(ctx context.Context, doi string) (string, error) {
	if doi == "" {
		return "", fmt.Errorf("%w: %s: empty identifier", utils.ErrSourceResolve, p.name)
	}
	q := url.Values{}
	q.Set("ids", doi)
	q.Set("format", "json")
	if p.tool != "" {
		q.Set("tool", p.tool)
	}
	if p.email != "" {
		q.Set("email", p.email)
	}
	sep := "?"
	if strings.Contains(p.baseURL, "?") {
		sep = "&"
	}

	body, err := p.api.FetchBody(ctx, p.baseURL+sep+q.Encode())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", utils.ErrSourceResolve, p.name, err)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: %s: %w: response is not JSON", utils.ErrSourceResolve, p.name, utils.ErrParsing)
	}

	record := gjson.GetBytes(body, "records.0")
	if status := record.Get("status").String(); status == "error" {
		return "", fmt.Errorf("%w: %s: %s", utils.ErrSourceResolve, p.name, record.Get("errmsg").String())
	}
	pmcid := record.Get("pmcid").String()
	if pmcid == "" {
		return "", fmt.Errorf("%w: %s: %s is not in PubMed Central", utils.ErrSourceResolve, p.name, doi)
	}
	return PMCArticleBaseURL + pmcid + "/", nil
}
