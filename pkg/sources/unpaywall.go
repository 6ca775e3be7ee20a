package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// DefaultUnpaywallBaseURL is the Unpaywall v2 REST endpoint
const DefaultUnpaywallBaseURL = "https://api.unpaywall.org/v2"

// Unpaywall asks the Unpaywall API for the best open-access location of a DOI
type Unpaywall struct {
	name    string
	baseURL string
	email   string
	api     BodyFetcher
}

// NewUnpaywall creates an Unpaywall source; an empty baseURL uses DefaultUnpaywallBaseURL
func NewUnpaywall(name, baseURL, email string, api BodyFetcher) *Unpaywall {
	if baseURL == "" {
		baseURL = DefaultUnpaywallBaseURL
	}
	return &Unpaywall{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		api:     api,
	}
}

func (u *Unpaywall) Name() string { return u.name }

// Resolve prefers the location's direct pdf URL and falls back to its landing page
func (u *Unpaywall) Resolve(ctx context.Context, doi string) (string, error) {
	if doi == "" {
		return "", fmt.Errorf("%w: %s: empty identifier", utils.ErrSourceResolve, u.name)
	}
	q := url.Values{}
	q.Set("email", u.email)
	endpoint := u.baseURL + "/" + escapeDOIPath(doi) + "?" + q.Encode()

	body, err := u.api.FetchBody(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", utils.ErrSourceResolve, u.name, err)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: %s: %w: response is not JSON", utils.ErrSourceResolve, u.name, utils.ErrParsing)
	}

	loc := gjson.GetBytes(body, "best_oa_location")
	if pdfURL := loc.Get("url_for_pdf").String(); pdfURL != "" {
		return pdfURL, nil
	}
	if landing := loc.Get("url").String(); landing != "" {
		return landing, nil
	}
	return "", fmt.Errorf("%w: %s: no open access location for %s", utils.ErrSourceResolve, u.name, doi)
}
