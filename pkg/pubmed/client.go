package pubmed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// Link names understood by elink
const (
	linkCitedIn = "pubmed_pubmed_citedin"
	linkPMC     = "pubmed_pmc"
)

// BodyFetcher performs a GET and returns the body; *fetch.Fetcher implements it
type BodyFetcher interface {
	FetchBody(ctx context.Context, rawURL string) ([]byte, error)
}

// SearchHandle points at an esearch result kept on the NCBI history server
type SearchHandle struct {
	Count    int
	WebEnv   string
	QueryKey string
}

// Client talks to NCBI E-utilities at a bounded request rate
type Client struct {
	baseURL string
	tool    string
	email   string
	apiKey  string
	api     BodyFetcher
	limiter *rate.Limiter
	log     *logrus.Entry
}

// NewClient creates a Client from the pubmed config block
func NewClient(cfg config.PubMedConfig, api BodyFetcher, log *logrus.Entry) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = config.DefaultPubMedBaseURL
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	return &Client{
		baseURL: base,
		tool:    cfg.Tool,
		email:   cfg.Email,
		apiKey:  cfg.APIKey,
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log.WithField("component", "pubmed"),
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if c.tool != "" {
		params.Set("tool", c.tool)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	u := c.baseURL + "/" + endpoint + "?" + params.Encode()
	c.log.Debugf("GET %s", u)
	return c.api.FetchBody(ctx, u)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	params.Set("retmode", "json")
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s response is not JSON", utils.ErrParsing, endpoint)
	}
	return body, nil
}

// Search runs esearch with the history server and returns a handle for FetchMedline
func (c *Client) Search(ctx context.Context, term string) (SearchHandle, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("usehistory", "y")
	params.Set("retmax", "0")

	body, err := c.getJSON(ctx, "esearch.fcgi", params)
	if err != nil {
		return SearchHandle{}, err
	}
	result := gjson.GetBytes(body, "esearchresult")
	if msg := result.Get("ERROR").String(); msg != "" {
		return SearchHandle{}, fmt.Errorf("%w: esearch: %s", utils.ErrParsing, msg)
	}
	count, err := strconv.Atoi(result.Get("count").String())
	if err != nil {
		return SearchHandle{}, fmt.Errorf("%w: esearch count: %w", utils.ErrParsing, err)
	}
	return SearchHandle{
		Count:    count,
		WebEnv:   result.Get("webenv").String(),
		QueryKey: result.Get("querykey").String(),
	}, nil
}

// FetchMedline returns size Medline records starting at start
func (c *Client) FetchMedline(ctx context.Context, h SearchHandle, start, size int) (string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("rettype", "medline")
	params.Set("retmode", "text")
	params.Set("retstart", strconv.Itoa(start))
	params.Set("retmax", strconv.Itoa(size))
	params.Set("WebEnv", h.WebEnv)
	params.Set("query_key", h.QueryKey)

	body, err := c.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// links returns the ids elink lists under linkName for pmid
func (c *Client) links(ctx context.Context, pmid, db, linkName string) ([]string, error) {
	params := url.Values{}
	params.Set("dbfrom", "pubmed")
	params.Set("db", db)
	params.Set("linkname", linkName)
	params.Set("id", pmid)

	body, err := c.getJSON(ctx, "elink.fcgi", params)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, set := range gjson.GetBytes(body, "linksets.0.linksetdbs").Array() {
		if set.Get("linkname").String() != linkName {
			continue
		}
		for _, id := range set.Get("links").Array() {
			ids = append(ids, id.String())
		}
	}
	return ids, nil
}

// CitedByCount returns how many PubMed articles cite pmid
func (c *Client) CitedByCount(ctx context.Context, pmid string) (int, error) {
	ids, err := c.links(ctx, pmid, "pubmed", linkCitedIn)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// PMCID returns the PubMed Central id for pmid, or "" when it has none
func (c *Client) PMCID(ctx context.Context, pmid string) (string, error) {
	ids, err := c.links(ctx, pmid, "pmc", linkPMC)
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return "PMC" + ids[0], nil
}

// BuildQuery combines a journal term, keywords and a start year into an esearch term
func BuildQuery(journal string, keywords []string, startYear int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%q[Journal])", journal)
	if len(keywords) > 0 {
		parts := make([]string, len(keywords))
		for i, kw := range keywords {
			parts[i] = fmt.Sprintf("%q[All Fields]", kw)
		}
		fmt.Fprintf(&b, " AND (%s)", strings.Join(parts, " OR "))
	}
	if startYear > 0 {
		fmt.Fprintf(&b, ` AND ("%d"[PDAT] : "3000"[PDAT])`, startYear)
	}
	return b.String()
}
