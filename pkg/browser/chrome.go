package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/fetch"
	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// PDFSelectors are tried in order on the rendered page; the first match is used
var PDFSelectors = []string{
	`//a[contains(normalize-space(.), "View PDF")]`,
	`//a[contains(normalize-space(.), "Download PDF")]`,
	`//a[contains(@href, ".pdf")]`,
	`//button[contains(normalize-space(.), "PDF")]`,
}

// settleDelay is how long a clicked page gets to navigate or render before it is read
const settleDelay = 3 * time.Second

// Options configures the Chrome fallback
type Options struct {
	Headless  bool
	Timeout   time.Duration // Per-fetch timeout including page load, 0 = 60s
	ExecPath  string        // Chrome binary, empty = chromedp's lookup
	UserAgent string
}

// OptionsFromConfig extracts browser settings from a validated config
func OptionsFromConfig(appCfg config.AppConfig) Options {
	return Options{
		Headless:  config.GetEffectiveHeadless(appCfg.Browser),
		Timeout:   appCfg.Browser.Timeout,
		ExecPath:  appCfg.Browser.ExecPath,
		UserAgent: appCfg.UserAgent,
	}
}

// ProxyURL fills the {doi} placeholder of a proxy template
func ProxyURL(template, doi string) string {
	return strings.ReplaceAll(template, "{doi}", doi)
}

// Chrome renders pages in a shared headless Chrome, one tab per Fetch.
// The browser starts on first use and lives until Close.
type Chrome struct {
	opts Options
	log  *logrus.Entry

	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
}

// New creates a Chrome fetcher without starting the browser
func New(opts Options, log *logrus.Entry) *Chrome {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Chrome{opts: opts, log: log.WithField("component", "browser")}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
	)
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	if c.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.opts.UserAgent))
	}
	return opts
}

// browserContext starts Chrome once and returns the shared browser context
func (c *Chrome) browserContext() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx != nil {
		return c.browserCtx, nil
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(c.log.Debugf))
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("%w: start chrome: %w", utils.ErrBrowser, err)
	}
	c.browserCtx = browserCtx
	c.cancel = func() {
		cancelBrowser()
		cancelAlloc()
	}
	c.log.Info("Chrome started")
	return browserCtx, nil
}

// Close shuts the browser down; Fetch after Close starts a new one
func (c *Chrome) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.browserCtx = nil
	c.cancel = nil
}

// Fetch renders rawURL, looks for a PDF control and returns either the PDF bytes it leads to
// or the rendered HTML. Failures come back as OutcomeOtherOrFailure wrapping ErrBrowser.
func (c *Chrome) Fetch(ctx context.Context, rawURL string) models.FetchOutcome {
	outcome := models.FetchOutcome{Kind: models.OutcomeOtherOrFailure, URL: rawURL}
	fetchLog := c.log.WithField("url", rawURL)

	browserCtx, err := c.browserContext()
	if err != nil {
		outcome.Err = err
		return outcome
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.opts.Timeout)
	defer cancelTimeout()

	var location string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		chromedp.Location(&location),
	); err != nil {
		outcome.Err = fmt.Errorf("%w: navigate: %w", utils.ErrBrowser, err)
		return outcome
	}
	outcome.URL = location

	node, selector, err := firstMatch(tabCtx)
	if err != nil {
		outcome.Err = fmt.Errorf("%w: query selectors: %w", utils.ErrBrowser, err)
		return outcome
	}

	if node != nil {
		fetchLog.WithField("selector", selector).Info("Found PDF control")
		if href := node.AttributeValue("href"); href != "" {
			doc, err := fetchInPage(tabCtx, href)
			if err == nil && doc.Kind == models.OutcomeBinaryDocument {
				return doc
			}
			fetchLog.Debugf("In-page fetch of %s gave no PDF: %v", href, err)
		}
		if err := chromedp.Run(tabCtx,
			chromedp.MouseClickNode(node),
			chromedp.Sleep(settleDelay),
			chromedp.Location(&location),
		); err != nil {
			fetchLog.Debugf("Click failed: %v", err)
		} else {
			outcome.URL = location
		}
	} else {
		fetchLog.Debug("No PDF control on rendered page")
	}

	var page string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &page)); err != nil {
		outcome.Err = fmt.Errorf("%w: read page: %w", utils.ErrBrowser, err)
		return outcome
	}
	outcome.Kind = models.OutcomeHTMLPage
	outcome.StatusCode = 200
	outcome.ContentType = "text/html"
	outcome.Text = page
	return outcome
}

// firstMatch returns the first node matched by PDFSelectors, or nil when none match
func firstMatch(ctx context.Context) (*cdp.Node, string, error) {
	for _, sel := range PDFSelectors {
		var nodes []*cdp.Node
		if err := chromedp.Run(ctx, chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
			return nil, "", err
		}
		if len(nodes) > 0 {
			return nodes[0], sel, nil
		}
	}
	return nil, "", nil
}

// inPageResponse is what fetchScript resolves to
type inPageResponse struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	URL    string `json:"url"`
	Data   string `json:"data"` // base64 body
}

// fetchScript GETs a URL from inside the page so proxy session cookies apply
const fetchScript = `(async (u) => {
	const r = await fetch(u, {credentials: "include"});
	const b = new Uint8Array(await r.arrayBuffer());
	let s = "";
	for (let i = 0; i < b.length; i += 0x8000) {
		s += String.fromCharCode.apply(null, b.subarray(i, i + 0x8000));
	}
	return {status: r.status, type: r.headers.get("content-type") || "", url: r.url, data: btoa(s)};
})(%s)`

func fetchInPage(ctx context.Context, href string) (models.FetchOutcome, error) {
	quoted, err := json.Marshal(href)
	if err != nil {
		return models.FetchOutcome{}, err
	}

	var res inPageResponse
	err = chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(fetchScript, quoted), &res,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	if err != nil {
		return models.FetchOutcome{}, err
	}
	return decodeInPage(res)
}

// decodeInPage classifies an in-page response the same way HTTP responses are classified
func decodeInPage(res inPageResponse) (models.FetchOutcome, error) {
	body, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		return models.FetchOutcome{}, fmt.Errorf("%w: decode body: %w", utils.ErrBrowser, err)
	}
	outcome := models.FetchOutcome{
		Kind:        fetch.Classify(res.Status, res.Type, body),
		URL:         res.URL,
		StatusCode:  res.Status,
		ContentType: res.Type,
	}
	switch outcome.Kind {
	case models.OutcomeBinaryDocument:
		outcome.Body = body
	case models.OutcomeHTMLPage:
		outcome.Text = string(body)
	default:
		outcome.Err = fmt.Errorf("%w: in-page fetch returned status %d type %q", utils.ErrBrowser, res.Status, res.Type)
	}
	return outcome, nil
}
