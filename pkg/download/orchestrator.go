package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/paper-scraper/pkg/browser"
	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/extract"
	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/parse"
	"github.com/Sriram-PR/paper-scraper/pkg/sources"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// BrowserAttempt is the attempt name recorded for the headless-browser fallback
const BrowserAttempt = "browser"

// errIdentifierDone stops the mirror loop once a terminal result exists
var errIdentifierDone = errors.New("identifier done")

// PageFetcher performs one classified GET; *fetch.Classifier and *browser.Chrome implement it
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) models.FetchOutcome
}

// Options tunes an Orchestrator
type Options struct {
	OutputDir        string
	CandidateLimit   int           // Candidates fetched per HTML page
	MirrorBackoff    time.Duration // Pause after a mirror that did not succeed
	FallbackEnabled  bool
	FallbackMinChars int    // Visible text must be longer than this for a text fallback
	FallbackFormat   string // config.FallbackFormatText or config.FallbackFormatMarkdown
	SaveDebugHTML    bool
	VerifyPDF        bool
	ProxyTemplate    string // Browser fallback URL, {doi} placeholder
}

// OptionsFromConfig extracts orchestrator settings from a validated config
func OptionsFromConfig(appCfg config.AppConfig) Options {
	return Options{
		OutputDir:        appCfg.OutputDir,
		CandidateLimit:   appCfg.CandidateLimit,
		MirrorBackoff:    appCfg.MirrorBackoff,
		FallbackEnabled:  config.GetEffectiveFallbackEnabled(appCfg),
		FallbackMinChars: appCfg.FallbackMinChars,
		FallbackFormat:   appCfg.FallbackFormat,
		SaveDebugHTML:    appCfg.SaveDebugHTML,
		VerifyPDF:        appCfg.VerifyPDF,
		ProxyTemplate:    appCfg.Browser.ProxyTemplate,
	}
}

// Orchestrator walks one identifier through the source list until a file is written
type Orchestrator struct {
	sources   []sources.Source
	fetcher   PageFetcher
	browser   PageFetcher // nil = no browser fallback
	extractor *extract.Extractor
	opts      Options
	log       *logrus.Entry
}

// New creates an Orchestrator. browser may be nil.
func New(srcs []sources.Source, fetcher PageFetcher, browser PageFetcher, extractor *extract.Extractor, opts Options, log *logrus.Entry) *Orchestrator {
	if extractor == nil {
		extractor = extract.New(nil)
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 5
	}
	return &Orchestrator{
		sources:   srcs,
		fetcher:   fetcher,
		browser:   browser,
		extractor: extractor,
		opts:      opts,
		log:       log.WithField("component", "download"),
	}
}

// attempt tracks one identifier through the state machine
type attempt struct {
	raw      string
	id       string
	safe     string
	tried    []string
	lastErr  error
	terminal *models.DownloadResult
	log      *logrus.Entry
}

// Download resolves rawIdentifier and returns exactly one terminal DownloadResult.
// It never returns an error; every failure is recorded in the result.
func (o *Orchestrator) Download(ctx context.Context, rawIdentifier string) models.DownloadResult {
	id := parse.NormalizeIdentifier(rawIdentifier)
	a := &attempt{
		raw:  rawIdentifier,
		id:   id,
		safe: utils.SafeName(id),
		log:  o.log.WithField("identifier", id),
	}
	if id == "" {
		a.lastErr = fmt.Errorf("%w: empty identifier", utils.ErrSourceResolve)
		return o.failed(a)
	}

	for i, src := range o.sources {
		if ctx.Err() != nil {
			a.lastErr = ctx.Err()
			return o.failed(a)
		}
		a.tried = append(a.tried, src.Name())

		target, err := src.Resolve(ctx, id)
		if err != nil {
			a.log.Warnf("Source %s could not resolve: %v", src.Name(), err)
			a.lastErr = err
		} else {
			a.log.Infof("Trying %s from %s", id, target)
			if o.tryOutcome(ctx, a, src.Name(), o.fetcher.Fetch(ctx, target)) {
				return *a.terminal
			}
		}

		if i < len(o.sources)-1 || o.browserEnabled() {
			sleepCtx(ctx, o.opts.MirrorBackoff)
		}
	}

	if o.browserEnabled() && ctx.Err() == nil {
		a.tried = append(a.tried, BrowserAttempt)
		target := browser.ProxyURL(o.opts.ProxyTemplate, id)
		a.log.Infof("Trying browser fallback via %s", target)
		if o.tryOutcome(ctx, a, BrowserAttempt, o.browser.Fetch(ctx, target)) {
			return *a.terminal
		}
	}

	return o.failed(a)
}

func (o *Orchestrator) browserEnabled() bool {
	return o.browser != nil && o.opts.ProxyTemplate != ""
}

// tryOutcome handles one mirror response and reports whether the identifier reached a terminal state
func (o *Orchestrator) tryOutcome(ctx context.Context, a *attempt, source string, outcome models.FetchOutcome) bool {
	var err error
	switch outcome.Kind {
	case models.OutcomeBinaryDocument:
		err = o.saveDocument(a, source, outcome)
	case models.OutcomeHTMLPage:
		err = o.handlePage(ctx, a, source, outcome)
	default:
		err = outcome.Err
		if err == nil {
			err = fmt.Errorf("%w: status %d", utils.ErrTransport, outcome.StatusCode)
		}
		a.log.WithField("category", utils.CategorizeError(err)).Warnf("%s gave no document: %v", source, err)
	}
	if errors.Is(err, errIdentifierDone) {
		return true
	}
	a.lastErr = err
	return false
}

// handlePage follows candidate links on an HTML page, then falls back to its visible text
func (o *Orchestrator) handlePage(ctx context.Context, a *attempt, source string, page models.FetchOutcome) error {
	groups := o.extractor.CandidateGroups(page.Text, page.URL)
	candidates := len(groups)
	a.log.Debugf("Found %d PDF candidates on %s", candidates, page.URL)

	if candidates == 0 && o.opts.SaveDebugHTML {
		o.saveDebugHTML(a, page.Text)
	}

	// Both resolutions of one link share a candidate slot
	if len(groups) > o.opts.CandidateLimit {
		groups = groups[:o.opts.CandidateLimit]
	}

	var lastErr error
	for _, group := range groups {
		for _, candidate := range group {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			outcome := o.fetcher.Fetch(ctx, candidate)
			if outcome.Kind != models.OutcomeBinaryDocument {
				a.log.Debugf("Candidate %s: %s (%v)", candidate, outcome.Kind, outcome.Err)
				lastErr = outcome.Err
				continue
			}
			err := o.saveDocument(a, source, outcome)
			if errors.Is(err, errIdentifierDone) {
				return err
			}
			lastErr = err
		}
	}

	if o.opts.FallbackEnabled {
		text := strings.TrimSpace(extract.VisibleText(page.Text))
		n := utf8.RuneCountInString(text)
		if n > o.opts.FallbackMinChars {
			return o.saveFallback(a, source, page)
		}
		a.log.Debugf("Page text too short for fallback (%d chars)", n)
	}

	if lastErr != nil {
		return fmt.Errorf("no pdf among %d candidates on %s: %w", candidates, page.URL, lastErr)
	}
	return fmt.Errorf("%w: no pdf among %d candidates on %s", utils.ErrClassificationMismatch, candidates, page.URL)
}

func (o *Orchestrator) succeeded(a *attempt, status models.DownloadStatus, filename, source, sourceURL, sha string) error {
	a.log.WithFields(logrus.Fields{"file": filename, "source": source}).Infof("Saved %s", status)
	a.terminal = &models.DownloadResult{
		Identifier: a.raw,
		Succeeded:  true,
		Filename:   &filename,
		Status:     status,
		Source:     source,
		SourceURL:  sourceURL,
		Attempts:   append([]string(nil), a.tried...),
		SHA256:     sha,
	}
	return errIdentifierDone
}

// persistFailed ends the identifier after a disk write error
func (o *Orchestrator) persistFailed(a *attempt, err error) error {
	a.lastErr = err
	r := o.failed(a)
	a.terminal = &r
	return errIdentifierDone
}

func (o *Orchestrator) failed(a *attempt) models.DownloadResult {
	result := models.DownloadResult{
		Identifier: a.raw,
		Succeeded:  false,
		Filename:   nil,
		Status:     models.StatusFailed,
		Attempts:   append([]string(nil), a.tried...),
	}
	if a.lastErr != nil {
		result.Error = fmt.Sprintf("%s: %v", utils.CategorizeError(a.lastErr), a.lastErr)
	}
	a.log.WithField("attempts", len(a.tried)).Warnf("Failed to download %s", a.raw)
	return result
}

// sleepCtx waits d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
