package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// pdfSignature is the first four bytes of every PDF file
var pdfSignature = []byte("%PDF")

// ClassifierOptions tunes a Classifier
type ClassifierOptions struct {
	Timeout      time.Duration // Per-request timeout, 0 = no extra timeout
	MaxBodyBytes int64         // Cap on bytes read per response, 0 = 64 MiB
}

// ClassifierOptionsFromConfig extracts classifier settings from a validated config
func ClassifierOptionsFromConfig(appCfg config.AppConfig) ClassifierOptions {
	return ClassifierOptions{
		Timeout:      appCfg.FetchTimeout,
		MaxBodyBytes: appCfg.MaxBodyBytes,
	}
}

// Classifier issues single GETs and classifies the response. It never retries.
type Classifier struct {
	client *http.Client
	gate   *HostGate      // nil = no per-host politeness
	robots *RobotsHandler // nil = robots.txt not consulted
	opts   ClassifierOptions
	log    *logrus.Entry
}

// NewClassifier creates a Classifier. gate and robots may be nil.
func NewClassifier(client *http.Client, gate *HostGate, robots *RobotsHandler, opts ClassifierOptions, log *logrus.Entry) *Classifier {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	return &Classifier{
		client: client,
		gate:   gate,
		robots: robots,
		opts:   opts,
		log:    log,
	}
}

// Fetch GETs rawURL once and classifies the response.
// Failures of any kind come back as OutcomeOtherOrFailure with Err set; Fetch never returns an error.
func (c *Classifier) Fetch(ctx context.Context, rawURL string) models.FetchOutcome {
	outcome := models.FetchOutcome{Kind: models.OutcomeOtherOrFailure, URL: rawURL}
	fetchLog := c.log.WithField("url", rawURL)

	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" || (target.Scheme != "http" && target.Scheme != "https") {
		outcome.Err = fmt.Errorf("%w: invalid URL %q", utils.ErrTransport, rawURL)
		return outcome
	}
	if c.robots != nil && !c.robots.TestAgent(ctx, target) {
		fetchLog.Info("Skipping URL disallowed by robots.txt")
		outcome.Err = fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, rawURL)
		return outcome
	}

	if c.gate != nil {
		leave, err := c.gate.Enter(ctx, target.Host)
		if err != nil {
			outcome.Err = fmt.Errorf("%w: wait for host %s: %w", utils.ErrTransport, target.Host, err)
			return outcome
		}
		defer leave()
	}

	reqCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		outcome.Err = fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
		return outcome
	}

	resp, err := c.client.Do(req)
	if err != nil {
		fetchLog.Debugf("Transport error: %v", err)
		outcome.Err = fmt.Errorf("%w: %w", utils.ErrTransport, err)
		return outcome
	}
	defer resp.Body.Close()

	if resp.Request != nil && resp.Request.URL != nil {
		outcome.URL = resp.Request.URL.String()
		if final := resp.Request.URL.Host; c.gate != nil && final != target.Host {
			c.gate.Redirected(final)
		}
	}
	outcome.StatusCode = resp.StatusCode
	outcome.ContentType = resp.Header.Get("Content-Type")

	kind := classifyHeaders(resp.StatusCode, outcome.ContentType)
	switch kind {
	case models.OutcomeOtherOrFailure:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) // Let small bodies free the connection
		if resp.StatusCode != http.StatusOK {
			outcome.Err = fmt.Errorf("%w: status %d %s", utils.ErrTransport, resp.StatusCode, http.StatusText(resp.StatusCode))
		} else {
			outcome.Err = fmt.Errorf("%w: content type %q is neither pdf nor html", utils.ErrClassificationMismatch, outcome.ContentType)
		}
		return outcome
	}

	body, err := c.readBody(resp.Body)
	if err != nil && kind == models.OutcomeBinaryDocument {
		outcome.Err = err
		return outcome
	}

	switch kind {
	case models.OutcomeBinaryDocument:
		if !bytes.HasPrefix(body, pdfSignature) {
			outcome.Err = fmt.Errorf("%w: %q body starts with %q", utils.ErrClassificationMismatch, outcome.ContentType, snippet(body))
			return outcome
		}
		outcome.Kind = models.OutcomeBinaryDocument
		outcome.Body = body
	case models.OutcomeHTMLPage:
		outcome.Kind = models.OutcomeHTMLPage
		outcome.Text = decodeText(body, outcome.ContentType)
	}

	fetchLog.WithFields(logrus.Fields{"kind": outcome.Kind, "bytes": len(body)}).Debug("Fetched")
	return outcome
}

// classifyHeaders decides what the body is expected to be from status and content type.
// A pdf type only becomes a BinaryDocument once the body signature is checked.
func classifyHeaders(statusCode int, contentType string) models.OutcomeKind {
	if statusCode != http.StatusOK {
		return models.OutcomeOtherOrFailure
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return models.OutcomeBinaryDocument
	case strings.Contains(ct, "html"):
		return models.OutcomeHTMLPage
	default:
		return models.OutcomeOtherOrFailure
	}
}

// Classify applies the full classification rule to an already-read response
func Classify(statusCode int, contentType string, body []byte) models.OutcomeKind {
	kind := classifyHeaders(statusCode, contentType)
	if kind == models.OutcomeBinaryDocument && !bytes.HasPrefix(body, pdfSignature) {
		return models.OutcomeOtherOrFailure
	}
	return kind
}

// readBody reads at most MaxBodyBytes; a longer body returns the prefix and an error
func (c *Classifier) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, c.opts.MaxBodyBytes+1))
	if err != nil {
		return body, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if int64(len(body)) > c.opts.MaxBodyBytes {
		return body[:c.opts.MaxBodyBytes], fmt.Errorf("%w: body exceeds %d bytes", utils.ErrResponseBodyRead, c.opts.MaxBodyBytes)
	}
	return body, nil
}

// decodeText converts an HTML body to UTF-8 using the declared or sniffed charset
func decodeText(body []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

func snippet(body []byte) string {
	if len(body) > 16 {
		body = body[:16]
	}
	return string(body)
}
