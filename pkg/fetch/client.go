package fetch

import (
	"errors"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
)

// maxRedirects matches net/http's default limit; each hop is logged
const maxRedirects = 10

// SessionHeaders builds the persistent request headers from the app config
func SessionHeaders(appCfg config.AppConfig) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", firstNonEmpty(appCfg.UserAgent, config.DefaultUserAgent))
	h.Set("Accept", firstNonEmpty(appCfg.Accept, config.DefaultAccept))
	h.Set("Accept-Language", firstNonEmpty(appCfg.AcceptLanguage, config.DefaultAcceptLanguage))
	h.Set("Connection", "keep-alive")
	return h
}

// NewClient creates a new HTTP client based on the provided configuration.
// headers are added to every request that does not already set them.
func NewClient(cfg config.HTTPClientConfig, headers http.Header, log *logrus.Entry) *http.Client {
	log.Info("Initializing HTTP client...")

	// Create custom dialer with configured timeouts
	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment, // Use system proxy settings
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true, // Default to true unless explicitly disabled
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20,
		DisableKeepAlives:      false,
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &headerTransport{base: transport, headers: headers.Clone()},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("stopped after 10 redirects")
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
	log.Info("HTTP client initialized.")
	return client
}

// headerTransport fills in session headers on outgoing requests
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	// RoundTrip must not modify the caller's request
	clone := req.Clone(req.Context())
	for name, values := range t.headers {
		if clone.Header.Get(name) == "" {
			clone.Header[name] = append([]string(nil), values...)
		}
	}
	return t.base.RoundTrip(clone)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
