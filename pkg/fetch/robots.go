package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// maxRobotsBytes caps robots.txt bodies; anything larger is truncated before parsing
const maxRobotsBytes = 512 << 10

// RobotsHandler fetches, parses and caches robots.txt per host
type RobotsHandler struct {
	fetcher       *Fetcher
	rateLimiter   *RateLimiter
	delay         time.Duration // Per-host delay applied before fetching robots.txt
	userAgent     string
	robotsCache   map[string]*robotstxt.RobotsData // host -> parsed data (nil = unavailable, allow all)
	robotsCacheMu sync.Mutex
	log           *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, rateLimiter *RateLimiter, delay time.Duration, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		delay:       delay,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// GetRobotsData returns robots.txt data for targetURL's host, from cache or by fetching.
// Returns nil on any error, 4xx or missing file; nil is cached too.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Host

	rh.robotsCacheMu.Lock()
	robotsData, found := rh.robotsCache[host]
	rh.robotsCacheMu.Unlock()
	if found {
		return robotsData
	}

	scheme := targetURL.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL})
	robotsLog.Debug("Fetching robots.txt...")

	data := rh.fetch(ctx, targetURL.Hostname(), robotsURL, robotsLog)

	rh.robotsCacheMu.Lock()
	rh.robotsCache[host] = data
	rh.robotsCacheMu.Unlock()
	return data
}

func (rh *RobotsHandler) fetch(ctx context.Context, hostname, robotsURL string, robotsLog *logrus.Entry) *robotstxt.RobotsData {
	rh.rateLimiter.ApplyDelay(ctx, hostname, rh.delay)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		robotsLog.Errorf("Error creating request: %v", err)
		return nil
	}
	if rh.userAgent != "" {
		req.Header.Set("User-Agent", rh.userAgent)
	}

	resp, fetchErr := rh.fetcher.FetchWithRetry(req, ctx)
	rh.rateLimiter.UpdateLastRequestTime(hostname)
	if fetchErr != nil {
		if resp != nil {
			drainAndClose(resp)
		}
		robotsLog.Debugf("No usable robots.txt: %v", fetchErr)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		robotsLog.Warnf("Error reading robots.txt body: %v", err)
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}
	robotsLog.Debug("Parsed robots.txt")
	return data
}

// TestAgent reports whether the handler's user agent may fetch targetURL.
// Allows when robots data could not be obtained.
func (rh *RobotsHandler) TestAgent(ctx context.Context, targetURL *url.URL) bool {
	robotsData := rh.GetRobotsData(ctx, targetURL)
	if robotsData == nil {
		return true
	}
	return robotsData.TestAgent(targetURL.RequestURI(), rh.userAgent)
}
