package download

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/paper-scraper/pkg/browser"
	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/extract"
	"github.com/Sriram-PR/paper-scraper/pkg/fetch"
	"github.com/Sriram-PR/paper-scraper/pkg/sources"
)

// hostEvictionInterval controls how often idle hosts are forgotten
const hostEvictionInterval = 5 * time.Minute

// Pipeline bundles the shared network components a run needs
type Pipeline struct {
	Orchestrator *Orchestrator
	Classifier   *fetch.Classifier
	Extractor    *extract.Extractor
	Sources      []sources.Source
	API          *fetch.Fetcher
	Gate         *fetch.HostGate

	chrome *browser.Chrome // nil when the browser fallback is off
}

// NewPipeline wires the HTTP client, per-host gate, robots check, sources and
// browser fallback from a validated config
func NewPipeline(appCfg config.AppConfig, log *logrus.Entry) (*Pipeline, error) {
	client := fetch.NewClient(appCfg.HTTPClientSettings, fetch.SessionHeaders(appCfg), log.WithField("component", "http"))
	api := fetch.NewFetcher(client, fetch.RetryPolicyFromConfig(appCfg), log.WithField("component", "api"))
	limiter := fetch.NewRateLimiter(appCfg.DelayPerHost, log.WithField("component", "ratelimit"))
	gate := fetch.NewHostGate(appCfg.MaxRequestsPerHost, appCfg.DelayPerHost, limiter, log.WithField("component", "hostgate"))

	var robots *fetch.RobotsHandler
	if appCfg.RespectRobotsTxt {
		robots = fetch.NewRobotsHandler(api, limiter, appCfg.DelayPerHost, appCfg.UserAgent, log.WithField("component", "robots"))
	}
	classifier := fetch.NewClassifier(client, gate, robots, fetch.ClassifierOptionsFromConfig(appCfg), log.WithField("component", "fetch"))

	srcs, err := sources.FromConfig(appCfg.Sources, api, appCfg.PubMed.Tool)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Classifier: classifier,
		Extractor:  extract.New(appCfg.Keywords),
		Sources:    srcs,
		API:        api,
		Gate:       gate,
	}

	// A typed nil would make the orchestrator think the browser is on
	var fallback PageFetcher
	if appCfg.Browser.Enabled {
		p.chrome = browser.New(browser.OptionsFromConfig(appCfg), log)
		fallback = p.chrome
	}
	p.Orchestrator = New(srcs, classifier, fallback, p.Extractor, OptionsFromConfig(appCfg), log)
	return p, nil
}

// Start runs background maintenance until ctx is done
func (p *Pipeline) Start(ctx context.Context) {
	go p.Gate.RunEviction(ctx, hostEvictionInterval)
}

// Close releases the browser if one was started
func (p *Pipeline) Close() {
	if p.chrome != nil {
		p.chrome.Close()
	}
}
