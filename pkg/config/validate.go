package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Mode
	switch c.Mode {
	case "":
		c.Mode = ModeSequential
	case ModeSequential, ModeParallel:
	default:
		return warnings, fmt.Errorf("%w: mode must be %q or %q, got %q",
			utils.ErrConfigValidation, ModeSequential, ModeParallel, c.Mode)
	}

	// MaxWorkers
	if c.MaxWorkers <= 0 {
		if c.Mode == ModeParallel {
			warnings = append(warnings, "max_workers should be > 0, defaulting to 10")
		}
		c.MaxWorkers = 10
	}

	// OutputDir
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './papers'")
		c.OutputDir = "./papers"
	}

	// StateDir
	if c.StateDir == "" {
		c.StateDir = "./paper_state"
	}

	// Timing
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.MirrorBackoff == 0 {
		c.MirrorBackoff = 2 * time.Second
	} else if c.MirrorBackoff < 0 {
		c.MirrorBackoff = 0
	}
	if c.IdentifierPause == 0 {
		c.IdentifierPause = 1 * time.Second
	} else if c.IdentifierPause < 0 {
		c.IdentifierPause = 0
	}
	if c.DelayPerHost < 0 {
		warnings = append(warnings, "delay_per_host cannot be negative, disabling")
		c.DelayPerHost = 0
	}

	// Candidate handling
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 5
	}
	if c.FallbackMinChars <= 0 {
		c.FallbackMinChars = 500
	}
	switch c.FallbackFormat {
	case "":
		c.FallbackFormat = FallbackFormatText
	case FallbackFormatText, FallbackFormatMarkdown:
	default:
		warnings = append(warnings, fmt.Sprintf("fallback_format %q unknown, defaulting to %q", c.FallbackFormat, FallbackFormatText))
		c.FallbackFormat = FallbackFormatText
	}
	if len(c.Keywords) == 0 {
		c.Keywords = append([]string(nil), DefaultKeywords...)
	} else {
		for i, k := range c.Keywords {
			c.Keywords[i] = strings.ToLower(strings.TrimSpace(k))
		}
	}

	// Session headers
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Accept == "" {
		c.Accept = DefaultAccept
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 64 << 20
	}

	// MaxRequestsPerHost
	if c.MaxRequestsPerHost <= 0 {
		c.MaxRequestsPerHost = 4
	}

	// MaxRetries (API clients only)
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	c.validateHTTPClientSettings()

	// Sources
	if len(c.Sources) == 0 {
		warnings = append(warnings, "no sources configured, defaulting to doi.org and PubMed Central")
		c.Sources = DefaultSources()
	}
	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		srcWarnings, srcErr := c.Sources[i].Validate()
		if srcErr != nil {
			return warnings, fmt.Errorf("sources[%d]: %w", i, srcErr)
		}
		warnings = append(warnings, srcWarnings...)
		if seen[c.Sources[i].Name] {
			warnings = append(warnings, fmt.Sprintf("source name %q used more than once", c.Sources[i].Name))
		}
		seen[c.Sources[i].Name] = true
	}

	// Browser
	if c.Browser.Enabled {
		if c.Browser.ProxyTemplate == "" {
			warnings = append(warnings, "browser.enabled is true but proxy_template is empty, using https://doi.org/{doi}")
			c.Browser.ProxyTemplate = "https://doi.org/{doi}"
		}
		if c.Browser.Timeout <= 0 {
			c.Browser.Timeout = 60 * time.Second
		}
	}

	c.PubMed.applyDefaults()

	return warnings, nil
}

// Validate checks a source entry and fills in its type and name.
func (s *SourceConfig) Validate() (warnings []string, err error) {
	if s.Type == "" {
		s.Type = SourceTypeTemplate
	}
	switch s.Type {
	case SourceTypeTemplate:
		if s.Template == "" {
			return nil, fmt.Errorf("%w: template source %q needs a template", utils.ErrConfigValidation, s.Name)
		}
		if !strings.Contains(s.Template, "{doi}") && !strings.Contains(s.Template, "{doi_query}") {
			warnings = append(warnings, fmt.Sprintf("source %q template has no {doi} placeholder", s.Name))
		}
	case SourceTypeUnpaywall:
		if s.Email == "" {
			return nil, fmt.Errorf("%w: unpaywall source %q needs an email", utils.ErrConfigValidation, s.Name)
		}
	case SourceTypePMC:
	default:
		return nil, fmt.Errorf("%w: source %q has unknown type %q", utils.ErrConfigValidation, s.Name, s.Type)
	}
	if s.Name == "" {
		s.Name = s.Type
	}
	return warnings, nil
}

// applyDefaults fills harvester defaults; the harvester is optional so nothing here is fatal.
func (p *PubMedConfig) applyDefaults() {
	if p.BaseURL == "" {
		p.BaseURL = DefaultPubMedBaseURL
	}
	p.BaseURL = strings.TrimRight(p.BaseURL, "/")
	if p.Tool == "" {
		p.Tool = "paper-scraper"
	}
	if p.RequestsPerSecond <= 0 {
		p.RequestsPerSecond = 3
		if p.APIKey != "" {
			p.RequestsPerSecond = 10
		}
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 200
	}
	if p.BatchPause == 0 {
		p.BatchPause = 1 * time.Second
	} else if p.BatchPause < 0 {
		p.BatchPause = 0
	}
	if p.StartYear <= 0 {
		p.StartYear = 2015
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
