package config

import "time"

// Scheduling modes for the batch runner
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// Source types understood by pkg/sources
const (
	SourceTypeTemplate  = "template"  // URL template with {doi}/{doi_query} placeholders
	SourceTypeUnpaywall = "unpaywall" // Unpaywall REST API, needs an email
	SourceTypePMC       = "pmc"       // PubMed Central via the NCBI ID converter
)

// Fallback document layouts
const (
	FallbackFormatText     = "text"     // Visible page text, one paragraph per line
	FallbackFormatMarkdown = "markdown" // Page converted to markdown, headings kept
)

// AppConfig holds the global application configuration
type AppConfig struct {
	OutputDir          string           `yaml:"output_dir"`
	StateDir           string           `yaml:"state_dir"`
	Mode               string           `yaml:"mode"`                          // sequential or parallel
	MaxWorkers         int              `yaml:"max_workers"`                   // Upper bound on the parallel pool
	FetchTimeout       time.Duration    `yaml:"fetch_timeout,omitempty"`       // Per-request timeout for mirror/candidate GETs
	MirrorBackoff      time.Duration    `yaml:"mirror_backoff,omitempty"`      // Sleep after an unsuccessful source (negative disables)
	IdentifierPause    time.Duration    `yaml:"identifier_pause,omitempty"`    // Sequential pause between identifiers (negative disables)
	CandidateLimit     int              `yaml:"candidate_limit,omitempty"`     // Candidates fetched per HTML page
	FallbackMinChars   int              `yaml:"fallback_min_chars,omitempty"`  // Text must exceed this to be saved
	FallbackEnabled    *bool            `yaml:"fallback_enabled,omitempty"`    // nil = enabled
	FallbackFormat     string           `yaml:"fallback_format,omitempty"`     // text or markdown
	SaveDebugHTML      bool             `yaml:"save_debug_html,omitempty"`     // Keep pages that yielded no candidates
	VerifyPDF          bool             `yaml:"verify_pdf,omitempty"`          // Parse downloaded PDFs before keeping them
	Keywords           []string         `yaml:"keywords,omitempty"`            // Fuzzy vocabulary for download buttons
	ResultsFilename    string           `yaml:"results_filename,omitempty"`    // Structured results log
	LogFilename        string           `yaml:"log_filename,omitempty"`        // Plain-text run log
	UserAgent          string           `yaml:"user_agent,omitempty"`          // Session User-Agent
	Accept             string           `yaml:"accept,omitempty"`              // Session Accept header
	AcceptLanguage     string           `yaml:"accept_language,omitempty"`     // Session Accept-Language header
	MaxBodyBytes       int64            `yaml:"max_body_bytes,omitempty"`      // Cap on bytes read per response
	MaxRequestsPerHost int              `yaml:"max_requests_per_host"`         // Concurrent requests allowed per host
	DelayPerHost       time.Duration    `yaml:"delay_per_host,omitempty"`      // Minimum spacing between requests to a host
	RespectRobotsTxt   bool             `yaml:"respect_robots_txt,omitempty"`  // Skip URLs disallowed by robots.txt
	MaxRetries         int              `yaml:"max_retries,omitempty"`         // API retries (Unpaywall, NCBI); mirrors are never retried
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"` // First API retry delay
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`     // Cap on API retry delay
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Sources            []SourceConfig   `yaml:"sources"`
	Browser            BrowserConfig    `yaml:"browser,omitempty"`
	PubMed             PubMedConfig     `yaml:"pubmed,omitempty"`
}

// SourceConfig describes one mirror URL producer, tried in list order
type SourceConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type,omitempty"`     // template (default), unpaywall, pmc
	Template string `yaml:"template,omitempty"` // For type template
	Email    string `yaml:"email,omitempty"`    // Contact email for API sources
	BaseURL  string `yaml:"base_url,omitempty"` // Override API endpoint (tests, mirrors of the API)
}

// BrowserConfig controls the headless-browser fallback
type BrowserConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ProxyTemplate string        `yaml:"proxy_template,omitempty"` // e.g. https://libproxy.example.edu/login?url=https://doi.org/{doi}
	Headless      *bool         `yaml:"headless,omitempty"`       // nil = headless
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	ExecPath      string        `yaml:"exec_path,omitempty"` // Chrome binary, empty = auto-detect
}

// PubMedConfig holds settings for the Entrez harvester
type PubMedConfig struct {
	BaseURL           string        `yaml:"base_url,omitempty"`
	Tool              string        `yaml:"tool,omitempty"`
	Email             string        `yaml:"email,omitempty"`
	APIKey            string        `yaml:"api_key,omitempty"`
	RequestsPerSecond float64       `yaml:"requests_per_second,omitempty"`
	BatchSize         int           `yaml:"batch_size,omitempty"`
	BatchPause        time.Duration `yaml:"batch_pause,omitempty"`
	StartYear         int           `yaml:"start_year,omitempty"`
	Keywords          []string      `yaml:"keywords,omitempty"`
	FetchCitations    bool          `yaml:"fetch_citations,omitempty"`
	FetchPMC          bool          `yaml:"fetch_pmc,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Defaults shared by Validate and callers that bypass it
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.5"
	DefaultPubMedBaseURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
)

// DefaultKeywords is the fuzzy vocabulary for download buttons
var DefaultKeywords = []string{"download", "get pdf", "full text", "open pdf", "read article"}

// GetEffectiveFallbackEnabled reports whether the text fallback document is written
func GetEffectiveFallbackEnabled(appCfg AppConfig) bool {
	if appCfg.FallbackEnabled != nil {
		return *appCfg.FallbackEnabled
	}
	return true
}

// GetEffectiveHeadless reports whether the browser runs without a window
func GetEffectiveHeadless(b BrowserConfig) bool {
	if b.Headless != nil {
		return *b.Headless
	}
	return true
}

// GetEffectiveResultsFilename returns the results log name, with a hardcoded default
func GetEffectiveResultsFilename(appCfg AppConfig) string {
	if appCfg.ResultsFilename != "" {
		return appCfg.ResultsFilename
	}
	return "download_results.json"
}

// GetEffectiveLogFilename returns the run log name, with a hardcoded default
func GetEffectiveLogFilename(appCfg AppConfig) string {
	if appCfg.LogFilename != "" {
		return appCfg.LogFilename
	}
	return "download_log.txt"
}

// DefaultSources is the source list used when none is configured
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "doi", Type: SourceTypeTemplate, Template: "https://doi.org/{doi}"},
		{Name: "pmc", Type: SourceTypePMC},
	}
}
