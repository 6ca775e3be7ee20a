package models

import "time"

// DownloadResult is the per-identifier record appended to download_results.json.
// It is built once when the orchestrator reaches a terminal state and is not
// modified afterwards.
type DownloadResult struct {
	Identifier string         `json:"identifier"`           // Identifier as read from the input file
	Succeeded  bool           `json:"succeeded"`            // True for downloaded and text_fallback_saved
	Filename   *string        `json:"filename"`             // File name inside the output dir, null on failure
	Status     DownloadStatus `json:"status"`               // downloaded, text_fallback_saved or failed
	Source     string         `json:"source,omitempty"`     // Name of the source that produced the file
	SourceURL  string         `json:"source_url,omitempty"` // Final URL the document was read from
	Attempts   []string       `json:"attempts,omitempty"`   // Source names tried, in order
	SHA256     string         `json:"sha256,omitempty"`     // Hash of the written file
	Error      string         `json:"error,omitempty"`      // Last error category + message on failure
}

// FilenameOrEmpty returns the file name, or "" when none was written
func (r DownloadResult) FilenameOrEmpty() string {
	if r.Filename == nil {
		return ""
	}
	return *r.Filename
}

// ResultEntry stores a DownloadResult in the resume database
type ResultEntry struct {
	Result     DownloadResult `json:"result"`
	RunID      string         `json:"run_id,omitempty"` // Run that produced the result
	RecordedAt time.Time      `json:"recorded_at"`
}

// FetchOutcome is the classified result of a single HTTP GET
type FetchOutcome struct {
	Kind        OutcomeKind
	URL         string // Final URL after redirects (request URL on transport failure)
	StatusCode  int
	ContentType string
	Body        []byte // Document bytes, set for BinaryDocument
	Text        string // Decoded page, set for HtmlPage
	Err         error  // Why the fetch was classified OtherOrFailure
}

// Journal is one row of a journal list used for PubMed harvesting
type Journal struct {
	Abbreviation string // PubMed journal abbreviation
	ISSN         string
}
