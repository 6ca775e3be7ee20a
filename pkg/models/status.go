package models

// DownloadStatus is the terminal status recorded for an identifier
type DownloadStatus string

const (
	StatusUnset             DownloadStatus = ""                    // Zero value = unset/unknown
	StatusDownloaded        DownloadStatus = "downloaded"          // A binary PDF was saved
	StatusTextFallbackSaved DownloadStatus = "text_fallback_saved" // Page text was saved as a synthesized PDF
	StatusFailed            DownloadStatus = "failed"              // Every source was exhausted
)

// String implements fmt.Stringer for logging
func (s DownloadStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is one of the terminal values
func (s DownloadStatus) IsValid() bool {
	switch s {
	case StatusDownloaded, StatusTextFallbackSaved, StatusFailed:
		return true
	}
	return false
}

// Succeeded reports whether a file was produced
func (s DownloadStatus) Succeeded() bool {
	return s == StatusDownloaded || s == StatusTextFallbackSaved
}

// OutcomeKind tags a FetchOutcome
type OutcomeKind int

const (
	OutcomeOtherOrFailure OutcomeKind = iota // Non-200, unexpected type, signature mismatch or transport error
	OutcomeBinaryDocument                    // PDF content type with a %PDF body
	OutcomeHTMLPage                          // HTML content type
)

// String implements fmt.Stringer for logging
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeBinaryDocument:
		return "binary_document"
	case OutcomeHTMLPage:
		return "html_page"
	default:
		return "other_or_failure"
	}
}
