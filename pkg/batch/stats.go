package batch

import (
	"sync"

	"github.com/Sriram-PR/paper-scraper/pkg/models"
)

// RunStats counts outcomes over one batch. Success includes text fallbacks.
type RunStats struct {
	Total        int `json:"total"`
	Success      int `json:"success"`
	TextFallback int `json:"text_fallback"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	NotStarted   int `json:"not_started"` // Left unstarted by cancellation; also counted in Skipped
}

// SuccessRate returns success/total*100, or 0 for an empty batch
func (s RunStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}

// Stats aggregates results from concurrent workers.
// Counters and the results list only change inside Record, Skip and NotStarted.
type Stats struct {
	mu      sync.Mutex
	counts  RunStats
	results []models.DownloadResult
}

// NewStats creates an aggregator for a batch of total identifiers
func NewStats(total int) *Stats {
	return &Stats{
		counts:  RunStats{Total: total},
		results: make([]models.DownloadResult, 0, total),
	}
}

// Record counts a terminal result and appends it in arrival order
func (s *Stats) Record(result models.DownloadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result.Succeeded {
		s.counts.Success++
		if result.Status == models.StatusTextFallbackSaved {
			s.counts.TextFallback++
		}
	} else {
		s.counts.Failed++
	}
	s.results = append(s.results, result)
}

// Skip counts an identifier finished by an earlier run; it adds no result
func (s *Stats) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Skipped++
}

// NotStarted counts n identifiers that were never handed to the downloader
func (s *Stats) NotStarted(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Skipped += n
	s.counts.NotStarted += n
}

// Snapshot returns the counters and a copy of the results so far
func (s *Stats) Snapshot() (RunStats, []models.DownloadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DownloadResult, len(s.results))
	copy(out, s.results)
	return s.counts, out
}

// Counts returns the counters so far
func (s *Stats) Counts() RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}
