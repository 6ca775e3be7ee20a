package batch

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// WriteResults writes results as an indented JSON array to dir/filename, atomically.
// An empty batch still produces "[]".
func WriteResults(dir, filename string, results []models.DownloadResult) (string, error) {
	if results == nil {
		results = []models.DownloadResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", utils.WrapErrorf(err, "marshal results")
	}
	path := filepath.Join(dir, filename)
	if err := utils.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return "", utils.WrapErrorf(err, "write results %s", filename)
	}
	return path, nil
}

// LogSummary logs the batch totals between banner lines
func LogSummary(log *logrus.Entry, report Report) {
	banner := strings.Repeat("=", 50)
	s := report.Stats
	log.Info(banner)
	log.Info("DOWNLOAD SUMMARY")
	log.Info(banner)
	log.Infof("Total DOIs: %d", s.Total)
	log.Infof("Successfully downloaded: %d", s.Success)
	log.Infof("Text fallbacks: %d", s.TextFallback)
	log.Infof("Failed: %d", s.Failed)
	log.Infof("Skipped: %d", s.Skipped)
	if s.NotStarted > 0 {
		log.Infof("Not started (cancelled): %d", s.NotStarted)
	}
	log.Infof("Success rate: %.1f%%", s.SuccessRate())
	if report.Duration > 0 {
		log.Infof("Duration: %v", report.Duration.Round(1e6))
	}
	log.Info(banner)
}
