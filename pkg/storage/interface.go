package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/paper-scraper/pkg/models"
)

// ResultStore remembers per-identifier results across runs so a resumed batch can skip finished work
type ResultStore interface {
	// Get returns the stored result for a normalized identifier, and whether one exists
	Get(identifier string) (*models.DownloadResult, bool, error)

	// Put records result under its normalized identifier, replacing any earlier entry
	Put(result models.DownloadResult) error

	// Count returns the number of stored results
	Count() (int, error)

	// RunGC runs periodic value log garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}
