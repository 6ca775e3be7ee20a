package batch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/storage"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// gcInterval spaces result store garbage collection during long batches
const gcInterval = 10 * time.Minute

// Downloader turns one identifier into a terminal result; *download.Orchestrator implements it
type Downloader interface {
	Download(ctx context.Context, rawIdentifier string) models.DownloadResult
}

// Options tunes a Runner
type Options struct {
	Mode            string        // config.ModeSequential or config.ModeParallel
	MaxWorkers      int           // Upper bound on parallel workers
	IdentifierPause time.Duration // Pause between identifiers in sequential mode
	OutputDir       string        // Where earlier results' files are checked on resume
	Resume          bool          // Skip identifiers the store already finished

	// OnProgress, when set, receives the counters after every identifier
	OnProgress func(RunStats)
}

// OptionsFromConfig extracts batch settings from a validated config
func OptionsFromConfig(appCfg config.AppConfig) Options {
	return Options{
		Mode:            appCfg.Mode,
		MaxWorkers:      appCfg.MaxWorkers,
		IdentifierPause: appCfg.IdentifierPause,
		OutputDir:       appCfg.OutputDir,
	}
}

// Report is the outcome of one batch
type Report struct {
	Results  []models.DownloadResult
	Stats    RunStats
	Duration time.Duration
}

// Runner drives identifiers through a Downloader
type Runner struct {
	downloader Downloader
	store      storage.ResultStore // nil = results are not recorded
	opts       Options
	log        *logrus.Entry
}

// NewRunner creates a Runner. store may be nil.
func NewRunner(downloader Downloader, store storage.ResultStore, opts Options, log *logrus.Entry) *Runner {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 10
	}
	return &Runner{
		downloader: downloader,
		store:      store,
		opts:       opts,
		log:        log.WithField("component", "batch"),
	}
}

// Run processes every identifier once and returns the collected results.
// Results are in submission order sequentially and completion order in parallel.
func (r *Runner) Run(ctx context.Context, identifiers []string) Report {
	startTime := time.Now()
	n := len(identifiers)
	if n == 0 {
		r.log.Warn("No identifiers to process")
		return Report{Results: []models.DownloadResult{}}
	}

	if r.store != nil {
		gcCtx, stopGC := context.WithCancel(ctx)
		defer stopGC()
		go r.store.RunGC(gcCtx, gcInterval)
	}

	stats := NewStats(n)
	if r.opts.Mode == config.ModeParallel {
		workers := min(r.opts.MaxWorkers, n)
		r.log.Infof("Processing %d identifiers with %d workers", n, workers)

		var g errgroup.Group
		g.SetLimit(workers)
		for i, id := range identifiers {
			if ctx.Err() != nil {
				stats.NotStarted(n - i)
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					stats.NotStarted(1)
					return nil
				}
				r.process(ctx, id, stats)
				return nil
			})
		}
		g.Wait()
	} else {
		r.log.Infof("Processing %d identifiers sequentially", n)
		for i, id := range identifiers {
			if ctx.Err() != nil {
				stats.NotStarted(n - i)
				break
			}
			r.process(ctx, id, stats)
			if i < n-1 {
				pause(ctx, r.opts.IdentifierPause)
			}
		}
	}

	counts, results := stats.Snapshot()
	if counts.NotStarted > 0 {
		r.log.Warnf("Batch cancelled: %d of %d identifiers were not started", counts.NotStarted, n)
	}
	return Report{Results: results, Stats: counts, Duration: time.Since(startTime)}
}

// process downloads one identifier, or skips it when an earlier run already produced its file
func (r *Runner) process(ctx context.Context, identifier string, stats *Stats) {
	if r.opts.OnProgress != nil {
		defer func() { r.opts.OnProgress(stats.Counts()) }()
	}
	if r.alreadyDone(identifier) {
		r.log.WithField("identifier", identifier).Info("Skipping, already downloaded in an earlier run")
		stats.Skip()
		return
	}

	result := r.downloader.Download(ctx, identifier)
	stats.Record(result)

	if r.store != nil {
		if err := r.store.Put(result); err != nil {
			r.log.WithField("identifier", identifier).Warnf("Could not record result for resume: %v", err)
		}
	}
}

func (r *Runner) alreadyDone(identifier string) bool {
	if r.store == nil || !r.opts.Resume {
		return false
	}
	prior, ok, err := r.store.Get(identifier)
	if err != nil {
		r.log.WithField("identifier", identifier).Warnf("Resume lookup failed, downloading again: %v", err)
		return false
	}
	if !ok || !prior.Succeeded || prior.Filename == nil {
		return false
	}
	path := filepath.Join(r.opts.OutputDir, *prior.Filename)
	if !utils.FileExists(path) {
		return false
	}
	if prior.SHA256 == "" {
		return true
	}
	sum, err := utils.CalculateFileSHA256(path)
	if err != nil || sum != prior.SHA256 {
		r.log.WithField("identifier", identifier).Warnf("%s changed since it was downloaded, fetching again", *prior.Filename)
		return false
	}
	return true
}

// pause waits d or until ctx is done
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 || ctx.Err() != nil {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
