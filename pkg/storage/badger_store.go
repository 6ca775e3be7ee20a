package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/paper-scraper/pkg/log"
	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/parse"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

const (
	resultKeyPrefix = "result:"    // Prefix for identifier keys in DB
	resultsDBDir    = "results_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements ResultStore using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	runID    string       // Stamped on every entry written by this process
	keyCount atomic.Int64 // Cached key count for O(1) Count
}

// NewBadgerStore opens the result database under stateDir.
// With resume false any existing database is removed first.
func NewBadgerStore(ctx context.Context, stateDir, runID string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log:   logger,
		runID: runID,
	}

	dbPath := filepath.Join(stateDir, resultsDBDir)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing result database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrDatabase, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest result per identifier matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countKeys(ctx)
		if err != nil {
			logger.Warnf("Failed to count existing results on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded %d stored results", count)
		}
	}

	return store, nil
}

// countKeys performs a one-time full key scan, used only when resuming
func (s *BadgerStore) countKeys(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(resultKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Conflicts between concurrent workers resolve in microseconds, so a tight loop is enough.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func resultKey(identifier string) []byte {
	return []byte(resultKeyPrefix + parse.NormalizeIdentifier(identifier))
}

// Get implements ResultStore. Undecodable entries are reported as absent.
func (s *BadgerStore) Get(identifier string) (*models.DownloadResult, bool, error) {
	key := resultKey(identifier)
	var entry *models.ResultEntry

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			var decoded models.ResultEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Failed to unmarshal ResultEntry for key '%s': %v. Treating as absent.", string(key), errJSON)
				return nil
			}
			entry = &decoded
			return nil
		})
	})
	if errView != nil {
		s.log.Errorf("DB View error in Get for key '%s': %v", string(key), errView)
		return nil, false, errView
	}
	if entry == nil {
		return nil, false, nil
	}
	return &entry.Result, true, nil
}

// Put implements ResultStore
func (s *BadgerStore) Put(result models.DownloadResult) error {
	key := resultKey(result.Identifier)
	entry := models.ResultEntry{
		Result:     result,
		RunID:      s.runID,
		RecordedAt: time.Now().UTC(),
	}
	val, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("%w: marshal result for '%s': %w", utils.ErrDatabase, string(key), err)
	}

	added := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		switch {
		case errors.Is(errGet, badger.ErrKeyNotFound):
			added = true
		case errGet != nil:
			return errGet
		default:
			added = false
		}
		return txn.SetEntry(badger.NewEntry(key, val))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in Put: %v", err)
		return fmt.Errorf("%w: storing key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return nil
}

// Count implements ResultStore
func (s *BadgerStore) Count() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for {
				// Rewrite while at least half of a value log file is reclaimable
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close implements ResultStore
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing result DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing result DB: %v", err)
			return err
		}
		return nil
	}
	return nil
}
