package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/log"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

const (
	trackKeyPrefix    = "track:"     // Prefix for processed input URL keys
	downloadKeyPrefix = "dl:"        // Prefix for downloaded media URL keys
	historyDBDir      = "history_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the HistoryStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) Count
}

// NewBadgerStore opens (or creates) the history database under stateDir.
// When resume is false any existing history is removed first.
func NewBadgerStore(ctx context.Context, stateDir string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbPath := filepath.Join(stateDir, historyDBDir)

	if !resume {
		logger.Warnf("Resume is false. REMOVING existing history directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing history directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing history database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing history: %d records", count)
		}
	}

	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// MarkTracked implements the HistoryStore interface
func (s *BadgerStore) MarkTracked(inputURL string, entry *models.TrackedDBEntry) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("%w: history db not initialized", utils.ErrDatabase)
	}
	key := []byte(trackKeyPrefix + inputURL)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		return false, fmt.Errorf("%w: failed to marshal TrackedDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
	}

	added := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			errSet := txn.SetEntry(badger.NewEntry(key, entryBytes))
			if errSet == nil {
				added = true
			}
			return errSet
		}
		return errGet
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkTracked: %v", err)
		return false, fmt.Errorf("%w: marking tracked key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// IsTracked implements the HistoryStore interface
func (s *BadgerStore) IsTracked(inputURL string) (bool, error) {
	key := []byte(trackKeyPrefix + inputURL)
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: reading tracked key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	return found, nil
}

// TrackedLinks implements the HistoryStore interface
func (s *BadgerStore) TrackedLinks() ([]string, error) {
	type tracked struct {
		url string
		at  time.Time
	}
	var all []tracked

	prefix := []byte(trackKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			u := string(item.Key()[len(prefix):])
			var entry models.TrackedDBEntry
			errValue := item.Value(func(val []byte) error {
				if len(val) == 0 {
					return nil
				}
				return json.Unmarshal(val, &entry)
			})
			if errValue != nil {
				s.log.Warnf("Failed to decode TrackedDBEntry for '%s': %v. Keeping URL without timestamp.", u, errValue)
			}
			all = append(all, tracked{url: u, at: entry.TrackedAt})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning tracked links: %w", utils.ErrDatabase, err)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	links := make([]string, len(all))
	for i, t := range all {
		links[i] = t.url
	}
	return links, nil
}

// RecordDownload implements the HistoryStore interface
func (s *BadgerStore) RecordDownload(mediaURL string, entry *models.DownloadDBEntry) error {
	if s.db == nil {
		return fmt.Errorf("%w: history db not initialized", utils.ErrDatabase)
	}
	key := []byte(downloadKeyPrefix + mediaURL)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal DownloadDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in RecordDownload: %v", err)
		return fmt.Errorf("%w: failed setting download status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Recorded download for key '%s' as '%s'", string(key), entry.Status)
	return nil
}

// CheckDownload implements the HistoryStore interface
func (s *BadgerStore) CheckDownload(mediaURL string) (models.DownloadStatus, *models.DownloadDBEntry, error) {
	status := models.DownloadStatusNotFound
	var entry *models.DownloadDBEntry
	key := []byte(downloadKeyPrefix + mediaURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting download key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			var decoded models.DownloadDBEntry
			if len(val) == 0 {
				s.log.Warnf("Download key '%s' found with empty value. Treating as 'not_found'.", string(key))
				return nil
			}
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				s.log.Warnf("Failed to unmarshal DownloadDBEntry for key '%s': %v. Treating as 'not_found'.", string(key), errJson)
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})
	if errView != nil {
		s.log.Errorf("DB View error in CheckDownload for key '%s': %v", string(key), errView)
		return models.DownloadStatusDBError, nil, errView
	}
	return status, entry, nil
}

// Count implements the HistoryStore interface
func (s *BadgerStore) Count() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC implements the HistoryStore interface
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
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

// WriteTrackedLog implements the HistoryStore interface
func (s *BadgerStore) WriteTrackedLog(filePath string) error {
	links, err := s.TrackedLinks()
	if err != nil {
		return err
	}
	return writeLines(s.ctx, filePath, links)
}

// Close implements the HistoryStore interface
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	s.log.Debug("Closing history database...")
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: closing history database: %w", utils.ErrDatabase, err)
	}
	return nil
}

// writeLines writes one line per entry, stopping early if ctx is cancelled
func writeLines(ctx context.Context, filePath string, lines []string) error {
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: creating directory for '%s': %w", utils.ErrFilesystem, filePath, err)
		}
	}
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create tracked log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range lines {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := writer.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("%w: writing tracked log '%s': %w", utils.ErrFilesystem, filePath, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: flushing tracked log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	return nil
}
