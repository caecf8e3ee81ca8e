package storage

import (
	"context"
	"sync"
	"time"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

// MemoryStore is a HistoryStore that lives only as long as the process.
// Used when persist_history is off and in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	order     []string
	tracked   map[string]models.TrackedDBEntry
	downloads map[string]models.DownloadDBEntry
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tracked:   make(map[string]models.TrackedDBEntry),
		downloads: make(map[string]models.DownloadDBEntry),
	}
}

func (m *MemoryStore) MarkTracked(inputURL string, entry *models.TrackedDBEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracked[inputURL]; ok {
		return false, nil
	}
	var e models.TrackedDBEntry
	if entry != nil {
		e = *entry
	}
	m.tracked[inputURL] = e
	m.order = append(m.order, inputURL)
	return true, nil
}

func (m *MemoryStore) IsTracked(inputURL string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tracked[inputURL]
	return ok, nil
}

func (m *MemoryStore) TrackedLinks() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

func (m *MemoryStore) RecordDownload(mediaURL string, entry *models.DownloadDBEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry == nil {
		entry = &models.DownloadDBEntry{}
	}
	m.downloads[mediaURL] = *entry
	return nil
}

func (m *MemoryStore) CheckDownload(mediaURL string) (models.DownloadStatus, *models.DownloadDBEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.downloads[mediaURL]
	if !ok {
		return models.DownloadStatusNotFound, nil, nil
	}
	return e.Status, &e, nil
}

func (m *MemoryStore) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tracked) + len(m.downloads), nil
}

func (m *MemoryStore) WriteTrackedLog(filePath string) error {
	links, _ := m.TrackedLinks()
	return writeLines(context.Background(), filePath, links)
}

// RunGC has nothing to collect; it blocks until ctx is done like the Badger variant
func (m *MemoryStore) RunGC(ctx context.Context, _ time.Duration) {
	<-ctx.Done()
}

func (m *MemoryStore) Close() error { return nil }

var (
	_ HistoryStore = (*MemoryStore)(nil)
	_ HistoryStore = (*BadgerStore)(nil)
)
