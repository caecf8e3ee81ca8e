package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

// TrackingStore remembers which input URLs have already been processed
type TrackingStore interface {
	// MarkTracked records an input URL with its entry.
	// Returns true if the URL was newly added, false if it already existed
	MarkTracked(inputURL string, entry *models.TrackedDBEntry) (bool, error)

	// IsTracked reports whether an input URL has been recorded
	IsTracked(inputURL string) (bool, error)

	// TrackedLinks returns every recorded input URL, oldest first
	TrackedLinks() ([]string, error)
}

// DownloadStore records what happened to individual media URLs
type DownloadStore interface {
	// RecordDownload stores the outcome of downloading a media URL
	RecordDownload(mediaURL string, entry *models.DownloadDBEntry) error

	// CheckDownload returns DownloadStatusNotFound when the URL was never recorded,
	// DownloadStatusDBError when the lookup itself failed
	CheckDownload(mediaURL string) (models.DownloadStatus, *models.DownloadDBEntry, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// Count returns the number of records in the store
	Count() (int, error)

	// WriteTrackedLog writes all tracked input URLs to the given file, one per line
	WriteTrackedLog(filePath string) error

	// RunGC runs periodic garbage collection until ctx is done. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close releases the store
	Close() error
}

// HistoryStore combines all store interfaces for components that need full access
type HistoryStore interface {
	TrackingStore
	DownloadStore
	StoreAdmin
}
