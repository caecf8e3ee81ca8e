// Package registry holds the per-session link state: the input URLs shown to
// the user, the resolved download queue and the long-lived tracking list used
// for dedup.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/observe"
	"github.com/Sriram-PR/media-scraper/pkg/storage"
)

// LinkRegistry is safe for concurrent use. The pipeline drives it from a
// single goroutine, the lock only protects snapshot readers.
type LinkRegistry struct {
	mu       sync.RWMutex
	display  []string
	queue    []models.MediaLink
	tracking []string
	tracked  map[string]struct{}

	store    storage.TrackingStore // Optional; nil keeps tracking in memory only
	observer observe.Observer
	log      *logrus.Entry
}

// New creates a registry. When store is non-nil the tracking list is seeded
// from it so dedup survives restarts.
func New(store storage.TrackingStore, observer observe.Observer, log *logrus.Entry) (*LinkRegistry, error) {
	r := &LinkRegistry{
		tracked:  make(map[string]struct{}),
		store:    store,
		observer: observe.OrNop(observer),
		log:      log,
	}
	if store == nil {
		return r, nil
	}
	links, err := store.TrackedLinks()
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		r.trackLocked(l)
	}
	if len(links) > 0 {
		log.Infof("Loaded %d previously processed URLs from history", len(links))
	}
	return r, nil
}

// Append pushes a resolved link onto the download queue and records its input URL as tracked
func (r *LinkRegistry) Append(link models.MediaLink) {
	r.mu.Lock()
	r.queue = append(r.queue, link)
	n := len(r.queue)
	r.mu.Unlock()

	if link.SourceURL != "" {
		r.Track(link.SourceURL, "", "")
	}
	r.observer.QueueLengthChanged(n)
}

// Track records an input URL as processed. Repeated calls are no-ops.
func (r *LinkRegistry) Track(inputURL, extractor, batchID string) {
	r.mu.Lock()
	added := r.trackLocked(inputURL)
	r.mu.Unlock()
	if !added || r.store == nil {
		return
	}

	entry := &models.TrackedDBEntry{
		Status:    models.TrackStatusTracked,
		Extractor: extractor,
		BatchID:   batchID,
		TrackedAt: time.Now(),
	}
	if _, err := r.store.MarkTracked(inputURL, entry); err != nil {
		// In-memory dedup still holds for this process
		r.log.WithField("url", inputURL).Warnf("Failed to persist tracked URL: %v", err)
	}
}

func (r *LinkRegistry) trackLocked(inputURL string) bool {
	if _, ok := r.tracked[inputURL]; ok {
		return false
	}
	r.tracked[inputURL] = struct{}{}
	r.tracking = append(r.tracking, inputURL)
	return true
}

// AddDisplay appends an accepted input URL to the display list
func (r *LinkRegistry) AddDisplay(inputURL string) {
	r.mu.Lock()
	r.display = append(r.display, inputURL)
	r.mu.Unlock()
}

// Contains reports whether rawURL duplicates a displayed or tracked input URL.
// A match is an exact hit, rawURL inside an entry, or an entry inside rawURL
// (the last one catches the same link pasted twice into one line).
func (r *LinkRegistry) Contains(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.tracked[rawURL]; ok {
		return true
	}
	for _, list := range [][]string{r.tracking, r.display} {
		for _, existing := range list {
			if existing == rawURL || strings.Contains(existing, rawURL) || strings.Contains(rawURL, existing) {
				return true
			}
		}
	}
	return false
}

// ResetBatch clears the download queue and display list; tracking links are kept
func (r *LinkRegistry) ResetBatch() {
	r.mu.Lock()
	r.queue = nil
	r.display = nil
	r.mu.Unlock()

	r.observer.QueueLengthChanged(0)
	r.observer.BatchReset()
}

// Queue returns a copy of the download queue in extraction order
func (r *LinkRegistry) Queue() []models.MediaLink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.MediaLink(nil), r.queue...)
}

// QueueLen returns the current number of queued links
func (r *LinkRegistry) QueueLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queue)
}

// DisplayLinks returns a copy of the accepted input URLs for this batch
func (r *LinkRegistry) DisplayLinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.display...)
}

// TrackingLinks returns a copy of every input URL processed in this session (and loaded history)
func (r *LinkRegistry) TrackingLinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.tracking...)
}
