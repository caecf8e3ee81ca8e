// Package download drains the resolved queue to disk, one item at a time.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/observe"
	"github.com/Sriram-PR/media-scraper/pkg/storage"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Options control where and how politely files are written
type Options struct {
	Dir        string        // Destination directory, created on demand
	ItemDelay  time.Duration // Pause between items
	Retries    int           // Extra attempts per item after a failed fetch (0 = none)
	RetryDelay time.Duration // Initial backoff between those attempts
}

// Downloader writes queued links to Options.Dir strictly in queue order
type Downloader struct {
	resolver *Resolver
	store    storage.DownloadStore // Optional
	observer observe.Observer
	log      *logrus.Entry
	opts     Options

	gfycat   Strategy
	fallback Strategy
}

// New creates a Downloader. store may be nil.
func New(getter Getter, resolver *Resolver, store storage.DownloadStore, observer observe.Observer, log *logrus.Entry, opts Options) *Downloader {
	if resolver == nil {
		resolver = NewResolver()
	}
	if opts.Dir == "" {
		opts.Dir = "downloads"
	}
	return &Downloader{
		resolver: resolver,
		store:    store,
		observer: observe.OrNop(observer),
		log:      log,
		opts:     opts,
		gfycat:   gfycatStrategy{get: getter},
		fallback: byteStrategy{get: getter},
	}
}

func (d *Downloader) strategyFor(link models.MediaLink) Strategy {
	if isGfycatPage(link.URL) {
		return d.gfycat
	}
	return d.fallback
}

// Run downloads queue under a fresh batch id
func (d *Downloader) Run(ctx context.Context, queue []models.MediaLink) ([]models.DownloadOutcome, error) {
	return d.RunBatch(ctx, uuid.NewString(), queue)
}

// RunBatch downloads queue in order. File names are resolved for the whole
// queue before anything is fetched, so an invariant violation aborts the batch
// without partial output. A failed item is reported in its outcome and the
// batch continues.
func (d *Downloader) RunBatch(ctx context.Context, batchID string, queue []models.MediaLink) ([]models.DownloadOutcome, error) {
	if len(queue) == 0 {
		return nil, nil
	}

	names := make([]string, len(queue))
	for i, link := range queue {
		name, err := d.resolver.ResolveName(link)
		if err != nil {
			d.log.WithField("url", link.URL).Errorf("Cannot resolve file name: %v", err)
			return nil, err
		}
		names[i] = name
	}

	if err := os.MkdirAll(d.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating download directory %s: %w", utils.ErrFilesystem, d.opts.Dir, err)
	}

	total := len(queue)
	outcomes := make([]models.DownloadOutcome, 0, total)
	batchLog := d.log.WithField("batch_id", batchID)
	batchLog.WithField("items", total).Info("Starting download batch")

	for i, link := range queue {
		if i > 0 && !d.pause(ctx) {
			return outcomes, ctx.Err()
		}

		out := models.DownloadOutcome{
			Link:     link,
			FileName: names[i],
			Path:     filepath.Join(d.opts.Dir, names[i]),
		}
		itemLog := batchLog.WithFields(logrus.Fields{"url": link.URL, "file": out.FileName, "index": i + 1})

		if _, err := os.Stat(out.Path); err == nil {
			out.Skipped = true
			d.observer.LogLine(fmt.Sprintf("File %d / %d already present, skipping", i+1, total))
			itemLog.Debug("Destination exists, not fetching")
		} else {
			n, err := d.fetchTo(ctx, link, out.Path)
			out.BytesRead = n
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return outcomes, err
				}
				out.Err = err
				d.observer.LogLine(fmt.Sprintf("Failed to download file %d / %d", i+1, total))
				itemLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Download failed: %v", err)
			} else {
				out.Written = true
				d.observer.LogLine(fmt.Sprintf("Downloaded file %d / %d", i+1, total))
			}
		}

		d.record(batchID, out)
		outcomes = append(outcomes, out)
		d.observer.DownloadProgress(i+1, total)
	}

	return outcomes, nil
}

func (d *Downloader) pause(ctx context.Context) bool {
	if d.opts.ItemDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d.opts.ItemDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// fetchTo streams one link into dest, retrying transient failures when configured
func (d *Downloader) fetchTo(ctx context.Context, link models.MediaLink, dest string) (int64, error) {
	strategy := d.strategyFor(link)
	if d.opts.Retries <= 0 {
		return writeOnce(ctx, strategy, link, dest)
	}

	delay := d.opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	backoff := retry.WithMaxRetries(uint64(d.opts.Retries), retry.NewExponential(delay))

	var written int64
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		n, err := writeOnce(ctx, strategy, link, dest)
		written = n
		if err != nil && retryable(err) {
			d.log.WithField("url", link.URL).Debugf("Retrying download: %v", err)
			return retry.RetryableError(err)
		}
		return err
	})
	return written, err
}

// writeOnce writes through a .part file and renames it into place on success
func writeOnce(ctx context.Context, strategy Strategy, link models.MediaLink, dest string) (int64, error) {
	body, err := strategy.Open(ctx, link)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("%w: creating %s: %w", utils.ErrFilesystem, tmp, err)
	}

	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("%w: %w: %s: %w", utils.ErrFetchFailure, utils.ErrResponseBodyRead, link.URL, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("%w: closing %s: %w", utils.ErrFilesystem, tmp, closeErr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("%w: renaming %s: %w", utils.ErrFilesystem, tmp, err)
	}
	return n, nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, utils.ErrFilesystem), errors.Is(err, utils.ErrClientHTTPError), errors.Is(err, utils.ErrStructuralParse):
		return false
	}
	return true
}

// record stores the outcome in history; failures to record are logged only
func (d *Downloader) record(batchID string, out models.DownloadOutcome) {
	if d.store == nil {
		return
	}
	entry := &models.DownloadDBEntry{
		LocalPath:   out.Path,
		Kind:        out.Link.Kind,
		BatchID:     batchID,
		LastAttempt: time.Now(),
	}
	switch {
	case out.Err != nil:
		entry.Status = models.DownloadStatusFailure
		entry.ErrorType = utils.CategorizeError(out.Err)
		entry.LocalPath = ""
	case out.Skipped:
		entry.Status = models.DownloadStatusSkipped
	default:
		entry.Status = models.DownloadStatusSuccess
	}
	if err := d.store.RecordDownload(out.Link.URL, entry); err != nil {
		d.log.WithField("url", out.Link.URL).Warnf("Failed to record download: %v", err)
	}
}
