// Package pipeline wires the classifier, extractors, link registry and
// downloader into the two user-facing operations: accepting pasted URLs and
// downloading the resulting queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/media-scraper/pkg/classify"
	"github.com/Sriram-PR/media-scraper/pkg/download"
	"github.com/Sriram-PR/media-scraper/pkg/extract"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/observe"
	"github.com/Sriram-PR/media-scraper/pkg/registry"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// maxResubmitDepth bounds nested resubmission (a Reddit post pointing at another Reddit post)
const maxResubmitDepth = 3

// Options holds the collaborators of a Pipeline
type Options struct {
	Registry   *registry.LinkRegistry
	Downloader *download.Downloader
	// Extract supplies the extractor collaborators; Resubmit is set by New
	Extract extract.Deps
	// Table overrides the extractor table built from Extract
	Table       extract.Table
	Observer    observe.Observer
	Log         *logrus.Entry
	SubmitDelay time.Duration // Pause between URLs of one SubmitBatch call
}

// Pipeline runs one operation at a time; a call made while another is in
// progress fails with utils.ErrBusy.
type Pipeline struct {
	classifier classify.Classifier
	table      extract.Table
	registry   *registry.LinkRegistry
	downloader *download.Downloader
	observer   observe.Observer
	log        *logrus.Entry

	submitDelay time.Duration
	batchID     string
	busy        *semaphore.Weighted
}

// Submission is the result of one URL of a SubmitBatch call. Err is
// ErrAlreadyAdded or ErrNotRecognized when the URL was refused.
type Submission struct {
	Input  string
	Result models.AcceptResult
	Err    error
}

type depthKey struct{}

// New creates a pipeline. Registry and Downloader are required.
func New(opts Options) (*Pipeline, error) {
	if opts.Registry == nil || opts.Downloader == nil {
		return nil, fmt.Errorf("%w: pipeline needs a registry and a downloader", utils.ErrInvariant)
	}
	p := &Pipeline{
		registry:    opts.Registry,
		downloader:  opts.Downloader,
		observer:    observe.OrNop(opts.Observer),
		log:         opts.Log.WithField("component", "pipeline"),
		submitDelay: opts.SubmitDelay,
		batchID:     uuid.NewString(),
		busy:        semaphore.NewWeighted(1),
	}

	p.table = opts.Table
	if p.table == nil {
		deps := opts.Extract
		deps.Resubmit = p.resubmit
		if deps.Observer == nil {
			deps.Observer = p.observer
		}
		if deps.Log == nil {
			deps.Log = opts.Log
		}
		p.table = extract.NewTable(deps)
	}
	return p, nil
}

// BatchID identifies the batch currently being assembled
func (p *Pipeline) BatchID() string {
	return p.batchID
}

// Accept classifies rawURL, extracts its media and queues it
func (p *Pipeline) Accept(ctx context.Context, rawURL string) (models.AcceptResult, error) {
	if !p.busy.TryAcquire(1) {
		return models.AcceptResult{}, utils.ErrBusy
	}
	defer p.busy.Release(1)
	return p.accept(ctx, rawURL)
}

// SubmitBatch accepts every whitespace-separated URL in text, in order.
// Per-URL failures are reported in the submissions; only cancellation,
// ErrBusy and invariant violations stop the batch.
func (p *Pipeline) SubmitBatch(ctx context.Context, text string) ([]Submission, error) {
	if !p.busy.TryAcquire(1) {
		return nil, utils.ErrBusy
	}
	defer p.busy.Release(1)

	inputs := strings.Fields(text)
	subs := make([]Submission, 0, len(inputs))
	for i, in := range inputs {
		if i > 0 && !sleep(ctx, p.submitDelay) {
			return subs, ctx.Err()
		}
		res, err := p.accept(ctx, in)
		if err == nil {
			err = rejection(res.Status)
		}
		subs = append(subs, Submission{Input: in, Result: res, Err: err})
		if err != nil && (errors.Is(err, utils.ErrInvariant) || ctx.Err() != nil) {
			return subs, err
		}
	}
	return subs, nil
}

// rejection maps a refused accept outcome to its sentinel error
func rejection(status models.AcceptStatus) error {
	switch status {
	case models.AcceptAlreadyAdded:
		return utils.ErrAlreadyAdded
	case models.AcceptNotRecognized:
		return utils.ErrNotRecognized
	}
	return nil
}

// DownloadBatch downloads the queued links and resets the batch. The batch is
// kept when the run aborts before finishing.
func (p *Pipeline) DownloadBatch(ctx context.Context) ([]models.DownloadOutcome, error) {
	if !p.busy.TryAcquire(1) {
		return nil, utils.ErrBusy
	}
	defer p.busy.Release(1)

	queue := p.registry.Queue()
	if len(queue) == 0 {
		p.observer.LogLine("Nothing to download")
		return nil, nil
	}

	outcomes, err := p.downloader.RunBatch(ctx, p.batchID, queue)
	if err != nil {
		p.log.WithField("batch_id", p.batchID).Errorf("Download batch aborted: %v", err)
		return outcomes, err
	}

	p.registry.ResetBatch()
	p.batchID = uuid.NewString()
	return outcomes, nil
}

func (p *Pipeline) accept(ctx context.Context, rawURL string) (models.AcceptResult, error) {
	res, links, err := p.resolve(ctx, rawURL)
	if err != nil || res.Status != models.AcceptAccepted {
		return res, err
	}

	for _, link := range links {
		p.registry.Append(link)
		p.logLink(link)
	}
	p.registry.Track(res.URL, res.Extractor, p.batchID)
	res.Links = links
	p.observer.LogLine("URL processing complete")
	return res, nil
}

// resolve runs the accept gate for one URL without touching the queue
func (p *Pipeline) resolve(ctx context.Context, rawURL string) (models.AcceptResult, []models.MediaLink, error) {
	normalized := classify.Normalize(rawURL)
	res := models.AcceptResult{URL: normalized}
	urlLog := p.log.WithField("url", normalized)

	if normalized == "" {
		res.Status = models.AcceptNotRecognized
		return res, nil, nil
	}
	if p.registry.Contains(normalized) {
		res.Status = models.AcceptAlreadyAdded
		p.observer.LogLine("Link already added - " + normalized)
		return res, nil, nil
	}

	id, ok := p.classifier.Classify(normalized)
	if !ok {
		res.Status = models.AcceptNotRecognized
		p.observer.LogLine("URL not recognized - " + normalized)
		return res, nil, nil
	}
	res.Extractor = id.String()

	ext, err := p.table.Lookup(id)
	if err != nil {
		return res, nil, err
	}

	urlLog.WithField("extractor", res.Extractor).Debug("Extracting")
	links, err := ext.Extract(ctx, normalized)
	switch {
	case err == nil:
	case errors.Is(err, utils.ErrAccessDenied):
		// Private post: accepted, nothing to queue
		urlLog.Infof("Access denied, no media queued: %v", err)
		links = nil
	default:
		urlLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Extraction failed: %v", err)
		return res, nil, err
	}

	p.registry.AddDisplay(normalized)
	res.Status = models.AcceptAccepted
	return res, links, nil
}

// resubmit is handed to the extractors as extract.ResubmitFunc
func (p *Pipeline) resubmit(ctx context.Context, rawURL string) ([]models.MediaLink, error) {
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= maxResubmitDepth {
		return nil, fmt.Errorf("%w: resubmission of %s nested %d deep", utils.ErrStructuralParse, rawURL, depth)
	}
	res, links, err := p.resolve(context.WithValue(ctx, depthKey{}, depth+1), rawURL)
	if err != nil {
		return nil, err
	}
	if res.Status != models.AcceptAccepted {
		return nil, nil
	}
	return links, nil
}

func (p *Pipeline) logLink(link models.MediaLink) {
	if link.IsMultiItem() {
		p.observer.LogLine(fmt.Sprintf("Added %s of post #%d / %d:", link.Kind, link.SourceIndex+1, link.SourceCount))
	} else {
		p.observer.LogLine(fmt.Sprintf("Added singular %s:", link.Kind))
	}
	p.observer.LogLine(" -  " + link.URL)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
