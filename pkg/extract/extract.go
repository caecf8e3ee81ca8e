// Package extract turns a classified post URL into directly downloadable
// media links. Each site family lives in its own file behind the Extractor
// interface; the static Table maps classifier ids to implementations.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/classify"
	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/fetch"
	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/observe"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Extractor resolves one post URL. Zero media is not an error; a page whose
// embedded data cannot be found at all returns utils.ErrStructuralParse.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) ([]models.MediaLink, error)
}

// ExtractorFunc adapts a function to the Extractor interface
type ExtractorFunc func(ctx context.Context, rawURL string) ([]models.MediaLink, error)

func (f ExtractorFunc) Extract(ctx context.Context, rawURL string) ([]models.MediaLink, error) {
	return f(ctx, rawURL)
}

// LoginGate is the part of auth.Gate the extractors need
type LoginGate interface {
	IsLoggedIn() bool
	Require(ctx context.Context) bool
}

// ResubmitFunc pushes a URL back through the accept gate and returns the links
// it resolved to. Nothing is queued by the call itself.
type ResubmitFunc func(ctx context.Context, rawURL string) ([]models.MediaLink, error)

// Deps are the collaborators shared by all extractors
type Deps struct {
	Pages    fetch.PageFetcher
	Gate     LoginGate
	Resubmit ResubmitFunc
	Observer observe.Observer
	Config   *config.AppConfig
	Log      *logrus.Entry
}

// Table is the static dispatch from classifier id to extractor
type Table map[classify.ExtractorID]Extractor

// NewTable builds the extractor for every site family
func NewTable(d Deps) Table {
	d.Observer = observe.OrNop(d.Observer)
	if d.Config == nil {
		d.Config = config.Default()
	}
	return Table{
		classify.Direct:    &DirectExtractor{},
		classify.Instagram: &InstagramExtractor{deps: d, log: d.Log.WithField("extractor", "instagram")},
		classify.Imgur:     &ImgurExtractor{deps: d, log: d.Log.WithField("extractor", "imgur")},
		classify.YouTube:   &YouTubeExtractor{},
		classify.Reddit:    &RedditExtractor{deps: d, log: d.Log.WithField("extractor", "reddit")},
		classify.Gfycat:    &GfycatExtractor{deps: d, log: d.Log.WithField("extractor", "gfycat")},
		classify.Tumblr:    &TumblrExtractor{deps: d, log: d.Log.WithField("extractor", "tumblr")},
		classify.Twitter:   &TwitterExtractor{deps: d, log: d.Log.WithField("extractor", "twitter")},
	}
}

// Lookup returns the extractor registered for id
func (t Table) Lookup(id classify.ExtractorID) (Extractor, error) {
	e, ok := t[id]
	if !ok || e == nil {
		return nil, fmt.Errorf("%w: no extractor registered for %s", utils.ErrInvariant, id)
	}
	return e, nil
}

// fetchDocument fetches a page and parses it with goquery
func fetchDocument(ctx context.Context, d Deps, rawURL string, authenticated bool) (*goquery.Document, string, error) {
	body, err := d.Pages.FetchPage(ctx, rawURL, authenticated)
	if err != nil {
		return nil, "", err
	}
	d.Observer.LogLine("Got URL - " + rawURL)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("%w: parsing HTML of %s: %w", utils.ErrParsing, rawURL, err)
	}
	return doc, body, nil
}

// newLink builds a MediaLink. count is zero for a singular post.
func newLink(url string, kind models.MediaKind, sourceURL string, index, count int) models.MediaLink {
	return models.MediaLink{URL: url, Kind: kind, SourceURL: sourceURL, SourceIndex: index, SourceCount: count}
}

func structural(site, rawURL, detail string) error {
	return fmt.Errorf("%w: %s page %s: %s", utils.ErrStructuralParse, site, rawURL, detail)
}
