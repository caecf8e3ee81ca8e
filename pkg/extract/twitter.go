package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

// TwitterExtractor emits every og:image of a status page in document order
type TwitterExtractor struct {
	deps Deps
	log  *logrus.Entry
}

func (e *TwitterExtractor) Extract(ctx context.Context, rawURL string) ([]models.MediaLink, error) {
	doc, _, err := fetchDocument(ctx, e.deps, rawURL, false)
	if err != nil {
		return nil, err
	}

	var urls []string
	doc.Find(`meta[property="og:image"]`).Each(func(_ int, s *goquery.Selection) {
		if c := strings.TrimSpace(s.AttrOr("content", "")); c != "" {
			urls = append(urls, c)
		}
	})
	if len(urls) == 0 {
		e.deps.Observer.LogLine("No images found in tweet")
		return nil, nil
	}

	links := make([]models.MediaLink, len(urls))
	for i, u := range urls {
		count := len(urls)
		if count == 1 {
			count = 0
		}
		links[i] = newLink(u, models.KindImage, rawURL, i, count)
	}
	e.log.WithFields(logrus.Fields{"url": rawURL, "images": len(links)}).Debug("Extracted tweet images")
	return links, nil
}
