package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// GfycatExtractor checks the page is reachable and queues the page URL itself;
// the downloader resolves the actual video when it gets there.
type GfycatExtractor struct {
	deps Deps
	log  *logrus.Entry
}

func (e *GfycatExtractor) Extract(ctx context.Context, rawURL string) ([]models.MediaLink, error) {
	_, err := e.deps.Pages.FetchPage(ctx, rawURL, false)
	e.deps.Observer.LogLine("Got URL - " + rawURL)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		e.deps.Observer.LogLine(fmt.Sprintf("Unexpected response code (%s) for Gfycat URL", utils.CategorizeError(err)))
		e.log.WithField("url", rawURL).Debugf("Gfycat reachability check failed: %v", err)
		return nil, nil
	}
	return []models.MediaLink{newLink(rawURL, models.KindVideo, rawURL, 0, 0)}, nil
}
