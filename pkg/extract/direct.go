package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

const redditVideoHost = "v.redd.it"

// DirectExtractor handles links that already point at a file
type DirectExtractor struct{}

func (DirectExtractor) Extract(_ context.Context, rawURL string) ([]models.MediaLink, error) {
	kind := models.KindImage
	if u, err := url.Parse(rawURL); err == nil {
		if u.Hostname() == redditVideoHost || strings.HasSuffix(strings.ToLower(u.Path), ".mp4") {
			kind = models.KindVideo
		}
	}
	return []models.MediaLink{newLink(rawURL, kind, rawURL, 0, 0)}, nil
}
