package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

const youtubeThumbnailBase = "https://img.youtube.com/vi/"

// YouTubeExtractor emits the thumbnail candidates of a video without fetching anything
type YouTubeExtractor struct{}

func (YouTubeExtractor) Extract(_ context.Context, rawURL string) ([]models.MediaLink, error) {
	id := youtubeVideoID(rawURL)
	if id == "" {
		return nil, fmt.Errorf("%w: no video id in %s", utils.ErrStructuralParse, rawURL)
	}

	// The max-resolution image 404s for some videos, so both candidates are queued
	primary := newLink(youtubeThumbnailBase+id+"/maxresdefault.jpg", models.KindImage, rawURL, 0, 0)
	primary.GroupID = id
	primary.Role = models.RoleThumbnailPrimary

	fallback := newLink(youtubeThumbnailBase+id+"/hqdefault.jpg", models.KindImage, rawURL, 0, 0)
	fallback.GroupID = id
	fallback.Role = models.RoleThumbnailFallback

	return []models.MediaLink{primary, fallback}, nil
}

// youtubeVideoID handles both watch?v= and youtu.be/<id> forms, dropping trailing arguments
func youtubeVideoID(rawURL string) string {
	var id string
	if _, after, ok := strings.Cut(rawURL, "watch?v="); ok {
		id = after
	} else {
		id = rawURL[strings.LastIndexByte(rawURL, '/')+1:]
	}
	if i := strings.IndexAny(id, "?&#"); i >= 0 {
		id = id[:i]
	}
	return id
}
