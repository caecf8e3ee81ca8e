package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Getter performs a GET and returns the open response on success.
// *fetch.HTTPPageFetcher implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string, authenticated bool) (*http.Response, error)
}

// Strategy opens the byte stream behind a link
type Strategy interface {
	Name() string
	Open(ctx context.Context, link models.MediaLink) (io.ReadCloser, error)
}

// byteStrategy fetches the link URL as is
type byteStrategy struct {
	get Getter
}

func (byteStrategy) Name() string { return "bytes" }

func (s byteStrategy) Open(ctx context.Context, link models.MediaLink) (io.ReadCloser, error) {
	resp, err := s.get.Get(ctx, link.URL, false)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// gfycatStrategy loads the Gfycat page and streams the video it embeds
type gfycatStrategy struct {
	get Getter
}

func (gfycatStrategy) Name() string { return "gfycat" }

func (s gfycatStrategy) Open(ctx context.Context, link models.MediaLink) (io.ReadCloser, error) {
	resp, err := s.get.Get(ctx, link.URL, false)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML of %s: %w", utils.ErrParsing, link.URL, err)
	}

	src := videoSource(doc)
	if src == "" {
		return nil, fmt.Errorf("%w: no video source on gfycat page %s", utils.ErrStructuralParse, link.URL)
	}
	if base, err := url.Parse(link.URL); err == nil {
		if ref, err := url.Parse(src); err == nil {
			src = base.ResolveReference(ref).String()
		}
	}

	video, err := s.get.Get(ctx, src, false)
	if err != nil {
		return nil, err
	}
	return video.Body, nil
}

// videoSource prefers an mp4 <source>, then any <source>, then the og:video tags
func videoSource(doc *goquery.Document) string {
	selectors := []struct{ sel, attr string }{
		{`video source[type="video/mp4"]`, "src"},
		{`video source[src]`, "src"},
		{`video[src]`, "src"},
		{`meta[property="og:video:secure_url"]`, "content"},
		{`meta[property="og:video"]`, "content"},
	}
	for _, s := range selectors {
		if v := strings.TrimSpace(doc.Find(s.sel).First().AttrOr(s.attr, "")); v != "" {
			return v
		}
	}
	return ""
}

// isGfycatPage matches the page host only; the video CDN hosts are plain byte fetches
func isGfycatPage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "gfycat.com", "www.gfycat.com":
		return true
	}
	return false
}
