package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

// tumblrGateMarkup is the comment Tumblr's consent interstitial renders
// before the real post replaces it.
const tumblrGateMarkup = "<!--" +
	"\n       .o                                8888       8888" +
	"\n      .88                                8888       8888" +
	"\n    o8888oo  ooo  oooo  ooo. .oo.  .oo.   888oooo.   888  oooo d8b" +
	"\n    \"\"888\"\"  888  \"888  \"888P\"Y88bP\"Y88b  d88' `88b  888  \"888\"\"8P" +
	"\n      888    888   888   888   888   888  888   888  888   888" +
	"\n      888 .  888   888   888   888   888  888.  888  888   888" +
	"\n      \"888Y  `V88V\"V8P' o888o o888o o888o 88`bod8P' o888o d888b" +
	"\n" +
	"\n                                                                        -->"

var errGateShown = errors.New("consent page still shown")

// TumblrExtractor resolves photo sets, single photos and embedded videos
type TumblrExtractor struct {
	deps Deps
	log  *logrus.Entry
}

func (e *TumblrExtractor) Extract(ctx context.Context, rawURL string) ([]models.MediaLink, error) {
	body, err := e.waitPastGate(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	e.deps.Observer.LogLine("Got URL - " + rawURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, structural("tumblr", rawURL, err.Error())
	}

	if slideshow := doc.Find(".photoset, [class*='slideshow']").First(); slideshow.Length() > 0 {
		var srcs []string
		slideshow.Find("img").Each(func(_ int, s *goquery.Selection) {
			if src := imageSource(s); src != "" {
				srcs = append(srcs, resolveRef(rawURL, src))
			}
		})
		links := make([]models.MediaLink, len(srcs))
		for i, src := range srcs {
			links[i] = newLink(src, models.KindImage, rawURL, i, len(srcs))
		}
		return links, nil
	}

	if iframe := doc.Find(`iframe[src*="/video/"], iframe.embed_iframe`).First(); iframe.Length() > 0 {
		return e.embeddedVideo(ctx, rawURL, resolveRef(rawURL, iframe.AttrOr("src", "")))
	}

	src := imageSource(doc.Find("article img, .post img, figure img").First())
	if src == "" {
		src = doc.Find(`meta[property="og:image"]`).First().AttrOr("content", "")
	}
	if src == "" {
		e.deps.Observer.LogLine("No media found in Tumblr post")
		return nil, nil
	}
	return []models.MediaLink{newLink(resolveRef(rawURL, src), models.KindImage, rawURL, 0, 0)}, nil
}

// waitPastGate refetches the page while the consent interstitial is shown, up
// to the configured number of polls.
func (e *TumblrExtractor) waitPastGate(ctx context.Context, rawURL string) (string, error) {
	maxPolls := e.deps.Config.TumblrGateMaxPolls
	if maxPolls < 1 {
		maxPolls = 1
	}
	interval := e.deps.Config.TumblrGatePollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(maxPolls-1), retry.NewConstant(interval))

	var body string
	polls := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		polls++
		page, err := e.deps.Pages.FetchPage(ctx, rawURL, false)
		if err != nil {
			return err
		}
		if strings.Contains(page, tumblrGateMarkup) {
			e.log.WithFields(logrus.Fields{"url": rawURL, "poll": polls}).Debug("Consent page shown, polling again")
			return retry.RetryableError(errGateShown)
		}
		body = page
		return nil
	})
	if errors.Is(err, errGateShown) {
		return "", structural("tumblr", rawURL, fmt.Sprintf("consent page still shown after %d polls", polls))
	}
	return body, err
}

// embeddedVideo fetches the player iframe and takes its first <video><source>
func (e *TumblrExtractor) embeddedVideo(ctx context.Context, rawURL, iframeURL string) ([]models.MediaLink, error) {
	if iframeURL == "" {
		return nil, structural("tumblr", rawURL, "video iframe without src")
	}
	frame, _, err := fetchDocument(ctx, e.deps, iframeURL, false)
	if err != nil {
		return nil, err
	}
	src := frame.Find("video source[src]").First().AttrOr("src", "")
	if src == "" {
		src = frame.Find("video[src]").First().AttrOr("src", "")
	}
	if src == "" {
		return nil, structural("tumblr", iframeURL, "no <video><source> in player")
	}
	return []models.MediaLink{newLink(resolveRef(iframeURL, src), models.KindVideo, rawURL, 0, 0)}, nil
}

// imageSource prefers the high resolution variant when Tumblr provides one
func imageSource(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"data-highres", "src"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

// resolveRef turns a possibly relative reference into an absolute URL
func resolveRef(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
