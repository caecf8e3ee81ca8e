package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

const redditPostPath = "0.data.children.0.data"

// RedditExtractor reads a post's JSON form and resubmits whatever it links to
type RedditExtractor struct {
	deps Deps
	log  *logrus.Entry
}

// Targets in order of preference; the first non-empty one wins
var redditTargets = []string{
	"crosspost_parent_list.0.secure_media.reddit_video.fallback_url",
	"crosspost_parent_list.0.media.reddit_video.fallback_url",
	"secure_media.reddit_video.fallback_url",
	"media.reddit_video.fallback_url",
	"url_overridden_by_dest",
	"url",
}

func (e *RedditExtractor) Extract(ctx context.Context, rawURL string) ([]models.MediaLink, error) {
	body, err := e.deps.Pages.FetchPage(ctx, rawURL, false)
	if err != nil {
		return nil, err
	}
	e.deps.Observer.LogLine("Got URL - " + rawURL)

	payload := unwrapPre(body)
	if !gjson.Valid(payload) {
		return nil, structural("reddit", rawURL, "response is not JSON")
	}
	post := gjson.Get(payload, redditPostPath)
	if !post.Exists() {
		return nil, structural("reddit", rawURL, "no post data in listing")
	}

	target := redditTarget(post)
	if target == "" || isSelfPost(rawURL, target, post) {
		e.deps.Observer.LogLine("Reddit post is a self-post, aborting")
		return nil, nil
	}

	e.log.WithFields(logrus.Fields{"url": rawURL, "target": target}).Debug("Resubmitting Reddit target")
	if e.deps.Resubmit == nil {
		return nil, nil
	}
	return e.deps.Resubmit(ctx, target)
}

// unwrapPre strips the <pre> wrapper browsers put around raw JSON
func unwrapPre(body string) string {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return trimmed
	}
	if pre := doc.Find("pre").First(); pre.Length() > 0 {
		return strings.TrimSpace(pre.Text())
	}
	return trimmed
}

func redditTarget(post gjson.Result) string {
	for _, path := range redditTargets {
		if v := post.Get(path).String(); v != "" {
			return v
		}
	}
	return ""
}

// isSelfPost reports whether the resolved target just points back at the post
func isSelfPost(rawURL, target string, post gjson.Result) bool {
	if post.Get("is_self").Bool() {
		return true
	}
	postURL := strings.Replace(rawURL, "/.json", "/", 1)
	if target == postURL || target == strings.TrimSuffix(rawURL, ".json") {
		return true
	}
	if permalink := post.Get("permalink").String(); permalink != "" && strings.HasSuffix(target, permalink) {
		return true
	}
	return false
}
