// Package classify maps a pasted URL to the extractor that understands it.
package classify

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// ExtractorID identifies one site-family extractor
type ExtractorID int

const (
	Unknown ExtractorID = iota
	Direct
	Instagram
	Imgur
	YouTube
	Reddit
	Gfycat
	Tumblr
	Twitter
)

var extractorNames = map[ExtractorID]string{
	Unknown:   "unknown",
	Direct:    "direct",
	Instagram: "instagram",
	Imgur:     "imgur",
	YouTube:   "youtube",
	Reddit:    "reddit",
	Gfycat:    "gfycat",
	Tumblr:    "tumblr",
	Twitter:   "twitter",
}

func (id ExtractorID) String() string {
	if name, ok := extractorNames[id]; ok {
		return name
	}
	return "unknown"
}

// matchTimeout bounds backtracking on hostile input
const matchTimeout = 250 * time.Millisecond

type rule struct {
	name string
	re   *regexp2.Regexp
	id   ExtractorID
}

func mustRule(name, expr string, id ExtractorID) rule {
	re := regexp2.MustCompile(expr, regexp2.None)
	re.MatchTimeout = matchTimeout
	return rule{name: name, re: re, id: id}
}

// Order matters: the first rule that matches wins. Direct file links sit
// ahead of the site rules so an i.imgur.com file never reaches the Imgur
// page extractor.
var rules = []rule{
	mustRule("instagram_post", `^https://www\.instagram\.com/p/.+/`, Instagram),
	mustRule("direct_file", `^https?://.+\..+\..+\.(?:jpe?g|png|gif|webp|mp4)`, Direct),
	mustRule("imgur_post", `^https?://(?:www\.|m\.)?imgur\.com/.+$(?<!(?:png|gif|jpe?g|mp4))`, Imgur),
	mustRule("youtube_watch", `^https://(?:www\.|m\.)?youtube\.com/watch\?v=.+`, YouTube),
	mustRule("youtube_short", `^https://youtu\.be/.+`, YouTube),
	mustRule("reddit_post", `^https?://(?:www|old)\.reddit\.com/r/(\w+)/.+`, Reddit),
	mustRule("reddit_fallback", `^https://v\.redd\.it/.+\?source=fallback`, Direct),
	mustRule("gfycat", `^https://(?:www\.)?gfycat\.com/\w+$(?<!-)`, Gfycat),
	mustRule("tumblr_post", `^https://(.+)\.tumblr\.com/post/(\d+)(?:/.+)?`, Tumblr),
	mustRule("twitter_status", `^https://(?:mobile\.)?twitter\.com/.+/status/(\d+)`, Twitter),
}

var redditRule = rules[5]

// Normalize trims surrounding whitespace and gives Reddit post URLs the
// `.json` suffix their extractor fetches. The query and fragment of a Reddit
// URL are dropped first, so share links map to the same post.
func Normalize(raw string) string {
	u := strings.TrimSpace(raw)
	if !matches(redditRule.re, u) {
		return u
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if !strings.HasSuffix(u, ".json") {
		u += ".json"
	}
	return u
}

// Classifier is the ordered rule table. The zero value is ready to use.
type Classifier struct{}

// Classify returns the extractor for an already-normalized URL.
// ok is false when no rule matches.
func (Classifier) Classify(normalized string) (id ExtractorID, ok bool) {
	r, ok := match(normalized)
	if !ok {
		return Unknown, false
	}
	return r.id, true
}

// RuleName returns the name of the rule that matched, for logging
func (Classifier) RuleName(normalized string) string {
	if r, ok := match(normalized); ok {
		return r.name
	}
	return ""
}

func match(u string) (rule, bool) {
	for _, r := range rules {
		if matches(r.re, u) {
			return r, true
		}
	}
	return rule{}, false
}

// matches treats a regexp2 timeout as a non-match
func matches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}
