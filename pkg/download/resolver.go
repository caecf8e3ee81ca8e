package download

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// fileNameRe keeps a name up to and including its last media extension,
// dropping whatever some CDNs append after it
var fileNameRe = regexp.MustCompile(`(?i)^(.+)\.(jpe?g|png|gif|mp4|webp)`)

// twitterSizeSuffix is the size variant Twitter's CDN appends after the extension
var twitterSizeSuffix = regexp.MustCompile(`:(?:large|orig|medium|small|thumb)$`)

const (
	redditVideoHost  = "v.redd.it"
	randomSuffixLen  = 10
	maxResThumbName  = "maxresdefault"
	fallbackThumbTag = "hqdefault"
)

// Resolver derives the local file name for a link
type Resolver struct {
	random func(n int) string
}

// NewResolver creates a Resolver using utils.RandomAlphanumeric for suffixes
func NewResolver() *Resolver {
	return &Resolver{random: utils.RandomAlphanumeric}
}

// ResolveName returns the file name (no directory) a link is saved under.
// A thumbnail role without a group id is an invariant violation.
func (r *Resolver) ResolveName(link models.MediaLink) (string, error) {
	switch link.Role {
	case models.RoleThumbnailPrimary, models.RoleThumbnailFallback:
		if link.GroupID == "" {
			return "", fmt.Errorf("%w: thumbnail link %s has no group id", utils.ErrInvariant, link.URL)
		}
		tag := maxResThumbName
		if link.Role == models.RoleThumbnailFallback {
			tag = fallbackThumbTag
		}
		return utils.SanitizeFilename(link.GroupID) + "_" + tag + ".jpg", nil
	case models.RoleNone:
	default:
		return "", fmt.Errorf("%w: unknown thumbnail role %q", utils.ErrInvariant, link.Role)
	}

	host, segment := splitURL(link.URL)
	segment = twitterSizeSuffix.ReplaceAllString(segment, "")

	stem, ext := segment, ""
	if m := fileNameRe.FindStringSubmatch(segment); m != nil {
		stem, ext = m[1], "."+strings.ToLower(m[2])
	}

	// Fallback videos share generic names (DASH_720) across posts
	if host == redditVideoHost {
		return utils.SanitizeFilename(stem) + "_" + r.random(randomSuffixLen) + ".mp4", nil
	}

	if ext == "" {
		ext = defaultExt(link.Kind)
	}
	return utils.SanitizeFilename(stem) + ext, nil
}

// splitURL returns the host and the final path segment, falling back to raw string splitting
func splitURL(raw string) (host, segment string) {
	if u, err := url.Parse(raw); err == nil && strings.Trim(u.Path, "/") != "" {
		return u.Hostname(), path.Base(strings.TrimRight(u.Path, "/"))
	}
	trimmed := strings.TrimRight(raw, "/")
	return "", trimmed[strings.LastIndexByte(trimmed, '/')+1:]
}

func defaultExt(kind models.MediaKind) string {
	switch kind {
	case models.KindVideo:
		return ".mp4"
	case models.KindImage:
		return ".jpg"
	default:
		return ""
	}
}
