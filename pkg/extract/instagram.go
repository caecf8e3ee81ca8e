package extract

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// InstagramExtractor resolves /p/<id>/ posts, including albums and videos
type InstagramExtractor struct {
	deps Deps
	log  *logrus.Entry
}

// igPost is the shape every Instagram payload variant is normalized to
type igPost struct {
	Shape string
	Owner igOwner
	Media gjson.Result // shortcode_media; absent when the page only exposes the profile
}

type igOwner struct {
	Username         string
	IsPrivate        bool
	FollowedByViewer bool
}

// igShape is one known way Instagram embeds post data
type igShape struct {
	name      string
	propose   candidateFunc
	required  []string
	normalize func(gjson.Result) igPost
}

func ownerFrom(r gjson.Result) igOwner {
	return igOwner{
		Username:         r.Get("username").String(),
		IsPrivate:        r.Get("is_private").Bool(),
		FollowedByViewer: r.Get("followed_by_viewer").Bool(),
	}
}

// igShapes is ordered; the first shape found on the page is used
var igShapes = []igShape{
	{
		// Public post
		name:     "shared_data_post",
		propose:  assignedTo("window._sharedData"),
		required: []string{"entry_data.PostPage.0.graphql.shortcode_media"},
		normalize: func(r gjson.Result) igPost {
			media := r.Get("entry_data.PostPage.0.graphql.shortcode_media")
			return igPost{Owner: ownerFrom(media.Get("owner")), Media: media}
		},
	},
	{
		// Private post viewed by someone who follows the owner
		name:     "additional_data",
		propose:  calledWith("window.__additionalDataLoaded("),
		required: []string{"graphql.shortcode_media"},
		normalize: func(r gjson.Result) igPost {
			media := r.Get("graphql.shortcode_media")
			return igPost{Owner: ownerFrom(media.Get("owner")), Media: media}
		},
	},
	{
		// Redirected to the owner's profile: the post itself is not visible
		name:     "shared_data_profile",
		propose:  assignedTo("window._sharedData"),
		required: []string{"entry_data.ProfilePage.0.graphql.user"},
		normalize: func(r gjson.Result) igPost {
			return igPost{Owner: ownerFrom(r.Get("entry_data.ProfilePage.0.graphql.user"))}
		},
	},
}

func (e *InstagramExtractor) Extract(ctx context.Context, rawURL string) ([]models.MediaLink, error) {
	return e.extract(ctx, rawURL, e.loggedIn(), true)
}

func (e *InstagramExtractor) loggedIn() bool {
	return e.deps.Gate != nil && e.deps.Gate.IsLoggedIn()
}

func (e *InstagramExtractor) extract(ctx context.Context, rawURL string, authenticated, mayPrompt bool) ([]models.MediaLink, error) {
	doc, _, err := fetchDocument(ctx, e.deps, rawURL, authenticated)
	if err != nil {
		return nil, err
	}

	post, err := locatePost(doc, rawURL)
	if err != nil {
		return nil, err
	}
	e.deps.Observer.LogLine("Extracted JSON data")
	e.log.WithFields(logrus.Fields{"url": rawURL, "shape": post.Shape}).Debug("Located Instagram payload")

	blocked := !post.Media.Exists() || (post.Owner.IsPrivate && !post.Owner.FollowedByViewer)
	if blocked {
		if mayPrompt && !authenticated && e.deps.Gate != nil {
			e.deps.Observer.LogLine("Login initiated")
			if e.deps.Gate.Require(ctx) {
				return e.extract(ctx, rawURL, true, false)
			}
		}
		e.deps.Observer.LogLine(fmt.Sprintf("Cannot access profile of %s - Skipping!", post.Owner.Username))
		return nil, fmt.Errorf("%w: private profile %q", utils.ErrAccessDenied, post.Owner.Username)
	}

	links := mediaLinks(post.Media, rawURL)
	if len(links) == 0 {
		e.deps.Observer.LogLine("No media found in Instagram post")
	}
	return links, nil
}

// locatePost tries every known payload shape in order
func locatePost(doc *goquery.Document, rawURL string) (igPost, error) {
	for _, shape := range igShapes {
		found, ok := findScriptJSON(doc, shape.propose, shape.required...)
		if !ok {
			continue
		}
		post := shape.normalize(found.Data)
		post.Shape = shape.name
		return post, nil
	}
	return igPost{}, structural("instagram", rawURL, "no known data payload in any script tag")
}

// mediaLinks emits an image per item plus a video where the item has one
func mediaLinks(media gjson.Result, rawURL string) []models.MediaLink {
	var links []models.MediaLink

	edges := media.Get("edge_sidecar_to_children.edges")
	if edges.Exists() {
		items := edges.Array()
		for i, edge := range items {
			node := edge.Get("node")
			if u := node.Get("display_url").String(); u != "" {
				links = append(links, newLink(u, models.KindImage, rawURL, i, len(items)))
			}
			if v := node.Get("video_url").String(); v != "" {
				links = append(links, newLink(v, models.KindVideo, rawURL, i, len(items)))
			}
		}
		return links
	}

	if u := media.Get("display_url").String(); u != "" {
		links = append(links, newLink(u, models.KindImage, rawURL, 0, 0))
	}
	if v := media.Get("video_url").String(); v != "" {
		links = append(links, newLink(v, models.KindVideo, rawURL, 0, 0))
	}
	return links
}
