package extract

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/Sriram-PR/media-scraper/pkg/models"
)

const imgurCDN = "https://i.imgur.com/"

// ImgurExtractor resolves albums and single-image posts from the page's embedded JSON
type ImgurExtractor struct {
	deps Deps
	log  *logrus.Entry
}

// The post data sits under an `image :` key inside one of many inline scripts;
// newer pages also ship it as a plain JSON script. Which script varies.
var imgurPayload = anyOf(keyedObject("image"), wholeText)

func (e *ImgurExtractor) Extract(ctx context.Context, rawURL string) ([]models.MediaLink, error) {
	doc, _, err := fetchDocument(ctx, e.deps, rawURL, false)
	if err != nil {
		return nil, err
	}

	found, ok := findScriptJSON(doc, imgurPayload, "hash")
	if !ok {
		e.deps.Observer.LogLine("No image data found on Imgur page, post was likely deleted")
		return nil, nil
	}
	e.deps.Observer.LogLine(fmt.Sprintf("Script tag of Imgur post containing JSON data is at index %d / %d", found.Index, found.Total))
	e.log.WithFields(logrus.Fields{"url": rawURL, "script_index": found.Index}).Debug("Located Imgur payload")

	images := found.Data.Get("album_images.images")
	if images.Exists() {
		items := images.Array()
		links := make([]models.MediaLink, 0, len(items))
		for i, img := range items {
			if u := imgurURL(img); u != "" {
				links = append(links, newLink(u, models.KindImage, rawURL, i, len(items)))
			}
		}
		return links, nil
	}

	if u := imgurURL(found.Data); u != "" {
		return []models.MediaLink{newLink(u, models.KindImage, rawURL, 0, 0)}, nil
	}
	return nil, nil
}

func imgurURL(r gjson.Result) string {
	hash := r.Get("hash").String()
	if hash == "" {
		return ""
	}
	return imgurCDN + hash + r.Get("ext").String()
}
