package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/media-scraper/pkg/models"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

func fixedResolver(suffix string) *Resolver {
	return &Resolver{random: func(int) string { return suffix }}
}

func TestResolveName(t *testing.T) {
	tests := []struct {
		name string
		link models.MediaLink
		want string
	}{
		{"plain image", models.MediaLink{URL: "https://i.imgur.com/AbC.jpg", Kind: models.KindImage}, "AbC.jpg"},
		{"query stripped", models.MediaLink{URL: "https://scontent.cdninstagram.com/v/t51/123_n.jpg?_nc_ht=x&oh=y", Kind: models.KindImage}, "123_n.jpg"},
		{"trailing junk after extension", models.MediaLink{URL: "https://cdn.example.com/a/photo.jpgx1", Kind: models.KindImage}, "photo.jpg"},
		{"twitter large", models.MediaLink{URL: "https://pbs.twimg.com/media/EabcXYZ.png:large", Kind: models.KindImage}, "EabcXYZ.png"},
		{"twitter orig", models.MediaLink{URL: "https://pbs.twimg.com/media/EabcXYZ.jpg:orig", Kind: models.KindImage}, "EabcXYZ.jpg"},
		{"uppercase extension", models.MediaLink{URL: "https://i.example.com/x/IMG.JPG", Kind: models.KindImage}, "IMG.jpg"},
		{"gfycat page gets mp4", models.MediaLink{URL: "https://gfycat.com/HappyLittleCat", Kind: models.KindVideo}, "HappyLittleCat.mp4"},
		{"reddit fallback video", models.MediaLink{URL: "https://v.redd.it/abc/DASH_720?source=fallback", Kind: models.KindVideo}, "DASH_720_R4nd0mSuff.mp4"},
		{"reddit fallback with extension", models.MediaLink{URL: "https://v.redd.it/abc/DASH_480.mp4?source=fallback", Kind: models.KindVideo}, "DASH_480_R4nd0mSuff.mp4"},
		{"tumblr video", models.MediaLink{URL: "https://va.media.tumblr.com/tumblr_x.mp4", Kind: models.KindVideo}, "tumblr_x.mp4"},
	}

	r := fixedResolver("R4nd0mSuff")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveName(tt.link)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveName_YouTubeThumbnailsAreDistinct(t *testing.T) {
	r := NewResolver()
	primary := models.MediaLink{URL: "https://img.youtube.com/vi/abc123/maxresdefault.jpg", GroupID: "abc123", Role: models.RoleThumbnailPrimary}
	fallback := models.MediaLink{URL: "https://img.youtube.com/vi/abc123/hqdefault.jpg", GroupID: "abc123", Role: models.RoleThumbnailFallback}
	other := models.MediaLink{URL: "https://img.youtube.com/vi/zzz999/maxresdefault.jpg", GroupID: "zzz999", Role: models.RoleThumbnailPrimary}

	// Order of resolution does not matter
	b, err := r.ResolveName(fallback)
	require.NoError(t, err)
	a, err := r.ResolveName(primary)
	require.NoError(t, err)
	c, err := r.ResolveName(other)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "abc123")
	assert.Contains(t, b, "abc123")
	assert.Equal(t, "abc123_maxresdefault.jpg", a)
	assert.Equal(t, "abc123_hqdefault.jpg", b)
}

func TestResolveName_ThumbnailWithoutGroupIsInvariantViolation(t *testing.T) {
	r := NewResolver()
	_, err := r.ResolveName(models.MediaLink{URL: "https://img.youtube.com/vi/x/maxresdefault.jpg", Role: models.RoleThumbnailPrimary})
	assert.ErrorIs(t, err, utils.ErrInvariant)

	_, err = r.ResolveName(models.MediaLink{URL: "https://x/y.jpg", GroupID: "g", Role: "bogus"})
	assert.ErrorIs(t, err, utils.ErrInvariant)
}

func TestResolveName_RandomSuffixDiffers(t *testing.T) {
	r := NewResolver()
	link := models.MediaLink{URL: "https://v.redd.it/abc/DASH_720?source=fallback", Kind: models.KindVideo}
	a, err := r.ResolveName(link)
	require.NoError(t, err)
	b, err := r.ResolveName(link)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^DASH_720_[A-Za-z0-9]{10}\.mp4$`, a)
}
