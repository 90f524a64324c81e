package tgupload

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowpity/postingcache/internal/posting/model"
)

var fileNameCharset = regexp.MustCompile(`^[a-z0-9_+.\-]+$`)

func TestFileNameObeysCharsetAndLengthLaw(t *testing.T) {
	post := model.Post{
		ID:      model.PostID{Platform: model.PlatformDerpibooru, Value: "123456"},
		Rating:  model.Nsfw("explicit", "grimdark"),
		Authors: []model.Author{{Name: "Some Artist!! 名前"}, {Name: "Another/Weird\\Name"}},
	}

	name := FileName(model.PlatformDerpibooru, post, model.BlobID{}, "png")

	assert.LessOrEqual(t, len(name), 255)
	base := strings.TrimSuffix(name, ".png")
	assert.True(t, fileNameCharset.MatchString(base), "unexpected characters in %q", base)
}

func TestFileNameIsDeterministic(t *testing.T) {
	post := model.Post{
		ID:      model.PostID{Platform: model.PlatformTwitter, Value: "999"},
		Rating:  model.Sfw(),
		Authors: []model.Author{{Name: "artist"}},
	}

	first := FileName(model.PlatformTwitter, post, model.BlobID{Value: "media-1"}, "jpg")
	second := FileName(model.PlatformTwitter, post, model.BlobID{Value: "media-1"}, "jpg")
	assert.Equal(t, first, second)
}

func TestFileNameDropsEmptySegments(t *testing.T) {
	post := model.Post{
		ID:     model.PostID{Platform: model.PlatformDeviantArt, Value: "42"},
		Rating: model.Sfw(),
	}

	name := FileName(model.PlatformDeviantArt, post, model.BlobID{}, "jpg")
	assert.Equal(t, "deviantart-42.jpg", name)
}

func TestFileNameTruncatesVeryLongSegments(t *testing.T) {
	post := model.Post{
		ID:     model.PostID{Platform: model.PlatformDerpibooru, Value: "1"},
		Rating: model.Sfw(),
	}
	for i := 0; i < 40; i++ {
		post.Authors = append(post.Authors, model.Author{Name: "author-name-long-enough-to-matter"})
	}

	name := FileName(model.PlatformDerpibooru, post, model.BlobID{}, "jpg")
	assert.LessOrEqual(t, len(name), 255)
}
