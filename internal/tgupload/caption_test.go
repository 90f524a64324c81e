package tgupload

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowpity/postingcache/internal/posting/model"
)

func TestCaptionSfwSingleAuthor(t *testing.T) {
	post := model.Post{
		ID:      model.PostID{Platform: model.PlatformDerpibooru, Value: "123"},
		WebURL:  "https://derpibooru.org/images/123",
		Rating:  model.Sfw(),
		Authors: []model.Author{{Name: "artist1", WebURL: "https://derpibooru.org/search?q=artist%3Aartist1"}},
	}
	requestedBy := model.User{ID: 42, Username: "someuser"}

	caption := Caption(post, requestedBy, model.TgFilePhoto, UploadMethodDirectURL)

	assert.Equal(t,
		"*[Source \\(derpibooru\\)](https://derpibooru.org/images/123) by [artist1](https://derpibooru.org/search?q=artist%3Aartist1)*\n"+
			"*Requested by: [someuser](tg://user?id=42)\\\nUploaded as photo direct URL*",
		caption,
	)
}

func TestCaptionNsfwWithRatingTags(t *testing.T) {
	post := model.Post{
		ID:     model.PostID{Platform: model.PlatformDerpibooru, Value: "9"},
		WebURL: "https://derpibooru.org/images/9",
		Rating: model.Nsfw("explicit"),
	}
	requestedBy := model.User{ID: 7, FirstName: "Al"}

	caption := Caption(post, requestedBy, model.TgFileDocument, UploadMethodDownloaded)

	assert.Contains(t, caption, "\\(explicit\\)")
	assert.Contains(t, caption, "Uploaded as document downloaded")
}

func TestCaptionRequesterFallsBackToUserID(t *testing.T) {
	requester := requestedByLink(model.User{ID: 55})
	assert.Equal(t, "[user 55](tg://user?id=55)", requester)
}

func TestMarkdownEscapeCoversAllSpecialChars(t *testing.T) {
	escaped := MarkdownEscape("a_b*c[d]e(f)g~h`i>j#k+l-m=n|o{p}q.r!s\\t")
	for _, r := range "_*[]()~`>#+-=|{}.!\\" {
		assert.Contains(t, escaped, "\\"+string(r))
	}
}
