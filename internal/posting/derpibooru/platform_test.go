package derpibooru

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowpity/postingcache/internal/posting/model"
)

func TestParseQueryRecognizesSiteAndCDNForms(t *testing.T) {
	a := New(DerpibooruSite, nil, nil)

	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"https://derpibooru.org/3121224", "3121224", true},
		{"https://derpibooru.org/images/3121224", "3121224", true},
		{"https://derpibooru.org/images/3121224?q=safe", "3121224", true},
		{"https://derpicdn.net/img/2022/1/2/3121224/full.jpg", "3121224", true},
		{"https://derpicdn.net/img/view/2022/1/2/3121224.png", "3121224", true},
		{"https://derpicdn.net/img/download/2022/1/2/3121224.png", "3121224", true},
		{"https://twibooru.org/123", "", false},
		{"not a url at all", "", false},
	}

	for _, tt := range tests {
		id, ok := a.ParseQuery(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		if tt.ok {
			assert.Equal(t, model.PlatformDerpibooru, id.Platform)
			assert.Equal(t, tt.want, id.Value, "input %q", tt.input)
		}
	}
}

func TestParseSafetyRating(t *testing.T) {
	assert.False(t, parseSafetyRating([]string{"safe", "cute", "pony"}).NSFW)

	r := parseSafetyRating([]string{"suggestive", "questionable"})
	assert.True(t, r.NSFW)
	assert.Equal(t, []string{"suggestive", "questionable"}, r.Kinds)

	// A post tagged both safe and a mature rating is not safe.
	assert.True(t, parseSafetyRating([]string{"safe", "grimdark"}).NSFW)
}

func TestParseAuthorsExtractsCreditedTags(t *testing.T) {
	authors := parseAuthors([]string{
		"artist:alice",
		"editor:bob",
		"prompter:carol",
		"oc:somepony",
		"cute",
	}, "https://derpibooru.org")

	require.Len(t, authors, 3)
	assert.Equal(t, model.Author{Name: "alice", WebURL: "https://derpibooru.org/search?q=artist:alice", Kind: model.AuthorKindArtist}, authors[0])
	assert.Equal(t, model.AuthorKindEditor, authors[1].Kind)
	assert.Equal(t, model.AuthorKindPrompter, authors[2].Kind)
}

func TestBestTgReprsGifPrefersMp4WithGifFallback(t *testing.T) {
	a := New(DerpibooruSite, nil, nil)
	m := media{ID: 1, MimeType: mimeImageGif, ViewURL: "https://derpicdn.net/img/view/1.gif"}

	reps, err := a.bestTgReprs(m, model.Dimensions{Width: 100, Height: 100})

	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, model.KindAnimationMp4, reps[0].Kind)
	assert.Equal(t, "https://derpicdn.net/img/view/1.mp4", reps[0].DownloadURL)
	assert.Equal(t, model.KindAnimationGif, reps[1].Kind)
	assert.Equal(t, "https://derpicdn.net/img/view/1.gif", reps[1].DownloadURL)
}

func TestBestTgReprsTwibooruHasNoMp4Twin(t *testing.T) {
	a := New(TwibooruSite, nil, nil)

	gifReps, err := a.bestTgReprs(media{MimeType: mimeImageGif, ViewURL: "https://cdn.twibooru.org/img/1.gif"}, model.Dimensions{})
	require.NoError(t, err)
	require.Len(t, gifReps, 1)
	assert.Equal(t, model.KindAnimationGif, gifReps[0].Kind)

	webmReps, err := a.bestTgReprs(media{MimeType: mimeVideoWebm, ViewURL: "https://cdn.twibooru.org/img/1.webm"}, model.Dimensions{})
	require.NoError(t, err)
	require.Len(t, webmReps, 1)
	assert.Equal(t, model.KindVideoWebm, webmReps[0].Kind)
}

func TestBestTgReprsRejectsUnknownMime(t *testing.T) {
	a := New(DerpibooruSite, nil, nil)
	_, err := a.bestTgReprs(media{ID: 9, MimeType: "application/zip"}, model.Dimensions{})
	assert.Error(t, err)
}

func TestGetPostNormalizesAPIResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/3121224", r.URL.Path)
		_ = json.NewEncoder(w).Encode(getImageResponse{Image: media{
			ID:       3121224,
			MimeType: mimeImageJpeg,
			Tags:     []string{"safe", "artist:alice"},
			ViewURL:  "https://derpicdn.net/img/view/2022/1/2/3121224.jpg",
			Width:    800,
			Height:   600,
		}})
	}))
	defer server.Close()

	site := DerpibooruSite
	site.APIBase = server.URL
	a := New(site, server.Client(), nil)

	post, err := a.GetPost(context.Background(), model.RequestID{Platform: model.PlatformDerpibooru, Value: "3121224"})

	require.NoError(t, err)
	assert.Equal(t, model.PostID{Platform: model.PlatformDerpibooru, Value: "3121224"}, post.ID)
	assert.Equal(t, "https://derpibooru.org/images/3121224", post.WebURL)
	assert.False(t, post.Rating.NSFW)
	require.Len(t, post.Authors, 1)
	assert.Equal(t, "alice", post.Authors[0].Name)
	require.Len(t, post.Blobs, 1)
	assert.True(t, post.Blobs[0].ID.IsUnit())
	require.Len(t, post.Blobs[0].Reps, 1)
	rep := post.Blobs[0].Reps[0]
	assert.Equal(t, model.KindImageJpeg, rep.Kind)
	assert.Equal(t, uint64(800), rep.Dimensions.Width)
	assert.Equal(t, model.UnknownSize(), rep.SizeHint)
}
