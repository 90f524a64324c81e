package deviantart

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowpity/postingcache/internal/posting/model"
)

func TestParseQueryRecognizesDeviationURLShapes(t *testing.T) {
	a := New(nil, nil)

	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"https://www.deviantart.com/someartist/art/Some-Title-123456", "full:someartist:Some-Title:123456", true},
		{"https://deviantart.com/art/Some-Title-123456", "artandid:Some-Title:123456", true},
		{"https://www.deviantart.com/deviation/123456", "id:123456", true},
		{"https://view.deviantart.com/123456", "id:123456", true},
		{"https://www.deviantart.com/someartist", "", false},
		{"https://derpibooru.org/123", "", false},
	}

	for _, tt := range tests {
		id, ok := a.ParseQuery(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		if tt.ok {
			assert.Equal(t, model.PlatformDeviantArt, id.Platform)
			assert.Equal(t, tt.want, id.Value, "input %q", tt.input)
		}
	}
}

func TestCanonicalURLRoundTripsEveryRequestIDShape(t *testing.T) {
	url, id, err := canonicalURL("full:someartist:Some-Title:123456")
	require.NoError(t, err)
	assert.Equal(t, "https://www.deviantart.com/someartist/art/Some-Title-123456", url)
	assert.Equal(t, "123456", id)

	url, id, err = canonicalURL("artandid:Some-Title:123456")
	require.NoError(t, err)
	assert.Equal(t, "https://www.deviantart.com/art/Some-Title-123456", url)
	assert.Equal(t, "123456", id)

	url, id, err = canonicalURL("id:123456")
	require.NoError(t, err)
	assert.Equal(t, "https://www.deviantart.com/deviation/123456", url)
	assert.Equal(t, "123456", id)

	_, _, err = canonicalURL("garbage")
	assert.Error(t, err)
}

func TestNumberOrStringAcceptsBothEncodings(t *testing.T) {
	n, err := numberOrString(json.RawMessage(`1024`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), n)

	n, err = numberOrString(json.RawMessage(`"768"`))
	require.NoError(t, err)
	assert.Equal(t, uint64(768), n)

	_, err = numberOrString(json.RawMessage(`"not a number"`))
	assert.Error(t, err)
}

func TestOembedRepresentationKindFollowsURLExtension(t *testing.T) {
	kind := func(url string) model.RepresentationKind {
		return oembedRepresentationKind(oembedResponse{URL: url})
	}
	assert.Equal(t, model.KindImagePng, kind("https://images-wixmp.example/a.png"))
	assert.Equal(t, model.KindAnimationGif, kind("https://images-wixmp.example/a.gif"))
	assert.Equal(t, model.KindVideoWebm, kind("https://images-wixmp.example/a.webm"))
	assert.Equal(t, model.KindImageJpeg, kind("https://images-wixmp.example/a.jpg"))
}

func TestSafetyRatingTreatsAdultAsNsfw(t *testing.T) {
	assert.True(t, safetyRatingFor("adult").NSFW)
	assert.False(t, safetyRatingFor("nonadult").NSFW)
	assert.False(t, safetyRatingFor("").NSFW)
}
