package platform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowpity/postingcache/internal/posting/model"
)

// stubAdapter matches any input containing its platform tag.
type stubAdapter struct {
	tag model.Platform
}

func (s stubAdapter) Platform() model.Platform { return s.tag }

func (s stubAdapter) ParseQuery(input string) (model.RequestID, bool) {
	if strings.Contains(input, string(s.tag)) {
		return model.RequestID{Platform: s.tag, Value: input}, true
	}
	return model.RequestID{}, false
}

func (s stubAdapter) GetPost(ctx context.Context, id model.RequestID) (model.Post, error) {
	return model.Post{ID: model.PostID{Platform: s.tag, Value: id.Value}}, nil
}

func (s stubAdapter) GetCachedBlobs(ctx context.Context, id model.RequestID) ([]model.CachedBlob, error) {
	return nil, nil
}

func (s stubAdapter) SetCachedBlob(ctx context.Context, post model.PostID, blob model.CachedBlob) error {
	return nil
}

func TestParseQueryFirstMatchWins(t *testing.T) {
	r := NewRegistry(
		stubAdapter{tag: model.PlatformDerpibooru},
		stubAdapter{tag: model.PlatformTwitter},
	)

	id, origin, ok := r.ParseQuery("a derpibooru link")
	require.True(t, ok)
	assert.Equal(t, model.PlatformDerpibooru, id.Platform)
	assert.Equal(t, model.PlatformDerpibooru, origin)

	id, origin, ok = r.ParseQuery("a twitter link")
	require.True(t, ok)
	assert.Equal(t, model.PlatformTwitter, id.Platform)
	assert.Equal(t, model.PlatformTwitter, origin)

	_, _, ok = r.ParseQuery("nothing recognizable")
	assert.False(t, ok)
}

func TestDispatchRejectsUnregisteredPlatform(t *testing.T) {
	r := NewRegistry(stubAdapter{tag: model.PlatformDerpibooru})

	_, err := r.GetPost(context.Background(), model.RequestID{Platform: model.PlatformTwitter, Value: "1"})
	var unknown UnknownPlatformError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, model.PlatformTwitter, unknown.Platform)

	err = r.SetCachedBlob(context.Background(), model.PostID{Platform: model.PlatformTwitter, Value: "1"}, model.CachedBlob{})
	assert.ErrorAs(t, err, &unknown)
}

func TestDispatchRoutesByPlatformTag(t *testing.T) {
	r := NewRegistry(
		stubAdapter{tag: model.PlatformDerpibooru},
		stubAdapter{tag: model.PlatformTwitter},
	)

	post, err := r.GetPost(context.Background(), model.RequestID{Platform: model.PlatformTwitter, Value: "42"})
	require.NoError(t, err)
	assert.Equal(t, model.PlatformTwitter, post.ID.Platform)
}
