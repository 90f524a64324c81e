package platform

import (
	"context"

	"github.com/snowpity/postingcache/internal/mediacache"
	"github.com/snowpity/postingcache/internal/posting/model"
)

// CacheBacked implements the Adapter GetCachedBlobs/SetCachedBlob pair on top
// of a shared *mediacache.Store. Every concrete adapter embeds it instead of
// reimplementing the same two queries three times.
type CacheBacked struct {
	Store *mediacache.Store
}

// GetCachedBlobs looks up every previously-cached blob for id under
// id.Platform.
func (c CacheBacked) GetCachedBlobs(ctx context.Context, id model.RequestID) ([]model.CachedBlob, error) {
	if c.Store == nil {
		return nil, mediacache.ErrNotConfigured
	}
	return c.Store.Get(ctx, id.Platform, id.Value)
}

// SetCachedBlob records blob as uploaded for post.
func (c CacheBacked) SetCachedBlob(ctx context.Context, post model.PostID, blob model.CachedBlob) error {
	if c.Store == nil {
		return mediacache.ErrNotConfigured
	}
	return c.Store.Set(ctx, post.Platform, post.Value, blob)
}
