// Package platform defines the uniform capability contract every posting
// platform adapter implements, plus a fixed-order registry used to dispatch
// a free-form user query to the first adapter that recognizes it.
package platform

import (
	"context"

	"github.com/snowpity/postingcache/internal/posting/model"
)

// Adapter is the contract a posting platform (Derpibooru-family boorus,
// Twitter, DeviantArt, ...) must satisfy. ParseQuery never errors: an
// unrecognized input simply reports ok=false so the registry can try the
// next adapter.
type Adapter interface {
	Platform() model.Platform
	ParseQuery(input string) (id model.RequestID, ok bool)
	GetPost(ctx context.Context, id model.RequestID) (model.Post, error)
	GetCachedBlobs(ctx context.Context, id model.RequestID) ([]model.CachedBlob, error)
	SetCachedBlob(ctx context.Context, post model.PostID, blob model.CachedBlob) error
}

// Registry holds adapters in registration order. The first adapter whose
// ParseQuery matches wins; the origin reported alongside it is that
// adapter's platform tag, not the matched host or URL prefix. Origin is
// used for metrics only and carries no behavioral impact.
type Registry struct {
	adapters []Adapter
	byName   map[model.Platform]Adapter
}

// NewRegistry builds a registry from adapters in the exact order they
// should be tried.
func NewRegistry(adapters ...Adapter) *Registry {
	byName := make(map[model.Platform]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Platform()] = a
	}
	return &Registry{adapters: adapters, byName: byName}
}

// ParseQuery tries every registered adapter in order and returns the first
// match, along with the platform tag used as the metrics "origin".
func (r *Registry) ParseQuery(input string) (model.RequestID, model.Platform, bool) {
	for _, a := range r.adapters {
		if id, ok := a.ParseQuery(input); ok {
			return id, a.Platform(), true
		}
	}
	return model.RequestID{}, "", false
}

// For returns the adapter registered for a platform tag, if any.
func (r *Registry) For(p model.Platform) (Adapter, bool) {
	a, ok := r.byName[p]
	return a, ok
}

// GetPost dispatches to the adapter matching id.Platform.
func (r *Registry) GetPost(ctx context.Context, id model.RequestID) (model.Post, error) {
	a, ok := r.For(id.Platform)
	if !ok {
		return model.Post{}, UnknownPlatformError{Platform: id.Platform}
	}
	return a.GetPost(ctx, id)
}

// GetCachedBlobs dispatches to the adapter matching id.Platform.
func (r *Registry) GetCachedBlobs(ctx context.Context, id model.RequestID) ([]model.CachedBlob, error) {
	a, ok := r.For(id.Platform)
	if !ok {
		return nil, UnknownPlatformError{Platform: id.Platform}
	}
	return a.GetCachedBlobs(ctx, id)
}

// SetCachedBlob dispatches to the adapter matching post.Platform.
func (r *Registry) SetCachedBlob(ctx context.Context, post model.PostID, blob model.CachedBlob) error {
	a, ok := r.For(post.Platform)
	if !ok {
		return UnknownPlatformError{Platform: post.Platform}
	}
	return a.SetCachedBlob(ctx, post, blob)
}

// UnknownPlatformError indicates an internal invariant violation: a
// RequestID/PostID was stamped with a platform tag for which no adapter is
// registered.
type UnknownPlatformError struct {
	Platform model.Platform
}

func (e UnknownPlatformError) Error() string {
	return "no adapter registered for platform " + string(e.Platform)
}
