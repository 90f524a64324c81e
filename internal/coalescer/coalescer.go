// Package coalescer implements the single entry point external callers use
// to resolve a post. It deduplicates concurrent identical requests so each
// upstream fetch and upload runs at most once, fans out blob uploads with
// bounded concurrency, and survives a panicking resolve without taking
// down the process. All mutable state is owned by one actor goroutine;
// callers and resolve tasks communicate with it exclusively over channels.
package coalescer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/snowpity/postingcache/internal/apperror"
	"github.com/snowpity/postingcache/internal/logging"
	"github.com/snowpity/postingcache/internal/posting/model"
	"github.com/snowpity/postingcache/internal/posting/platform"
	"github.com/snowpity/postingcache/internal/tgupload"
)

// maxInFlight bounds the number of waiting callers (return slots summed
// across all requests): once more than this many are outstanding, the
// coalescer stops accepting new envelopes.
const maxInFlight = 40

// blobFanOut bounds how many blobs of a single post are uploaded at once.
const blobFanOut = 10

type envelope struct {
	request    model.ResolveRequest
	returnSlot chan outcome
}

// returnSlot pairs a caller's delivery channel with the mirror tag that
// caller requested through: coalesced callers share one resolve but may
// have reached the same post via different mirror hostnames, and each
// response carries its own caller's tag.
type returnSlot struct {
	ch     chan outcome
	mirror *model.MirrorTag
}

type outcome struct {
	post model.CachedPost
	err  error
}

type requestOutcome struct {
	id   model.RequestID
	post model.CachedPost
	err  error
}

// Coalescer is the running actor: construct with New, then Start it on a
// context before calling CachePost.
type Coalescer struct {
	registry *platform.Registry
	engine   *tgupload.Engine

	inbox   chan envelope
	results chan requestOutcome

	stopCh   chan struct{}
	stopOnce sync.Once

	stopped chan struct{}
	once    sync.Once
}

// New constructs a Coalescer. Call Start before any CachePost call.
func New(registry *platform.Registry, engine *tgupload.Engine) *Coalescer {
	return &Coalescer{
		registry: registry,
		engine:   engine,
		inbox:    make(chan envelope, maxInFlight),
		results:  make(chan requestOutcome),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the actor goroutine. It runs until Stop is called or ctx is
// canceled.
func (c *Coalescer) Start(ctx context.Context) {
	go c.runLoop(ctx)
}

// Stop triggers a graceful drain: no further envelope is accepted,
// envelopes still sitting unread in the inbox receive a shutdown error,
// and every resolve task already running is allowed to
// finish and deliver its real result to whichever callers are still
// attached. Stop blocks until the actor loop has fully exited (the actor
// join is awaited synchronously on shutdown). It is safe to call more than
// once: later calls only wait for the same exit.
func (c *Coalescer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.stopped
}

// CachePost resolves a post, its blobs cached in the messaging platform.
// It is safe to call concurrently and with the same RequestID repeatedly:
// duplicate concurrent calls share a single upstream fetch and upload.
func (c *Coalescer) CachePost(ctx context.Context, request model.ResolveRequest) (model.CachedPost, error) {
	slot := make(chan outcome, 1)
	env := envelope{request: request, returnSlot: slot}

	select {
	case c.inbox <- env:
	case <-ctx.Done():
		return model.CachedPost{}, ctx.Err()
	case <-c.stopped:
		return model.CachedPost{}, errStopped
	}

	select {
	case r := <-slot:
		return r.post, r.err
	case <-c.stopped:
		// The actor has fully exited. The drain delivers into every slot it
		// ever saw before exiting, so check for a late delivery rather than
		// racing the two ready cases; an envelope that slipped into the
		// inbox buffer after the drain has no delivery coming.
		select {
		case r := <-slot:
			return r.post, r.err
		default:
			return model.CachedPost{}, errStopped
		}
	case <-ctx.Done():
		return model.CachedPost{}, ctx.Err()
	}
}

var errStopped = fmt.Errorf("coalescer: service has stopped")

func (c *Coalescer) runLoop(ctx context.Context) {
	defer c.once.Do(func() { close(c.stopped) })

	returnSlots := make(map[model.RequestID][]returnSlot)

	for {
		totalInFlight := 0
		for _, slots := range returnSlots {
			totalInFlight += len(slots)
		}

		// A nil channel is never ready, so disabling the inbox case is
		// exactly "don't accept more work right now".
		var inbox chan envelope
		if totalInFlight <= maxInFlight {
			inbox = c.inbox
		}

		select {
		case env, ok := <-inbox:
			if !ok {
				return
			}
			c.processRequestEnvelope(ctx, env, returnSlots)

		case out := <-c.results:
			dispatchResponse(out, returnSlots)

		case <-ctx.Done():
			c.drainShutdown(returnSlots)
			return

		case <-c.stopCh:
			c.drainShutdown(returnSlots)
			return
		}
	}
}

// drainShutdown rejects every envelope still unread in the inbox buffer
// with a shutdown error (they never got the chance to join an in-flight
// resolve), then keeps reading c.results — letting every resolveGuarded
// goroutine already running finish and deliver its real outcome to its
// waiters — until no request has return slots left outstanding. This is
// what prevents both the
// goroutine leak (a resolveGuarded blocked forever sending to c.results)
// and the caller hang (a CachePost that already enqueued into the buffered
// inbox waiting on a return slot nothing will ever fill) that an immediate
// return on shutdown would otherwise cause.
func (c *Coalescer) drainShutdown(returnSlots map[model.RequestID][]returnSlot) {
	shutdownErr := fmt.Errorf("coalescer: service is shutting down")

drainInbox:
	for {
		select {
		case env := <-c.inbox:
			env.returnSlot <- outcome{err: shutdownErr}
		default:
			break drainInbox
		}
	}

	for len(returnSlots) > 0 {
		out := <-c.results
		dispatchResponse(out, returnSlots)
	}
}

func (c *Coalescer) processRequestEnvelope(ctx context.Context, env envelope, returnSlots map[model.RequestID][]returnSlot) {
	id := env.request.Request
	slot := returnSlot{ch: env.returnSlot, mirror: env.request.Mirror}

	if existing, ok := returnSlots[id]; ok {
		returnSlots[id] = append(existing, slot)
		return
	}
	returnSlots[id] = []returnSlot{slot}

	go c.resolveGuarded(ctx, env.request)
}

// resolveGuarded runs resolveRequest and reports its outcome back to the
// actor loop, recovering from a panic so one bad request can't take down
// every in-flight caller.
func (c *Coalescer) resolveGuarded(ctx context.Context, request model.ResolveRequest) {
	var post model.CachedPost
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = apperror.New(apperror.KindPanic, fmt.Errorf("panic resolving %s: %v", request.Request, r))
			}
		}()
		post, err = c.resolveRequest(ctx, request)
	}()

	c.results <- requestOutcome{id: request.Request, post: post, err: err}
}

func dispatchResponse(out requestOutcome, returnSlots map[model.RequestID][]returnSlot) {
	slots, ok := returnSlots[out.id]
	if !ok {
		logging.Errorf("BUG: received outcome for request %s with no return slot", out.id)
		return
	}
	delete(returnSlots, out.id)

	for _, slot := range slots {
		// Each recipient gets an independent copy carrying the mirror tag
		// from its own envelope.
		post := out.post
		post.Mirror = slot.mirror
		slot.ch <- outcome{post: post, err: out.err}
	}
}

// resolveRequest fetches the post and the already-cached blobs in parallel,
// then uploads whatever's missing.
func (c *Coalescer) resolveRequest(ctx context.Context, request model.ResolveRequest) (model.CachedPost, error) {
	var post model.Post
	var cachedBlobs []model.CachedBlob

	// A panic on an errgroup goroutine is out of resolveGuarded's reach, so
	// each one recovers its own and reports it as a KindPanic error.
	guard := func(f func() error) func() error {
		return func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = apperror.New(apperror.KindPanic, fmt.Errorf("panic resolving %s: %v", request.Request, r))
				}
			}()
			return f()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard(func() error {
		p, err := c.registry.GetPost(gctx, request.Request)
		if err != nil {
			return fmt.Errorf("fetch post: %w", err)
		}
		post = p
		return nil
	}))
	g.Go(guard(func() error {
		blobs, err := c.registry.GetCachedBlobs(gctx, request.Request)
		if err != nil {
			return fmt.Errorf("fetch cached blobs: %w", err)
		}
		cachedBlobs = blobs
		return nil
	}))
	if err := g.Wait(); err != nil {
		return model.CachedPost{}, err
	}

	byBlobID := make(map[model.BlobID]model.TgFile, len(cachedBlobs))
	for _, cb := range cachedBlobs {
		byBlobID[cb.BlobID] = cb.TgFile
	}

	resolved := make([]model.CachedBlob, len(post.Blobs))
	var missing []int
	for i, blob := range post.Blobs {
		if tgFile, ok := byBlobID[blob.ID]; ok {
			resolved[i] = model.CachedBlob{BlobID: blob.ID, TgFile: tgFile}
		} else {
			missing = append(missing, i)
		}
	}

	if len(missing) == 0 {
		logging.Infof("blob cache hit for %s (%d blobs)", request.Request, len(resolved))
		return basePostToCachedPost(post, resolved), nil
	}

	logging.Infof("blob cache miss for %s (%d/%d blobs cached)", request.Request, len(resolved)-len(missing), len(post.Blobs))

	uploadGroup, uploadCtx := errgroup.WithContext(ctx)
	uploadGroup.SetLimit(blobFanOut)

	for _, i := range missing {
		i := i
		blob := post.Blobs[i]
		uploadGroup.Go(guard(func() error {
			cached, err := c.engine.Upload(uploadCtx, post, blob, request.RequestedBy)
			if err != nil {
				return fmt.Errorf("upload blob %s: %w", blob.ID.Value, err)
			}
			resolved[i] = cached

			if err := c.registry.SetCachedBlob(uploadCtx, post.ID, cached); err != nil {
				// Best-effort: the upload already succeeded, so the
				// request itself should still succeed even if the cache
				// write failed. The next resolve for this post just
				// re-uploads.
				logging.Warnf("failed to persist cache entry for blob %s: %v", blob.ID.Value, err)
			}
			return nil
		}))
	}
	if err := uploadGroup.Wait(); err != nil {
		return model.CachedPost{}, err
	}

	return basePostToCachedPost(post, resolved), nil
}

// basePostToCachedPost strips the blob list off the post; the mirror tag is
// stamped per-recipient at dispatch time, not here.
func basePostToCachedPost(post model.Post, blobs []model.CachedBlob) model.CachedPost {
	base := post
	base.Blobs = nil
	return model.CachedPost{Base: base, Blobs: blobs}
}
