package coalescer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowpity/postingcache/internal/posting/model"
	"github.com/snowpity/postingcache/internal/posting/platform"
	"github.com/snowpity/postingcache/internal/tgupload"
)

// fakeAdapter counts GetPost calls and returns one blob that always needs
// uploading, so every resolveRequest exercises the upload path.
type fakeAdapter struct {
	platformTag model.Platform
	getPostN    int64
	delay       time.Duration
}

func (f *fakeAdapter) Platform() model.Platform { return f.platformTag }

func (f *fakeAdapter) ParseQuery(input string) (model.RequestID, bool) {
	return model.RequestID{Platform: f.platformTag, Value: input}, true
}

func (f *fakeAdapter) GetPost(ctx context.Context, id model.RequestID) (model.Post, error) {
	atomic.AddInt64(&f.getPostN, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return model.Post{
		ID: model.PostID{Platform: f.platformTag, Value: id.Value},
		Blobs: []model.Blob{{
			ID:   model.BlobID{Value: "blob-1"},
			Reps: []model.Representation{{Kind: model.KindImageJpeg, DownloadURL: "https://example.test/1.jpg", SizeHint: model.MaxBytes(1000)}},
		}},
	}, nil
}

func (f *fakeAdapter) GetCachedBlobs(ctx context.Context, id model.RequestID) ([]model.CachedBlob, error) {
	return nil, nil
}

func (f *fakeAdapter) SetCachedBlob(ctx context.Context, post model.PostID, blob model.CachedBlob) error {
	return nil
}

// fakeSender counts Send calls and returns a deterministic TgFile.
type fakeSender struct {
	sendN int64
}

func (s *fakeSender) Send(ctx context.Context, chatID int64, kind model.TgFileKind, file tgupload.InputFile, caption string) (model.TgFile, error) {
	atomic.AddInt64(&s.sendN, 1)
	return model.TgFile{Handle: "tg-handle", Kind: model.TgFilePhoto}, nil
}

func newTestCoalescer(adapter platform.Adapter, sender *fakeSender) *Coalescer {
	registry := platform.NewRegistry(adapter)
	engine := &tgupload.Engine{HTTP: nil, Sender: sender, ChatID: 1}
	return New(registry, engine)
}

func TestCachePostDeduplicatesConcurrentIdenticalRequests(t *testing.T) {
	adapter := &fakeAdapter{platformTag: model.PlatformDerpibooru, delay: 20 * time.Millisecond}
	sender := &fakeSender{}
	c := newTestCoalescer(adapter, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Start(ctx)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]model.CachedPost, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			post, err := c.CachePost(ctx, model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformDerpibooru, Value: "123"}})
			results[i] = post
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tg-handle", results[i].Blobs[0].TgFile.Handle)
	}

	assert.EqualValues(t, 1, atomic.LoadInt64(&adapter.getPostN), "expected exactly one upstream fetch for concurrent identical requests")
	assert.EqualValues(t, 1, atomic.LoadInt64(&sender.sendN), "expected exactly one upload for concurrent identical requests")
}

func TestCachePostDistinctRequestsEachResolveIndependently(t *testing.T) {
	adapter := &fakeAdapter{platformTag: model.PlatformDerpibooru}
	sender := &fakeSender{}
	c := newTestCoalescer(adapter, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Start(ctx)

	_, err1 := c.CachePost(ctx, model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformDerpibooru, Value: "1"}})
	_, err2 := c.CachePost(ctx, model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformDerpibooru, Value: "2"}})

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.EqualValues(t, 2, atomic.LoadInt64(&adapter.getPostN))
}

func TestCoalescedCallersEachGetTheirOwnMirrorTag(t *testing.T) {
	adapter := &fakeAdapter{platformTag: model.PlatformTwitter, delay: 20 * time.Millisecond}
	sender := &fakeSender{}
	c := newTestCoalescer(adapter, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Start(ctx)

	req := model.RequestID{Platform: model.PlatformTwitter, Value: "777"}
	mirrorA := model.MirrorTag("vxtwitter.com")
	mirrorB := model.MirrorTag("fixvx.com")

	var wg sync.WaitGroup
	var postA, postB, postC model.CachedPost
	var errA, errB, errC error
	wg.Add(3)
	go func() {
		defer wg.Done()
		postA, errA = c.CachePost(ctx, model.ResolveRequest{Request: req, Mirror: &mirrorA})
	}()
	go func() {
		defer wg.Done()
		postB, errB = c.CachePost(ctx, model.ResolveRequest{Request: req, Mirror: &mirrorB})
	}()
	go func() {
		defer wg.Done()
		postC, errC = c.CachePost(ctx, model.ResolveRequest{Request: req})
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	require.NoError(t, errC)

	require.NotNil(t, postA.Mirror)
	assert.Equal(t, mirrorA, *postA.Mirror)
	require.NotNil(t, postB.Mirror)
	assert.Equal(t, mirrorB, *postB.Mirror)
	assert.Nil(t, postC.Mirror)
}

// cachingAdapter remembers SetCachedBlob writes and serves them back from
// GetCachedBlobs, like the real store does.
type cachingAdapter struct {
	fakeAdapter

	mu     sync.Mutex
	cached map[model.BlobID]model.TgFile
	setN   int64
}

func (c *cachingAdapter) GetCachedBlobs(ctx context.Context, id model.RequestID) ([]model.CachedBlob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.CachedBlob
	for blobID, tgFile := range c.cached {
		out = append(out, model.CachedBlob{BlobID: blobID, TgFile: tgFile})
	}
	return out, nil
}

func (c *cachingAdapter) SetCachedBlob(ctx context.Context, post model.PostID, blob model.CachedBlob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	atomic.AddInt64(&c.setN, 1)
	if c.cached == nil {
		c.cached = make(map[model.BlobID]model.TgFile)
	}
	if _, ok := c.cached[blob.BlobID]; !ok {
		c.cached[blob.BlobID] = blob.TgFile
	}
	return nil
}

func TestCachePostSecondCallIsACacheHit(t *testing.T) {
	adapter := &cachingAdapter{fakeAdapter: fakeAdapter{platformTag: model.PlatformDerpibooru}}
	sender := &fakeSender{}
	registry := platform.NewRegistry(adapter)
	engine := &tgupload.Engine{Sender: sender, ChatID: 1}
	c := New(registry, engine)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Start(ctx)

	req := model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformDerpibooru, Value: "123"}}

	first, err := c.CachePost(ctx, req)
	require.NoError(t, err)
	second, err := c.CachePost(ctx, req)
	require.NoError(t, err)

	// Post metadata is fetched every time; only the blob uploads are cached.
	assert.EqualValues(t, 2, atomic.LoadInt64(&adapter.getPostN))
	assert.EqualValues(t, 1, atomic.LoadInt64(&sender.sendN), "the second call must not re-upload")
	assert.EqualValues(t, 1, atomic.LoadInt64(&adapter.setN), "a cache hit must not write the cache again")
	assert.Equal(t, first.Blobs[0].TgFile.Handle, second.Blobs[0].TgFile.Handle)
}

// multiBlobAdapter returns a post with several blobs so order preservation
// across the parallel upload fan-out can be checked.
type multiBlobAdapter struct {
	fakeAdapter
	blobIDs []string
}

func (m *multiBlobAdapter) GetPost(ctx context.Context, id model.RequestID) (model.Post, error) {
	atomic.AddInt64(&m.getPostN, 1)
	blobs := make([]model.Blob, len(m.blobIDs))
	for i, blobID := range m.blobIDs {
		blobs[i] = model.Blob{
			ID:   model.BlobID{Value: blobID},
			Reps: []model.Representation{{Kind: model.KindImageJpeg, DownloadURL: "https://example.test/" + blobID + ".jpg", SizeHint: model.MaxBytes(1000)}},
		}
	}
	return model.Post{ID: model.PostID{Platform: m.platformTag, Value: id.Value}, Blobs: blobs}, nil
}

func TestResolvePreservesPostBlobOrder(t *testing.T) {
	adapter := &multiBlobAdapter{
		fakeAdapter: fakeAdapter{platformTag: model.PlatformTwitter},
		blobIDs:     []string{"3_1", "3_2", "3_3", "3_4"},
	}
	sender := &fakeSender{}
	c := New(platform.NewRegistry(adapter), &tgupload.Engine{Sender: sender, ChatID: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Start(ctx)

	post, err := c.CachePost(ctx, model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformTwitter, Value: "999"}})

	require.NoError(t, err)
	require.Len(t, post.Blobs, 4)
	for i, want := range adapter.blobIDs {
		assert.Equal(t, want, post.Blobs[i].BlobID.Value)
	}
	assert.EqualValues(t, 4, atomic.LoadInt64(&sender.sendN))
}

// panicAdapter panics on GetPost to exercise the coalescer's recover path.
type panicAdapter struct {
	fakeAdapter
}

func (p *panicAdapter) GetPost(ctx context.Context, id model.RequestID) (model.Post, error) {
	panic("boom")
}

func TestCachePostSurvivesPanicInResolve(t *testing.T) {
	adapter := &panicAdapter{fakeAdapter: fakeAdapter{platformTag: model.PlatformDerpibooru}}
	sender := &fakeSender{}
	c := newTestCoalescer(adapter, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Start(ctx)

	_, err := c.CachePost(ctx, model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformDerpibooru, Value: "1"}})
	require.Error(t, err)

	// The actor loop must still be alive after a panicking resolve.
	_, err = c.CachePost(ctx, model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformDerpibooru, Value: "2"}})
	assert.Error(t, err)
}

func TestStopLetsInFlightResolveFinishAndRejectsQueuedEnvelopes(t *testing.T) {
	adapter := &fakeAdapter{platformTag: model.PlatformDerpibooru, delay: 50 * time.Millisecond}
	sender := &fakeSender{}
	c := newTestCoalescer(adapter, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Start(ctx)

	var wg sync.WaitGroup
	var inFlightErr, queuedErr error
	var inFlightPost, queuedPost model.CachedPost

	wg.Add(1)
	go func() {
		defer wg.Done()
		inFlightPost, inFlightErr = c.CachePost(ctx, model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformDerpibooru, Value: "in-flight"}})
	}()
	// Give the actor a chance to pick up the first envelope and spawn its
	// resolve task before the second one (a distinct request id, so it sits
	// in the inbox rather than coalescing onto the first) is enqueued.
	time.Sleep(5 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		queuedPost, queuedErr = c.CachePost(ctx, model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformDerpibooru, Value: "queued"}})
	}()

	c.Stop()
	wg.Wait()

	assert.NoError(t, inFlightErr, "an already-running resolve must still complete and deliver its real result")
	assert.Equal(t, "tg-handle", inFlightPost.Blobs[0].TgFile.Handle)

	if queuedErr == nil {
		// The actor may have started resolving "queued" before Stop was
		// observed; either outcome is acceptable, but if it succeeded it
		// must be a real result, not a zero value.
		assert.Equal(t, "tg-handle", queuedPost.Blobs[0].TgFile.Handle)
	} else {
		assert.Regexp(t, "shutting down|has stopped", queuedErr.Error())
	}

	// A second Stop call must not block forever or panic.
	c.Stop()

	_, err := c.CachePost(context.Background(), model.ResolveRequest{Request: model.RequestID{Platform: model.PlatformDerpibooru, Value: "after-stop"}})
	assert.Error(t, err)
}
