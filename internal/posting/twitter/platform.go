package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/snowpity/postingcache/internal/mediacache"
	"github.com/snowpity/postingcache/internal/posting/model"
	"github.com/snowpity/postingcache/internal/posting/platform"
)

// queryPattern matches status URLs on twitter.com, x.com,
// mobile.twitter.com, and the vxtwitter.com/fixvx.com mirror hosts, which
// all share the same /<user>/status/<id> path shape.
var queryPattern = regexp.MustCompile(`((?:mobile\.|vx|fix)?(?:twitter|x)\.com)/[A-Za-z\d_]+/status/(\d+)`)

const (
	maxDirectURLPhotoSize = 5 * 1024 * 1024
	maxDirectURLGifSize   = 15 * 1024 * 1024
)

// Adapter implements platform.Adapter for Twitter/X.
type Adapter struct {
	platform.CacheBacked
	client *client
}

// New constructs the Twitter adapter. bearerToken may be empty; GetPost then
// fails with an upstream auth error on first use rather than at startup.
func New(httpClient *http.Client, bearerToken string, store *mediacache.Store) *Adapter {
	return &Adapter{
		CacheBacked: platform.CacheBacked{Store: store},
		client:      newClient(httpClient, bearerToken),
	}
}

// Platform returns model.PlatformTwitter.
func (a *Adapter) Platform() model.Platform { return model.PlatformTwitter }

// ParseQuery recognizes a tweet status URL on twitter.com/x.com or one of
// their read-only mirror hosts.
func (a *Adapter) ParseQuery(input string) (model.RequestID, bool) {
	m := queryPattern.FindStringSubmatch(input)
	if m == nil {
		return model.RequestID{}, false
	}
	return model.RequestID{Platform: model.PlatformTwitter, Value: m[2]}, true
}

// GetPost fetches the tweet and its attached media, choosing the
// best-fit representation per medium kind.
func (a *Adapter) GetPost(ctx context.Context, id model.RequestID) (model.Post, error) {
	result, err := a.client.getTweet(ctx, id.Value)
	if err != nil {
		return model.Post{}, fmt.Errorf("twitter: %w", err)
	}

	blobs := make([]model.Blob, 0, len(result.Media))
	for _, m := range result.Media {
		rep, err := bestTgRepresentation(m)
		if err != nil {
			return model.Post{}, err
		}
		blobs = append(blobs, model.Blob{
			ID:   model.BlobID{Value: m.MediaKey},
			Reps: []model.Representation{rep},
		})
	}

	return model.Post{
		ID:      model.PostID{Platform: model.PlatformTwitter, Value: id.Value},
		Authors: []model.Author{{Name: result.Author.Name, WebURL: result.Author.webURL()}},
		WebURL:  result.Author.tweetURL(id.Value),
		Rating:  safetyRatingFor(result.Tweet),
		Blobs:   blobs,
	}, nil
}

// origResolutionURL appends Twitter's documented `name=orig` query
// parameter to a photo URL, requesting the original-resolution asset
// instead of whatever default size the API's `url` field points at. If
// rawURL fails to parse (shouldn't happen for a Twitter-issued URL), it is
// returned unchanged rather than dropping the representation entirely.
func origResolutionURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("name", "orig")
	u.RawQuery = q.Encode()
	return u.String()
}

func safetyRatingFor(t apiTweet) model.SafetyRating {
	if t.PossiblySensitive {
		return model.Nsfw()
	}
	return model.Sfw()
}

// bestTgRepresentation picks the single representation for one media item,
// with Twitter's documented per-kind byte ceilings as the size hint. The
// dimensions reported by the API belong to Twitter's "large" photo size,
// not the exact upload; this is still a reliable enough aspect-ratio hint
// since Twitter's largest representation (4096x4096) fits comfortably
// within Telegram's own limits.
func bestTgRepresentation(m apiMedia) (model.Representation, error) {
	dims := model.Dimensions{Width: m.Width, Height: m.Height}

	switch m.Type {
	case mediaKindPhoto:
		return model.Representation{
			Kind:        model.KindImageJpeg,
			Dimensions:  &dims,
			SizeHint:    model.MaxBytes(maxDirectURLPhotoSize),
			DownloadURL: origResolutionURL(m.URL),
		}, nil

	case mediaKindAnimatedGif:
		v, ok := m.bestMp4Variant()
		if !ok {
			return model.Representation{}, fmt.Errorf("twitter: media %s is missing an mp4 variant", m.MediaKey)
		}
		return model.Representation{
			Kind:        model.KindAnimationMp4,
			Dimensions:  &dims,
			SizeHint:    model.MaxBytes(maxDirectURLGifSize),
			DownloadURL: v.URL,
		}, nil

	case mediaKindVideo:
		v, ok := m.bestMp4Variant()
		if !ok {
			return model.Representation{}, fmt.Errorf("twitter: media %s is missing an mp4 variant", m.MediaKey)
		}
		// Twitter videos can be up to 512MB with no documented per-kind
		// max, so no size hint is reported; the upload engine re-checks
		// actual content length before committing to a bound.
		return model.Representation{
			Kind:        model.KindVideoMp4,
			Dimensions:  &dims,
			SizeHint:    model.UnknownSize(),
			DownloadURL: v.URL,
		}, nil

	default:
		return model.Representation{}, fmt.Errorf("twitter: unrecognized media type %q for %s", m.Type, m.MediaKey)
	}
}
