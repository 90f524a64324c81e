// Package deviantart implements the platform adapter for DeviantArt.
// DeviantArt is fetched through its public oEmbed endpoint rather than an
// authenticated API, so this adapter is deliberately best-effort: oEmbed
// exposes only one representation per deviation, an author name/url, and a
// loosely-documented "safety" field. The only safety value observed to mean
// mature content is "adult", so that is the one treated as NSFW, with no
// finer rating detail available.
package deviantart

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/snowpity/postingcache/internal/mediacache"
	"github.com/snowpity/postingcache/internal/posting/model"
	"github.com/snowpity/postingcache/internal/posting/platform"
)

var (
	fullPattern      = regexp.MustCompile(`(?:www\.)?deviantart\.com/(.+/)?art/(.+)-(\d+)`)
	deviationPattern = regexp.MustCompile(`deviantart\.com/deviation/(\d+)`)
	viewPattern      = regexp.MustCompile(`view\.deviantart\.com/(\d+)`)
)

// Adapter implements platform.Adapter for DeviantArt. There is no cache db
// dependency beyond CacheBacked: DeviantArt deviations resolve to exactly
// one blob with the unit BlobID, same as the Philomena-family boorus.
type Adapter struct {
	platform.CacheBacked
	http *http.Client
}

// New constructs the DeviantArt adapter.
func New(httpClient *http.Client, store *mediacache.Store) *Adapter {
	return &Adapter{CacheBacked: platform.CacheBacked{Store: store}, http: httpClient}
}

// Platform returns model.PlatformDeviantArt.
func (a *Adapter) Platform() model.Platform { return model.PlatformDeviantArt }

// ParseQuery recognizes the three URL shapes DeviantArt deviations appear
// in: canonical author/art/id, the abbreviated art/id form, and the two
// numeric-id-only forms (deviation/ID and the legacy view.deviantart.com
// host). The matched RequestID value encodes just enough of the original
// URL shape to rebuild a canonical oEmbed-compatible URL later.
func (a *Adapter) ParseQuery(input string) (model.RequestID, bool) {
	if m := fullPattern.FindStringSubmatch(input); m != nil {
		author := strings.TrimSuffix(m[1], "/")
		art := m[2]
		id := m[3]
		if author == "" {
			return model.RequestID{Platform: model.PlatformDeviantArt, Value: "artandid:" + art + ":" + id}, true
		}
		return model.RequestID{Platform: model.PlatformDeviantArt, Value: "full:" + author + ":" + art + ":" + id}, true
	}
	if m := deviationPattern.FindStringSubmatch(input); m != nil {
		return model.RequestID{Platform: model.PlatformDeviantArt, Value: "id:" + m[1]}, true
	}
	if m := viewPattern.FindStringSubmatch(input); m != nil {
		return model.RequestID{Platform: model.PlatformDeviantArt, Value: "id:" + m[1]}, true
	}
	return model.RequestID{}, false
}

// canonicalURL rebuilds the deviantart.com URL shape the oEmbed endpoint
// expects, decoding the RequestID.Value encoding ParseQuery produced.
func canonicalURL(value string) (url, numericID string, err error) {
	parts := strings.SplitN(value, ":", 4)
	switch parts[0] {
	case "full":
		if len(parts) != 4 {
			return "", "", fmt.Errorf("deviantart: malformed request id %q", value)
		}
		author, art, id := parts[1], parts[2], parts[3]
		return fmt.Sprintf("https://www.deviantart.com/%s/art/%s-%s", author, art, id), id, nil
	case "artandid":
		if len(parts) != 3 {
			return "", "", fmt.Errorf("deviantart: malformed request id %q", value)
		}
		art, id := parts[1], parts[2]
		return fmt.Sprintf("https://www.deviantart.com/art/%s-%s", art, id), id, nil
	case "id":
		if len(parts) != 2 {
			return "", "", fmt.Errorf("deviantart: malformed request id %q", value)
		}
		id := parts[1]
		return fmt.Sprintf("https://www.deviantart.com/deviation/%s", id), id, nil
	default:
		return "", "", fmt.Errorf("deviantart: unrecognized request id shape %q", value)
	}
}

// GetPost fetches oEmbed metadata for the deviation and normalizes it to a
// single-blob, single-representation Post.
func (a *Adapter) GetPost(ctx context.Context, id model.RequestID) (model.Post, error) {
	url, numericID, err := canonicalURL(id.Value)
	if err != nil {
		return model.Post{}, err
	}

	oembed, err := a.getOembed(ctx, url)
	if err != nil {
		return model.Post{}, fmt.Errorf("deviantart: %w", err)
	}

	dims := model.Dimensions{Width: oembed.Width, Height: oembed.Height}
	rep := model.Representation{
		Kind:        oembedRepresentationKind(oembed),
		Dimensions:  &dims,
		SizeHint:    model.UnknownSize(),
		DownloadURL: oembed.URL,
	}

	return model.Post{
		ID:      model.PostID{Platform: model.PlatformDeviantArt, Value: id.Value},
		Authors: []model.Author{{Name: oembed.AuthorName, WebURL: oembed.AuthorURL}},
		WebURL:  fmt.Sprintf("https://www.deviantart.com/deviation/%s", numericID),
		Rating:  safetyRatingFor(oembed.Safety),
		Blobs: []model.Blob{{
			ID:   model.BlobID{},
			Reps: []model.Representation{rep},
		}},
	}, nil
}

// oembedRepresentationKind guesses the representation kind from the
// embedded media URL's extension: oEmbed's own "imagetype" field is
// unreliable (sometimes empty even for known jpg/png/gif responses), so the
// file extension is the more trustworthy signal.
func oembedRepresentationKind(o oembedResponse) model.RepresentationKind {
	switch {
	case strings.HasSuffix(o.URL, ".png"):
		return model.KindImagePng
	case strings.HasSuffix(o.URL, ".gif"):
		return model.KindAnimationGif
	case strings.HasSuffix(o.URL, ".webm"):
		return model.KindVideoWebm
	default:
		return model.KindImageJpeg
	}
}

func safetyRatingFor(safety string) model.SafetyRating {
	if safety == "adult" {
		return model.Nsfw()
	}
	return model.Sfw()
}
