package derpibooru

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

// safetyRatingTags is the closed set of rating tags Philomena sites use.
var safetyRatingTags = map[string]bool{
	"safe":          true,
	"suggestive":    true,
	"questionable":  true,
	"explicit":      true,
	"semi-grimdark": true,
	"grimdark":      true,
	"grotesque":     true,
}

// Predefined sites. DerpibooruSite is the canonical instance; Ponerpics and
// Twibooru are community forks of the same Philomena software.
var (
	DerpibooruSite = Site{
		Name:               "derpibooru",
		APIBase:            "https://derpibooru.org/api/v1/json",
		WebBase:            "https://derpibooru.org",
		CDNHosts:           []string{"derpicdn.net/img"},
		SupportsMp4Variant: true,
	}
	PonerpicsSite = Site{
		Name:               "ponerpics",
		APIBase:            "https://ponerpics.org/api/v1/json",
		WebBase:            "https://ponerpics.org",
		CDNHosts:           []string{"cdn.ponerpics.org/img"},
		SupportsMp4Variant: true,
	}
	TwibooruSite = Site{
		Name:               "twibooru",
		APIBase:            "https://twibooru.org/api/v1/json",
		WebBase:            "https://twibooru.org",
		CDNHosts:           []string{"cdn.twibooru.org/img"},
		// Twibooru has never enabled the gif/webm-to-mp4 transcode path
		// that Philomena added upstream, so this adapter must not assume a
		// ".mp4" sibling exists for its animations.
		SupportsMp4Variant: false,
	}
)

// Adapter implements platform.Adapter for one Philomena-family site.
type Adapter struct {
	platform.CacheBacked
	site   Site
	client *client
}

// New constructs the adapter for site, backed by store for the cache
// lookups and httpClient for JSON API calls.
func New(site Site, httpClient *http.Client, store *mediacache.Store) *Adapter {
	return &Adapter{
		CacheBacked: platform.CacheBacked{Store: store},
		site:        site,
		client:      newClient(site, httpClient),
	}
}

// Platform returns this site's platform tag.
func (a *Adapter) Platform() model.Platform { return model.Platform(a.site.Name) }

func (a *Adapter) hostPatterns() []*regexp.Regexp {
	webHost := strings.TrimPrefix(strings.TrimPrefix(a.site.WebBase, "https://"), "http://")
	patterns := []string{
		regexp.QuoteMeta(webHost) + `(?:/images)?/(\d+)`,
	}
	for _, cdn := range a.site.CDNHosts {
		patterns = append(patterns,
			regexp.QuoteMeta(cdn)+`/\d+/\d+/\d+/(\d+)`,
			regexp.QuoteMeta(cdn)+`/(?:view|download)/\d+/\d+/\d+/(\d+)`,
		)
	}
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// ParseQuery recognizes a bare media id on the web host, or any of the CDN
// mirror URL shapes Philomena serves raw media from.
func (a *Adapter) ParseQuery(input string) (model.RequestID, bool) {
	for _, re := range a.hostPatterns() {
		m := re.FindStringSubmatch(input)
		if m != nil {
			return model.RequestID{Platform: a.Platform(), Value: m[1]}, true
		}
	}
	return model.RequestID{}, false
}

// GetPost fetches media metadata and normalizes it to model.Post with a
// single blob carrying the site's best Telegram-facing representations.
func (a *Adapter) GetPost(ctx context.Context, id model.RequestID) (model.Post, error) {
	m, err := a.client.getMedia(ctx, id.Value)
	if err != nil {
		return model.Post{}, fmt.Errorf("%s: %w", a.site.Name, err)
	}

	authors := parseAuthors(m.Tags, a.site.WebBase)
	rating := parseSafetyRating(m.Tags)

	dims := model.Dimensions{Width: m.Width, Height: m.Height}
	reps, err := a.bestTgReprs(m, dims)
	if err != nil {
		return model.Post{}, err
	}

	postID := model.PostID{Platform: a.Platform(), Value: id.Value}
	return model.Post{
		ID:      postID,
		Authors: authors,
		WebURL:  fmt.Sprintf("%s/images/%s", a.site.WebBase, id.Value),
		Rating:  rating,
		Blobs: []model.Blob{{
			ID:   model.BlobID{},
			Reps: reps,
		}},
	}, nil
}

// bestTgReprs picks the preference-ordered representation list for one
// media item: images upload as-is, gifs/webms upload as their mp4 transcode
// (when the site offers one), with the gif also offering its native
// animation/gif as a fallback representation in case the mp4 twin is
// missing server-side.
func (a *Adapter) bestTgReprs(m media, dims model.Dimensions) ([]model.Representation, error) {
	switch m.MimeType {
	case mimeImageJpeg:
		return []model.Representation{image(m.ViewURL, model.KindImageJpeg, dims)}, nil
	case mimeImagePng:
		return []model.Representation{image(m.ViewURL, model.KindImagePng, dims)}, nil
	case mimeImageSvgXML:
		return []model.Representation{image(m.ViewURL, model.KindImageSvg, dims)}, nil
	case mimeImageGif:
		if !a.site.SupportsMp4Variant {
			return []model.Representation{image(m.ViewURL, model.KindAnimationGif, dims)}, nil
		}
		return []model.Representation{
			image(m.unwrapMp4URL(), model.KindAnimationMp4, dims),
			image(m.ViewURL, model.KindAnimationGif, dims),
		}, nil
	case mimeVideoWebm:
		if !a.site.SupportsMp4Variant {
			return []model.Representation{image(m.ViewURL, model.KindVideoWebm, dims)}, nil
		}
		return []model.Representation{image(m.unwrapMp4URL(), model.KindVideoMp4, dims)}, nil
	case mimeVideoMp4:
		return []model.Representation{image(m.ViewURL, model.KindVideoMp4, dims)}, nil
	default:
		return nil, fmt.Errorf("%s: unrecognized mime type %q for media %d", a.site.Name, m.MimeType, m.ID)
	}
}

func image(url string, kind model.RepresentationKind, dims model.Dimensions) model.Representation {
	return model.Representation{
		Kind:       kind,
		Dimensions: &dims,
		// Image sizes are roughly accurate but not exact, and the
		// transcoded mp4's size is unknown until downloaded; neither is
		// worth trusting as a hard bound.
		SizeHint:    model.UnknownSize(),
		DownloadURL: url,
	}
}

func parseAuthors(tags []string, webBase string) []model.Author {
	var authors []model.Author
	for _, tag := range tags {
		prefix, name, ok := strings.Cut(tag, ":")
		if !ok {
			continue
		}
		var kind model.AuthorKind
		switch prefix {
		case "artist":
			kind = model.AuthorKindArtist
		case "editor":
			kind = model.AuthorKindEditor
		case "prompter":
			kind = model.AuthorKindPrompter
		default:
			continue
		}
		authors = append(authors, model.Author{
			Name:   name,
			WebURL: fmt.Sprintf("%s/search?q=%s", webBase, strings.ReplaceAll(tag, " ", "+")),
			Kind:   kind,
		})
	}
	return authors
}

func parseSafetyRating(tags []string) model.SafetyRating {
	var kinds []string
	for _, tag := range tags {
		if safetyRatingTags[tag] {
			kinds = append(kinds, tag)
		}
	}
	if len(kinds) == 1 && kinds[0] == "safe" {
		return model.Sfw()
	}
	return model.Nsfw(kinds...)
}
