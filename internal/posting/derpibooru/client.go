// Package derpibooru implements the platform adapter for the Philomena
// family of booru sites (Derpibooru, Ponerpics, Twibooru). One Adapter
// value is constructed per site, parameterized by a Site description, since
// the three boorus share the same JSON API shape and only differ in
// hostnames and one mp4-availability quirk (Twibooru).
package derpibooru

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Site describes one Philomena-family booru instance.
type Site struct {
	// Name is the platform tag this site registers under.
	Name string
	// APIBase is the JSON API root, e.g. "https://derpibooru.org/api/v1/json".
	APIBase string
	// WebBase is the human-facing site root, e.g. "https://derpibooru.org".
	WebBase string
	// CDNHosts are additional hostnames that embed a media id in their path
	// (derpicdn.net-style mirrors) recognized by ParseQuery besides WebBase.
	CDNHosts []string
	// SupportsMp4Variant reports whether this site transcodes gif/webm
	// uploads to an ".mp4" sibling URL. Twibooru does not: its gifs and
	// webms only exist in their original encoding, so the adapter must
	// fall back to uploading the original representation directly instead
	// of assuming a ".mp4" twin exists.
	SupportsMp4Variant bool
}

type client struct {
	site Site
	http *http.Client
}

func newClient(site Site, httpClient *http.Client) *client {
	return &client{site: site, http: httpClient}
}

// mimeType is the `mime_type` field value the Philomena JSON API reports.
type mimeType string

const (
	mimeImageGif    mimeType = "image/gif"
	mimeImageJpeg   mimeType = "image/jpeg"
	mimeImagePng    mimeType = "image/png"
	mimeImageSvgXML mimeType = "image/svg+xml"
	mimeVideoWebm   mimeType = "video/webm"
	mimeVideoMp4    mimeType = "video/mp4"
)

type getImageResponse struct {
	Image media `json:"image"`
}

type media struct {
	ID       uint64   `json:"id"`
	MimeType mimeType `json:"mime_type"`
	Tags     []string `json:"tags"`
	ViewURL  string   `json:"view_url"`
	Width    uint64   `json:"width"`
	Height   uint64   `json:"height"`
}

// unwrapMp4URL derives the ".mp4" sibling of a gif/webm view_url. Panics if
// called on a media item whose extension isn't .gif or .webm — this is an
// internal invariant, not a user-reachable path.
func (m media) unwrapMp4URL() string {
	base := strings.TrimSuffix(m.ViewURL, ".gif")
	base = strings.TrimSuffix(base, ".webm")
	if base == m.ViewURL {
		panic("derpibooru: unwrapMp4URL called on non-gif/webm media")
	}
	return base + ".mp4"
}

func (c *client) getMedia(ctx context.Context, mediaID string) (media, error) {
	url := fmt.Sprintf("%s/images/%s", c.site.APIBase, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return media{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return media{}, fmt.Errorf("fetch %s: %w", c.site.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return media{}, fmt.Errorf("%s returned status %d for media %s", c.site.Name, resp.StatusCode, mediaID)
	}

	var out getImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return media{}, fmt.Errorf("decode %s response: %w", c.site.Name, err)
	}
	return out.Image, nil
}
