package deviantart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const oembedEndpoint = "https://backend.deviantart.com/oembed"

// oembedResponse is the subset of DeviantArt's oEmbed schema this service
// needs. The endpoint emits width/height as either a JSON number or a
// numeric string depending on the deviation — an undocumented inconsistency
// absorbed by numberOrString below.
type oembedResponse struct {
	URL        string `json:"url"`
	AuthorName string `json:"author_name"`
	AuthorURL  string `json:"author_url"`
	Safety     string `json:"safety"`
	Width      uint64 `json:"-"`
	Height     uint64 `json:"-"`
}

// oembedWire is the raw wire shape, kept separate so width/height can be
// decoded from either a JSON number or a JSON string.
type oembedWire struct {
	URL        string          `json:"url"`
	AuthorName string          `json:"author_name"`
	AuthorURL  string          `json:"author_url"`
	Safety     string          `json:"safety"`
	Width      json.RawMessage `json:"width"`
	Height     json.RawMessage `json:"height"`
}

func (a *Adapter) getOembed(ctx context.Context, deviationURL string) (oembedResponse, error) {
	reqURL := oembedEndpoint + "?url=" + url.QueryEscape(deviationURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return oembedResponse{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return oembedResponse{}, fmt.Errorf("fetch oembed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return oembedResponse{}, fmt.Errorf("oembed returned status %d for %s", resp.StatusCode, deviationURL)
	}

	var wire oembedWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return oembedResponse{}, fmt.Errorf("decode oembed response: %w", err)
	}

	width, err := numberOrString(wire.Width)
	if err != nil {
		return oembedResponse{}, fmt.Errorf("oembed width: %w", err)
	}
	height, err := numberOrString(wire.Height)
	if err != nil {
		return oembedResponse{}, fmt.Errorf("oembed height: %w", err)
	}

	return oembedResponse{
		URL:        wire.URL,
		AuthorName: wire.AuthorName,
		AuthorURL:  wire.AuthorURL,
		Safety:     wire.Safety,
		Width:      width,
		Height:     height,
	}, nil
}

// numberOrString decodes a JSON field that DeviantArt's oEmbed endpoint
// sometimes emits as a number and sometimes as a numeric string.
func numberOrString(raw json.RawMessage) (uint64, error) {
	var asNumber uint64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return 0, fmt.Errorf("neither number nor string: %s", raw)
	}
	var parsed uint64
	if _, err := fmt.Sscanf(asString, "%d", &parsed); err != nil {
		return 0, fmt.Errorf("parse %q as integer: %w", asString, err)
	}
	return parsed, nil
}
