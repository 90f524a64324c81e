// Package twitter implements the platform adapter for Twitter/X. This
// service only ever reads a tweet's media: the adapter calls the Twitter
// API v2 GET /2/tweets endpoint with an app-only bearer token, with no
// user-context OAuth or posting surface involved.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const apiBase = "https://api.twitter.com/2"

type client struct {
	http        *http.Client
	bearerToken string
}

func newClient(httpClient *http.Client, bearerToken string) *client {
	return &client{http: httpClient, bearerToken: bearerToken}
}

type mediaKind string

const (
	mediaKindPhoto       mediaKind = "photo"
	mediaKindAnimatedGif mediaKind = "animated_gif"
	mediaKindVideo       mediaKind = "video"
)

type variant struct {
	BitRate     int    `json:"bit_rate"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

type apiMedia struct {
	MediaKey string    `json:"media_key"`
	Type     mediaKind `json:"type"`
	Width    uint64    `json:"width"`
	Height   uint64    `json:"height"`
	URL      string    `json:"url"`
	Variants []variant `json:"variants"`
}

// bestMp4Variant returns the highest-bitrate mp4 variant. Twitter sometimes
// only lists an m3u8 playlist, in which case there is no usable variant.
func (m apiMedia) bestMp4Variant() (variant, bool) {
	var best variant
	found := false
	for _, v := range m.Variants {
		if v.ContentType != "video/mp4" {
			continue
		}
		if !found || v.BitRate > best.BitRate {
			best = v
			found = true
		}
	}
	return best, found
}

type apiUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

func (u apiUser) webURL() string {
	return fmt.Sprintf("https://twitter.com/%s", u.Username)
}

func (u apiUser) tweetURL(tweetID string) string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", u.Username, tweetID)
}

type apiTweet struct {
	ID                string `json:"id"`
	PossiblySensitive bool   `json:"possibly_sensitive"`
}

type tweetIncludes struct {
	Users []apiUser  `json:"users"`
	Media []apiMedia `json:"media"`
}

type getTweetResponse struct {
	Data     apiTweet      `json:"data"`
	Includes tweetIncludes `json:"includes"`
	Errors   []apiError    `json:"errors"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// getTweetResult is the adapter-facing shape after pulling the single
// author out of the includes list.
type getTweetResult struct {
	Author apiUser
	Tweet  apiTweet
	Media  []apiMedia
}

func (c *client) getTweet(ctx context.Context, tweetID string) (getTweetResult, error) {
	url := fmt.Sprintf("%s/tweets/%s?expansions=attachments.media_keys,author_id&media.fields=height,url,width,variants&tweet.fields=possibly_sensitive", apiBase, tweetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return getTweetResult{}, fmt.Errorf("build request: %w", err)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return getTweetResult{}, fmt.Errorf("fetch tweet %s: %w", tweetID, err)
	}
	defer resp.Body.Close()

	var out getTweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return getTweetResult{}, fmt.Errorf("decode tweet %s response: %w", tweetID, err)
	}

	if len(out.Errors) == 1 {
		return getTweetResult{}, fmt.Errorf("twitter: %s: %s", out.Errors[0].Title, out.Errors[0].Detail)
	}
	if len(out.Errors) > 1 {
		return getTweetResult{}, fmt.Errorf("twitter: %d errors, first: %s: %s", len(out.Errors), out.Errors[0].Title, out.Errors[0].Detail)
	}
	if len(out.Includes.Users) == 0 {
		return getTweetResult{}, fmt.Errorf("twitter: no author in response for tweet %s", tweetID)
	}

	return getTweetResult{
		Author: out.Includes.Users[0],
		Tweet:  out.Data,
		Media:  out.Includes.Media,
	}, nil
}
