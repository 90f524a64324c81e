package tgupload

import (
	"strings"
	"unicode"

	"github.com/snowpity/postingcache/internal/posting/model"
)

// sanitizeTag lowercases a tag and maps it into the filename-safe alphabet:
// whitespace becomes '-', ASCII alphanumerics pass through, everything else
// (including non-ASCII letters) becomes '_', keeping every generated name
// within the `[a-z0-9_\-.+]` charset regardless of source-platform tag
// content.
func sanitizeTag(tag string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tag) {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('-')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// joinSegment sanitizes and joins parts with "+", truncating the joined
// result to 100 runes (keeping the first 97 and appending "...") when it
// would otherwise run longer.
func joinSegment(parts []string) string {
	sanitized := make([]string, len(parts))
	for i, p := range parts {
		sanitized[i] = sanitizeTag(p)
	}
	joined := strings.Join(sanitized, "+")

	runes := []rune(joined)
	if len(runes) <= 100 {
		return joined
	}
	return string(runes[:97]) + "..."
}

// FileName builds the short, deterministic, filesystem-safe name a blob is
// uploaded to Telegram under: <platform>-<ratings>-<authors>-<post-id>-
// <blob-id>.<ext>, where each of <ratings> and <authors> is itself a
// "+"-joined list, empty segments are dropped, and the whole name is capped
// at 255 characters.
func FileName(platform model.Platform, post model.Post, blobID model.BlobID, extension string) string {
	var ratingTags []string
	if post.Rating.NSFW {
		ratingTags = post.Rating.Kinds
	}
	ratings := joinSegment(ratingTags)

	authorNames := make([]string, len(post.Authors))
	for i, a := range post.Authors {
		authorNames[i] = a.Name
	}
	authors := joinSegment(authorNames)

	postSegment := sanitizeTag(post.ID.Value)
	blobSegment := ""
	if !blobID.IsUnit() {
		blobSegment = sanitizeTag(blobID.Value)
	}

	segments := []string{string(platform), ratings, authors, postSegment, blobSegment}

	var nonEmpty []string
	for _, s := range segments {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}

	name := strings.Join(nonEmpty, "-") + "." + extension
	return capFileName(name, extension)
}

// capFileName enforces the overall 255-character ceiling without truncating
// into the extension, so the kind detection that depends on it keeps
// working even for a pathologically long author/tag list.
func capFileName(name, extension string) string {
	const max = 255
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	suffix := "." + extension
	keep := max - len(suffix)
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + suffix
}
