package tgupload

import (
	"fmt"
	"strings"

	"github.com/snowpity/postingcache/internal/posting/model"
)

// MarkdownEscape escapes the MarkdownV2 special characters Telegram
// requires around literal text. Exported so other callers building
// MarkdownV2 text (the inline-query error surface) share the same escaping
// rule.
func MarkdownEscape(s string) string {
	const special = "_*[]()~`>#+-=|{}.!\\"
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func markdownLink(url, text string) string {
	return fmt.Sprintf("[%s](%s)", text, url)
}

// PostCaption builds the bold, MarkdownV2-formatted metadata line shown
// with a post wherever it surfaces: a "Source (platform)" link, the
// credited authors, and any NSFW rating tags. Inline query results carry
// exactly this line; fresh uploads append the requester/upload suffix via
// Caption.
func PostCaption(post model.Post) string {
	var authorLinks []string
	for _, a := range post.Authors {
		authorLinks = append(authorLinks, markdownLink(a.WebURL, MarkdownEscape(a.Name)))
	}
	authorsPart := ""
	if len(authorLinks) > 0 {
		authorsPart = " by " + strings.Join(authorLinks, ", ")
	}

	ratingsPart := ""
	if post.Rating.NSFW && len(post.Rating.Kinds) > 0 {
		ratingsPart = MarkdownEscape(fmt.Sprintf(" (%s)", strings.Join(post.Rating.Kinds, ", ")))
	}

	sourceLink := markdownLink(post.WebURL, MarkdownEscape(fmt.Sprintf("Source (%s)", post.ID.Platform)))

	return fmt.Sprintf("*%s%s%s*", sourceLink, authorsPart, ratingsPart)
}

// Caption builds the caption attached to every freshly-uploaded blob:
// the post metadata line plus who requested the upload and how it was
// uploaded.
func Caption(post model.Post, requestedBy model.User, tgFileKind model.TgFileKind, method UploadMethod) string {
	core := PostCaption(post)

	requester := requestedByLink(requestedBy)
	fileKind := strings.ToLower(string(tgFileKind))
	viaMethod := "direct URL"
	if method == UploadMethodDownloaded {
		viaMethod = "downloaded"
	}

	return fmt.Sprintf("%s\n*Requested by: %s\\\nUploaded as %s %s*", core, requester, fileKind, viaMethod)
}

func requestedByLink(u model.User) string {
	name := u.FirstName
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = fmt.Sprintf("user %d", u.ID)
	}
	return markdownLink(fmt.Sprintf("tg://user?id=%d", u.ID), MarkdownEscape(name))
}
