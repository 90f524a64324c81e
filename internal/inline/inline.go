// Package inline turns a Telegram inline query into a resolved, cached
// post: parse the free-form query text against every registered platform
// adapter, resolve it through the coalescer, and answer with cached-file
// inline results — or, on failure, a single inline result carrying the
// error's full display chain.
package inline

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/snowpity/postingcache/internal/apperror"
	"github.com/snowpity/postingcache/internal/coalescer"
	"github.com/snowpity/postingcache/internal/logging"
	"github.com/snowpity/postingcache/internal/posting/model"
	"github.com/snowpity/postingcache/internal/posting/platform"
	"github.com/snowpity/postingcache/internal/telegram"
	"github.com/snowpity/postingcache/internal/tgupload"
)

// Service answers Telegram inline queries by resolving posts through the
// coalescer and returning cached-file results.
type Service struct {
	registry  *platform.Registry
	coalescer *coalescer.Coalescer
	bot       *telegram.Bot
}

// New constructs the inline query service.
func New(registry *platform.Registry, c *coalescer.Coalescer, bot *telegram.Bot) *Service {
	return &Service{registry: registry, coalescer: c, bot: bot}
}

// HandleQuery parses query.Query against every registered adapter and, on a
// match, resolves and answers it. An unrecognized query is silently
// ignored: Telegram clients send inline queries on every keystroke, so most
// of them aren't meant for this bot.
func (s *Service) HandleQuery(ctx context.Context, query tgbotapi.InlineQuery) error {
	id, queryPlatform, ok := s.registry.ParseQuery(query.Query)
	if !ok {
		return nil
	}

	logging.Infof("inline query from %d matched platform %s", query.From.ID, queryPlatform)

	requestedBy := model.User{
		ID:        query.From.ID,
		Username:  query.From.UserName,
		FirstName: query.From.FirstName,
	}

	post, err := s.coalescer.CachePost(ctx, model.ResolveRequest{
		RequestedBy: requestedBy,
		Request:     id,
	})
	if err != nil {
		logging.Warnf("failed to resolve inline query %q: %v", query.Query, err)
		return s.answerError(query.ID, query.Query, err)
	}

	if len(post.Blobs) == 0 {
		return s.answerError(query.ID, query.Query, apperror.Userf("that post has no media to share"))
	}

	caption := tgupload.PostCaption(post.Base)
	results := make([]interface{}, 0, len(post.Blobs))
	for i, blob := range post.Blobs {
		results = append(results, cachedResult(fmt.Sprintf("%s/%d", id.Value, i), blob, caption))
	}

	return s.bot.AnswerInlineQuery(query.ID, results)
}

// HandleChosenResult is a best-effort hook for usage metrics; it never
// fails the interaction since the upload already succeeded by the time a
// user picks a result.
func (s *Service) HandleChosenResult(result tgbotapi.ChosenInlineResult) {
	_, queryPlatform, ok := s.registry.ParseQuery(result.Query)
	if !ok {
		logging.Debugf("chosen inline result for unrecognized query %q", result.Query)
		return
	}
	logging.Infof("chosen inline result from %d for platform %s", result.From.ID, queryPlatform)
}

// cachedResult builds one inline result entry from an already-uploaded
// file handle, typed by the kind Telegram actually stored the upload as.
func cachedResult(resultID string, blob model.CachedBlob, caption string) interface{} {
	switch blob.TgFile.Kind {
	case model.TgFilePhoto:
		r := tgbotapi.NewInlineQueryResultCachedPhoto(resultID, blob.TgFile.Handle)
		r.Caption = caption
		r.ParseMode = tgbotapi.ModeMarkdownV2
		return r
	case model.TgFileVideo:
		r := tgbotapi.NewInlineQueryResultCachedVideo(resultID, blob.TgFile.Handle, "video")
		r.Caption = caption
		r.ParseMode = tgbotapi.ModeMarkdownV2
		return r
	case model.TgFileMpeg4Gif:
		r := tgbotapi.NewInlineQueryResultCachedMPEG4GIF(resultID, blob.TgFile.Handle)
		r.Caption = caption
		r.ParseMode = tgbotapi.ModeMarkdownV2
		return r
	default:
		r := tgbotapi.NewInlineQueryResultCachedDocument(resultID, "file", blob.TgFile.Handle)
		r.Caption = caption
		r.ParseMode = tgbotapi.ModeMarkdownV2
		return r
	}
}

// errorVideoURL/errorVideoThumbURL are a fixed placeholder clip the bot
// answers failed queries with: an inline query can only answer with typed
// results (no plain text), so a single-result video is the shape every
// error surfaces through.
const (
	errorVideoURL      = "https://user-images.githubusercontent.com/36276403/209671572-9a3eada8-1bf6-4a9c-ac0e-44863f66746a.mp4"
	errorVideoThumbURL = "https://user-images.githubusercontent.com/36276403/209673286-6cc10562-a5e1-4c90-b373-8290abd41fa7.jpg"
)

// answerError surfaces a failed resolve as a single error-video inline
// result. User errors get their friendly message as the title with no
// chain; everything else gets a generic title plus the full error chain so
// the user can quote it in a bug report.
func (s *Service) answerError(queryID, query string, err error) error {
	title := "Something went wrong"
	chain := ""
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.IsUser() {
		title = appErr.Error()
	} else {
		chain = "\n\n" + apperror.Chain(err)
	}

	caption := fmt.Sprintf("*%s*\n\nLink: %s%s", tgupload.MarkdownEscape(title), tgupload.MarkdownEscape(query), tgupload.MarkdownEscape(chain))

	result := tgbotapi.NewInlineQueryResultVideo(queryID, errorVideoURL)
	result.MimeType = "video/mp4"
	result.ThumbURL = errorVideoThumbURL
	result.Title = title
	result.Caption = caption
	result.ParseMode = tgbotapi.ModeMarkdownV2

	return s.bot.AnswerInlineQuery(queryID, []interface{}{result})
}

var _ tgupload.Sender = (*telegram.Bot)(nil)
