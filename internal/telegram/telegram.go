// Package telegram wraps go-telegram-bot-api/telegram-bot-api/v5 with the
// thin surface the rest of this service needs: uploading a blob to the
// cache channel (implementing tgupload.Sender) and answering inline
// queries. Everything else about the Bot API stays behind this seam.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/snowpity/postingcache/internal/logging"
	"github.com/snowpity/postingcache/internal/posting/model"
	"github.com/snowpity/postingcache/internal/tgupload"
)

// Bot wraps a live Telegram bot session.
type Bot struct {
	api *tgbotapi.BotAPI
}

// New logs into Telegram with token and returns the wrapper. Credentials
// are validated at construction time, not lazily on first send.
func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: log in: %w", err)
	}
	return &Bot{api: api}, nil
}

// Send uploads file to chatID as the requested Telegram media kind,
// implementing tgupload.Sender. It reports back the kind Telegram actually
// stored the upload as, which can differ from what was requested (e.g. a
// document fallback).
func (b *Bot) Send(ctx context.Context, chatID int64, kind model.TgFileKind, file tgupload.InputFile, caption string) (model.TgFile, error) {
	data := fileData(file)

	var msg tgbotapi.Message
	var err error

	switch kind {
	case model.TgFilePhoto:
		cfg := tgbotapi.NewPhoto(chatID, data)
		cfg.Caption = caption
		cfg.ParseMode = tgbotapi.ModeMarkdownV2
		msg, err = b.api.Send(cfg)
	case model.TgFileDocument:
		cfg := tgbotapi.NewDocument(chatID, data)
		cfg.Caption = caption
		cfg.ParseMode = tgbotapi.ModeMarkdownV2
		msg, err = b.api.Send(cfg)
	case model.TgFileVideo:
		cfg := tgbotapi.NewVideo(chatID, data)
		cfg.Caption = caption
		cfg.ParseMode = tgbotapi.ModeMarkdownV2
		msg, err = b.api.Send(cfg)
	case model.TgFileMpeg4Gif:
		cfg := tgbotapi.NewAnimation(chatID, data)
		cfg.Caption = caption
		cfg.ParseMode = tgbotapi.ModeMarkdownV2
		msg, err = b.api.Send(cfg)
	default:
		return model.TgFile{}, fmt.Errorf("telegram: unrecognized upload kind %q", kind)
	}

	if err != nil {
		return model.TgFile{}, fmt.Errorf("telegram: send %s: %w", kind, err)
	}

	return findUploadedFile(msg, kind)
}

func fileData(file tgupload.InputFile) tgbotapi.RequestFileData {
	if file.URL != "" {
		return tgbotapi.FileURL(file.URL)
	}
	return tgbotapi.FileBytes{Name: file.FileName, Bytes: file.Data}
}

// findUploadedFile reports the media kind Telegram actually registered the
// message under, which can legitimately differ from the kind requested.
func findUploadedFile(msg tgbotapi.Message, requested model.TgFileKind) (model.TgFile, error) {
	switch {
	case msg.Document != nil:
		return model.TgFile{Handle: msg.Document.FileID, Kind: model.TgFileDocument}, nil
	case len(msg.Photo) > 0:
		return model.TgFile{Handle: msg.Photo[len(msg.Photo)-1].FileID, Kind: model.TgFilePhoto}, nil
	case msg.Video != nil:
		return model.TgFile{Handle: msg.Video.FileID, Kind: model.TgFileVideo}, nil
	case msg.Animation != nil:
		return model.TgFile{Handle: msg.Animation.FileID, Kind: model.TgFileMpeg4Gif}, nil
	default:
		return model.TgFile{}, tgupload.UnexpectedMediaKindError{Expected: string(requested)}
	}
}

// AnswerInlineQuery answers a pending inline query with the given cached
// results (InlineQueryResultCached{Photo,Document,Video,MPEG4GIF}, or the
// plain video result used for error replies), never
// cached client-side longer than Telegram allows since results embed a
// freshly-resolved file handle each time.
func (b *Bot) AnswerInlineQuery(queryID string, results []interface{}) error {
	cfg := tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       results,
		IsPersonal:    false,
		CacheTime:     300,
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("telegram: answer inline query: %w", err)
	}
	return nil
}

// Updates returns the long-poll update channel the serve command reads
// from.
func (b *Bot) Updates(offset int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(offset)
	u.Timeout = 60
	return b.api.GetUpdatesChan(u)
}

// Request exposes the raw bot for any Chattable call the helpers above
// don't cover.
func (b *Bot) Request(c tgbotapi.Chattable) error {
	_, err := b.api.Request(c)
	return err
}

// Self reports the bot's own identity, useful for startup logging.
func (b *Bot) Self() string {
	logging.Debugf("telegram bot authenticated as @%s", b.api.Self.UserName)
	return b.api.Self.UserName
}
