package tgupload

import (
	"context"

	"github.com/snowpity/postingcache/internal/posting/model"
)

// Telegram's size ceilings in bytes. Direct-URL uploads (where Telegram
// fetches the file itself) have lower limits than multipart uploads;
// MaxDownloadSize is this service's own refusal point for anything it
// would have to pull into memory.
const (
	MaxDirectURLPhotoSize = 5 * 1024 * 1024
	MaxPhotoSize          = 10 * 1024 * 1024
	MaxDirectURLFileSize  = 20 * 1024 * 1024
	MaxFileSize           = 50 * 1024 * 1024
	MaxDownloadSize       = 200 * 1024 * 1024
)

// UploadMethod distinguishes a direct-URL upload (Telegram fetches the file
// itself) from one where this service downloaded the bytes first.
type UploadMethod int

const (
	UploadMethodDirectURL UploadMethod = iota
	UploadMethodDownloaded
)

// InputFile is what gets handed to the messaging platform: either a URL for
// Telegram to fetch itself, or raw bytes this service already downloaded.
type InputFile struct {
	URL      string
	Data     []byte
	FileName string
}

// Sender is the messaging-platform capability this engine needs: send one
// file of a given Telegram media kind to the cache channel and report back
// which kind and file handle it actually landed as. internal/telegram
// implements this over go-telegram-bot-api.
type Sender interface {
	Send(ctx context.Context, chatID int64, kind model.TgFileKind, file InputFile, caption string) (model.TgFile, error)
}
