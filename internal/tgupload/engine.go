// Package tgupload implements the upload strategy engine: given a Post and
// one of its Blobs, it picks among the blob's candidate Representations and
// uploads the best-fitting one to the cache channel, returning the
// resulting TgFile. The decision tree per representation is direct URL
// first, download-and-recheck-size second, document fallback last; the
// outer loop walks a blob's representations in preference order, so a
// platform can offer a ready-made mp4 alongside a raw gif/webm fallback
// (or, for Twibooru, only the raw fallback to be transcoded locally).
package tgupload

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/snowpity/postingcache/internal/logging"
	"github.com/snowpity/postingcache/internal/posting/model"
	"github.com/snowpity/postingcache/internal/transcode"
)

// Engine holds the dependencies the strategy tree needs: an HTTP client for
// blob downloads, a Sender for the actual Telegram upload call, the cache
// channel id, and the ffmpeg location for local transcodes.
type Engine struct {
	HTTP      *http.Client
	Sender    Sender
	ChatID    int64
	Transcode transcode.Options
}

// Upload tries each of blob's representations in order and returns the
// first one that uploads successfully. An error is returned only once every
// representation has failed.
func (e *Engine) Upload(ctx context.Context, post model.Post, blob model.Blob, requestedBy model.User) (model.CachedBlob, error) {
	var lastErr error
	for _, rep := range blob.Reps {
		file, err := e.uploadRepresentation(ctx, post, blob.ID, rep, requestedBy)
		if err == nil {
			return model.CachedBlob{BlobID: blob.ID, TgFile: file}, nil
		}
		logging.Warnf("representation %s for blob %s failed: %v", rep.Kind, blob.ID.Value, err)
		lastErr = err
	}
	return model.CachedBlob{}, fmt.Errorf("every representation failed for blob %s: %w", blob.ID.Value, lastErr)
}

func (e *Engine) uploadRepresentation(ctx context.Context, post model.Post, blobID model.BlobID, rep model.Representation, requestedBy model.User) (model.TgFile, error) {
	switch rep.Kind {
	case model.KindImageJpeg, model.KindImagePng, model.KindImageSvg:
		return e.uploadImage(ctx, post, blobID, rep, requestedBy)
	case model.KindAnimationMp4:
		return e.uploadMp4(ctx, post, blobID, rep, requestedBy, model.TgFileMpeg4Gif)
	case model.KindVideoMp4:
		return e.uploadMp4(ctx, post, blobID, rep, requestedBy, model.TgFileVideo)
	case model.KindAnimationGif:
		return e.uploadTranscoded(ctx, post, blobID, rep, requestedBy, model.TgFileMpeg4Gif, transcode.GIFToMP4)
	case model.KindVideoWebm:
		return e.uploadTranscoded(ctx, post, blobID, rep, requestedBy, model.TgFileVideo, transcode.WebMToMP4)
	default:
		return model.TgFile{}, fmt.Errorf("unsupported representation kind %q", rep.Kind)
	}
}

// uploadImage uses documents instead of photos when the aspect ratio or
// combined side length would make Telegram reject (or badly compress) the
// photo.
func (e *Engine) uploadImage(ctx context.Context, post model.Post, blobID model.BlobID, rep model.Representation, requestedBy model.User) (model.TgFile, error) {
	if rep.Dimensions != nil {
		dim := *rep.Dimensions
		// An aspect ratio this extreme can't be fixed by scaling, since
		// scaling preserves it; only the combined-side overage is
		// recoverable by shrinking the image first.
		if dim.AspectRatio() > 20.0 {
			return e.uploadDocument(ctx, post, blobID, rep, requestedBy, nil)
		}
		if dim.SumSides() > 10000 {
			if file, err := e.uploadResized(ctx, post, blobID, rep, requestedBy); err == nil {
				return file, nil
			}
			return e.uploadDocument(ctx, post, blobID, rep, requestedBy, nil)
		}
	}

	approxMax := approxMaxUpper(rep.SizeHint)

	if approxMax <= MaxDirectURLPhotoSize {
		if file, err := e.tryUpload(ctx, post, blobID, rep, requestedBy, model.TgFilePhoto, InputFile{URL: rep.DownloadURL, FileName: e.fileName(post, blobID, rep)}, UploadMethodDirectURL); err == nil {
			return file, nil
		}
	}

	var dl *downloaded
	if approxMax <= MaxPhotoSize {
		d, err := e.download(ctx, rep.DownloadURL, MaxDownloadSize)
		if err != nil {
			return model.TgFile{}, err
		}
		dl = &d
		if d.Size < MaxPhotoSize {
			if file, err := e.tryUpload(ctx, post, blobID, rep, requestedBy, model.TgFilePhoto, InputFile{Data: d.Data, FileName: e.fileName(post, blobID, rep)}, UploadMethodDownloaded); err == nil {
				return file, nil
			}
		}
	}

	return e.uploadDocument(ctx, post, blobID, rep, requestedBy, dl)
}

// maxResizedSide bounds each side after a combined-side-overage resize.
const maxResizedSide = 2560

// uploadResized downloads an image whose combined side length exceeds
// Telegram's photo ceiling, shrinks it with transcode.ResizeImage, and
// uploads the result as a photo. Representation kinds ResizeImage can't
// decode (svg) fail fast so the caller falls back to a document upload.
func (e *Engine) uploadResized(ctx context.Context, post model.Post, blobID model.BlobID, rep model.Representation, requestedBy model.User) (model.TgFile, error) {
	format := imageFormat(rep.Kind)
	if format == "" {
		return model.TgFile{}, fmt.Errorf("cannot resize representation kind %s", rep.Kind)
	}

	d, err := e.download(ctx, rep.DownloadURL, MaxDownloadSize)
	if err != nil {
		return model.TgFile{}, err
	}

	resized, err := transcode.ResizeImage(d.Data, format, maxResizedSide)
	if err != nil {
		return model.TgFile{}, fmt.Errorf("resize oversized image: %w", err)
	}
	if err := (downloaded{Data: resized, Size: uint64(len(resized))}).tooBig(MaxPhotoSize); err != nil {
		return model.TgFile{}, err
	}

	return e.tryUpload(ctx, post, blobID, rep, requestedBy, model.TgFilePhoto, InputFile{Data: resized, FileName: e.fileName(post, blobID, rep)}, UploadMethodDownloaded)
}

func imageFormat(kind model.RepresentationKind) string {
	switch kind {
	case model.KindImageJpeg:
		return "jpeg"
	case model.KindImagePng:
		return "png"
	default:
		return ""
	}
}

func (e *Engine) uploadDocument(ctx context.Context, post model.Post, blobID model.BlobID, rep model.Representation, requestedBy model.User, already *downloaded) (model.TgFile, error) {
	approxMax := approxMaxUpper(rep.SizeHint)

	if already == nil && approxMax <= MaxDirectURLFileSize {
		if file, err := e.tryUpload(ctx, post, blobID, rep, requestedBy, model.TgFileDocument, InputFile{URL: rep.DownloadURL, FileName: e.fileName(post, blobID, rep)}, UploadMethodDirectURL); err == nil {
			return file, nil
		}
	}

	d := already
	if d == nil {
		downloaded, err := e.download(ctx, rep.DownloadURL, MaxDownloadSize)
		if err != nil {
			return model.TgFile{}, err
		}
		d = &downloaded
	}
	if err := d.tooBig(MaxFileSize); err != nil {
		return model.TgFile{}, err
	}

	return e.tryUpload(ctx, post, blobID, rep, requestedBy, model.TgFileDocument, InputFile{Data: d.Data, FileName: e.fileName(post, blobID, rep)}, UploadMethodDownloaded)
}

// uploadMp4 tries a direct-URL upload first whenever the size hint allows,
// then falls back to download-and-verify. There is no document fallback:
// Telegram needs a real video/animation mime to register mp4 uploads as
// such.
func (e *Engine) uploadMp4(ctx context.Context, post model.Post, blobID model.BlobID, rep model.Representation, requestedBy model.User, tgKind model.TgFileKind) (model.TgFile, error) {
	approxMax := approxMaxUpper(rep.SizeHint)

	if approxMax <= MaxDirectURLFileSize {
		if file, err := e.tryUpload(ctx, post, blobID, rep, requestedBy, tgKind, InputFile{URL: rep.DownloadURL, FileName: e.fileName(post, blobID, rep)}, UploadMethodDirectURL); err == nil {
			return file, nil
		}
	}

	d, err := e.download(ctx, rep.DownloadURL, MaxFileSize)
	if err != nil {
		return model.TgFile{}, err
	}

	return e.tryUpload(ctx, post, blobID, rep, requestedBy, tgKind, InputFile{Data: d.Data, FileName: e.fileName(post, blobID, rep)}, UploadMethodDownloaded)
}

type transcodeFunc func(ctx context.Context, opts transcode.Options, inputPath string) (outputPath string, cleanup func(), err error)

// uploadTranscoded downloads a raw gif/webm representation, runs it through
// ffmpeg locally, and uploads the resulting mp4 — the path taken for
// platforms that don't hand back a ready-made mp4 URL.
func (e *Engine) uploadTranscoded(ctx context.Context, post model.Post, blobID model.BlobID, rep model.Representation, requestedBy model.User, tgKind model.TgFileKind, transcodeFn transcodeFunc) (model.TgFile, error) {
	d, err := e.download(ctx, rep.DownloadURL, MaxDownloadSize)
	if err != nil {
		return model.TgFile{}, err
	}

	inputPath, cleanupInput, err := transcode.WriteTempFile(d.Data, inputExtension(rep))
	if err != nil {
		return model.TgFile{}, fmt.Errorf("stage input for transcode: %w", err)
	}
	defer cleanupInput()

	outputPath, cleanupOutput, err := transcodeFn(ctx, e.Transcode, inputPath)
	if err != nil {
		return model.TgFile{}, fmt.Errorf("transcode: %w", err)
	}
	defer cleanupOutput()

	mp4, err := os.ReadFile(outputPath)
	if err != nil {
		return model.TgFile{}, fmt.Errorf("read transcoded output: %w", err)
	}

	transcodedRep := rep
	transcodedRep.Kind = model.KindVideoMp4
	if tgKind == model.TgFileMpeg4Gif {
		transcodedRep.Kind = model.KindAnimationMp4
	}

	if err := (downloaded{Data: mp4, Size: uint64(len(mp4))}).tooBig(MaxFileSize); err != nil {
		return model.TgFile{}, err
	}

	return e.tryUpload(ctx, post, blobID, transcodedRep, requestedBy, tgKind, InputFile{Data: mp4, FileName: e.fileName(post, blobID, transcodedRep)}, UploadMethodDownloaded)
}

func (e *Engine) tryUpload(ctx context.Context, post model.Post, blobID model.BlobID, rep model.Representation, requestedBy model.User, tgKind model.TgFileKind, file InputFile, method UploadMethod) (model.TgFile, error) {
	caption := Caption(post, requestedBy, tgKind, method)
	tgFile, err := e.Sender.Send(ctx, e.ChatID, tgKind, file, caption)
	if err != nil {
		return model.TgFile{}, fmt.Errorf("send %s blob %s: %w", tgKind, blobID.Value, err)
	}
	return tgFile, nil
}

func (e *Engine) download(ctx context.Context, url string, maxBytes uint64) (downloaded, error) {
	return downloadBlob(ctx, e.HTTP, url, maxBytes)
}

func (e *Engine) fileName(post model.Post, blobID model.BlobID, rep model.Representation) string {
	ext := rep.Kind.FileExtension()
	if ext == "bin" {
		if fromURL := extensionFromURL(rep.DownloadURL); fromURL != "" {
			ext = fromURL
		}
	}
	return FileName(post.ID.Platform, post, blobID, ext)
}

func extensionFromURL(rawURL string) string {
	base := path.Base(rawURL)
	if i := strings.LastIndexByte(base, '.'); i >= 0 && i < len(base)-1 {
		return base[i+1:]
	}
	return ""
}

func inputExtension(rep model.Representation) string {
	if rep.Kind == model.KindVideoWebm {
		return ".webm"
	}
	return ".gif"
}

// approxMaxUpper returns the size hint's upper bound for branch selection.
// An unknown hint selects the optimistic branch: the cheap direct-URL
// attempt runs first, and the messaging platform's own rejection drives
// the engine down to the download-and-verify path. Optimism never bypasses
// a bound — actual content length is still checked before any body read.
func approxMaxUpper(hint model.SizeHint) uint64 {
	if bytes, known := hint.ApproxMax(); known {
		return bytes
	}
	return 0
}
