// Package transcode runs ffmpeg as a child process to convert animated
// media into the mp4 shape Telegram prefers. WebMToMP4 shares the GIF
// pipeline's invocation minus the "-f gif" input-format override, since
// ffmpeg already autodetects webm containers; it exists for platforms that
// expose a raw webm representation with no server-side mp4 twin (see
// internal/posting/derpibooru's Twibooru quirk).
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/snowpity/postingcache/internal/logging"
)

// Options configures the ffmpeg binary location. The zero value uses
// "ffmpeg" off $PATH.
type Options struct {
	FfmpegPath string
}

func (o Options) ffmpegPath() string {
	if o.FfmpegPath == "" {
		return "ffmpeg"
	}
	return o.FfmpegPath
}

// scopedTempFile picks a uniquely-named path under the OS temp directory
// (it does not create the file; whoever writes the path does) and returns
// that path plus a cleanup func, so every transcode call site
// gets RAII-style cleanup via `defer cleanup()` instead of hand-rolled
// os.Remove calls scattered through the engine.
func scopedTempFile(ext string) (path string, cleanup func(), err error) {
	name := fmt.Sprintf("postingcache-%s%s", uuid.NewString(), ext)
	path = filepath.Join(os.TempDir(), name)
	return path, func() { _ = os.Remove(path) }, nil
}

// GIFToMP4 transcodes a GIF file at inputPath into a soundless H.264 mp4,
// preserving the original frame rate. The caller owns the returned path and
// must remove it; use the returned cleanup func via defer.
func GIFToMP4(ctx context.Context, opts Options, inputPath string) (outputPath string, cleanup func(), err error) {
	outputPath, cleanup, err = scopedTempFile(".mp4")
	if err != nil {
		return "", nil, err
	}

	args := []string{
		"-y",
		"-f", "gif",
		"-i", inputPath,
		"-fps_mode", "passthrough",
		"-vf", "scale=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264",
		"-preset", "faster",
		"-pix_fmt", "yuv420p",
		"-crf", "23",
		"-movflags", "+faststart",
		"-an",
		outputPath,
	}

	if err := run(ctx, opts.ffmpegPath(), args); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("gif to mp4: %w", err)
	}
	return outputPath, cleanup, nil
}

// WebMToMP4 transcodes a WebM file at inputPath into an H.264 mp4 with
// audio dropped, used when a posting platform exposes only a raw webm
// representation (no server-side mp4 twin).
func WebMToMP4(ctx context.Context, opts Options, inputPath string) (outputPath string, cleanup func(), err error) {
	outputPath, cleanup, err = scopedTempFile(".mp4")
	if err != nil {
		return "", nil, err
	}

	args := []string{
		"-y",
		"-i", inputPath,
		"-fps_mode", "passthrough",
		"-vf", "scale=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264",
		"-preset", "faster",
		"-pix_fmt", "yuv420p",
		"-crf", "23",
		"-movflags", "+faststart",
		"-an",
		outputPath,
	}

	if err := run(ctx, opts.ffmpegPath(), args); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("webm to mp4: %w", err)
	}
	return outputPath, cleanup, nil
}

// WriteTempFile stages data in a uniquely-named temp file with the given
// extension, for callers (like the upload engine) that need a filesystem
// path to hand to ffmpeg. The returned cleanup removes it.
func WriteTempFile(data []byte, ext string) (path string, cleanup func(), err error) {
	path, cleanup, err = scopedTempFile(ext)
	if err != nil {
		return "", nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	return path, cleanup, nil
}

func run(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.Debugf("running %s %v", name, args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, stderr.String())
	}
	return nil
}
