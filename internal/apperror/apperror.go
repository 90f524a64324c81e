// Package apperror implements this service's error taxonomy: every error
// that escapes a component is tagged with a Kind describing how it should
// be handled (surfaced to the user vs. logged vs. recovered) and carries a
// short opaque id for log cross-reference.
package apperror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/snowpity/postingcache/internal/appid"
)

// Kind classifies an error for propagation-policy purposes.
type Kind string

const (
	// KindUser: unrecognized URL, post has no media. Surfaced as a
	// friendly message; never logged as an error.
	KindUser Kind = "user"
	// KindUpstream: posting-platform or messaging-platform network error
	// after retry exhaustion.
	KindUpstream Kind = "upstream"
	// KindBlobTooBig: content-length exceeded the caller's bound.
	// Non-fatal at the representation level.
	KindBlobTooBig Kind = "blob_too_big"
	// KindUnexpectedMediaKind: the messaging platform returned a media
	// kind that matches none of the expected variants.
	KindUnexpectedMediaKind Kind = "unexpected_media_kind"
	// KindTranscode: ffmpeg/image-resize failure. Fatal for the
	// representation it occurred on.
	KindTranscode Kind = "transcode"
	// KindCacheWrite: persistence write failed after a successful
	// upload. Non-fatal; logged; the upload is still returned.
	KindCacheWrite Kind = "cache_write"
	// KindPanic: a resolve task panicked. Contained by the coalescer.
	KindPanic Kind = "panic"
	// KindInternal: invariant violations and anything else unexpected.
	KindInternal Kind = "internal"
)

// Error is the error type that crosses component boundaries within this
// service. Its Kind is recovered through errors.As (KindOf does this; there
// is no Is method) and it always carries an opaque ID for users to quote in
// bug reports.
type Error struct {
	ID      string
	Kind    Kind
	Message string // user-facing text; only meaningful when Kind == KindUser
	Err     error  // wrapped cause, may be nil for pure user errors
}

// New wraps err under kind, minting a fresh opaque id.
func New(kind Kind, err error) *Error {
	return &Error{ID: appid.New(), Kind: kind, Err: err}
}

// Userf constructs a user-facing error with a friendly message and no
// internal cause — e.g. "that URL isn't from a platform I support".
func Userf(format string, args ...any) *Error {
	return &Error{ID: appid.New(), Kind: KindUser, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (id=%s): %v", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("%s (id=%s)", e.Kind, e.ID)
}

// Unwrap exposes the wrapped cause so errors.Is/As keep working through an
// *Error.
func (e *Error) Unwrap() error { return e.Err }

// IsUser reports whether this error should be treated as user input rather
// than a service fault.
func (e *Error) IsUser() bool { return e.Kind == KindUser }

// Chain renders the full "caused by" chain for display in a user-visible
// error surface.
func Chain(err error) string {
	var parts []string
	for err != nil {
		parts = append(parts, err.Error())
		err = errors.Unwrap(err)
	}
	return strings.Join(parts, "\ncaused by: ")
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to KindInternal otherwise.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
