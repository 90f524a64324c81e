// Package model defines the platform-agnostic data model shared by every
// posting-platform adapter, the blob cache, the upload strategy engine and
// the request coalescer.
package model

import "fmt"

// Platform tags a posting platform. It is the discriminant that would be a
// sum-type variant in a language with one; here it is a plain comparable
// string so that RequestID/PostID/BlobID stay usable as map keys.
type Platform string

const (
	PlatformDerpibooru Platform = "derpibooru"
	PlatformPonerpics  Platform = "ponerpics"
	PlatformTwibooru   Platform = "twibooru"
	PlatformTwitter    Platform = "twitter"
	PlatformDeviantArt Platform = "deviantart"
)

// RequestID is the unit of coalescing: parsed straight out of the user's
// query, before any network call is made.
type RequestID struct {
	Platform Platform
	Value    string
}

func (r RequestID) String() string { return fmt.Sprintf("%s:%s", r.Platform, r.Value) }

// PostID is the canonical post identity, used to key persistence at the
// post level.
type PostID struct {
	Platform Platform
	Value    string
}

func (p PostID) String() string { return fmt.Sprintf("%s:%s", p.Platform, p.Value) }

// BlobID identifies one blob within a post. For platforms where a request
// resolves to exactly one blob (boorus, DeviantArt) Value is empty.
type BlobID struct {
	Value string
}

// IsUnit reports whether this is the unit blob id used by single-blob
// platforms.
func (b BlobID) IsUnit() bool { return b.Value == "" }

// AuthorKind classifies an author's relationship to a post. The zero value
// means unspecified.
type AuthorKind string

const (
	AuthorKindUnspecified AuthorKind = ""
	AuthorKindArtist      AuthorKind = "artist"
	AuthorKindEditor      AuthorKind = "editor"
	AuthorKindPrompter    AuthorKind = "prompter"
)

// Author is a single credited contributor to a post.
type Author struct {
	Name   string
	WebURL string
	Kind   AuthorKind
}

// SafetyRating is either plain Sfw or Nsfw with a list of rating tags.
type SafetyRating struct {
	NSFW  bool
	Kinds []string
}

// Sfw constructs the safe-for-work rating.
func Sfw() SafetyRating { return SafetyRating{} }

// Nsfw constructs a not-safe-for-work rating carrying the platform's own
// rating tags (e.g. booru tags, or an empty list when the platform only
// exposes a boolean flag).
func Nsfw(kinds ...string) SafetyRating { return SafetyRating{NSFW: true, Kinds: kinds} }

// RepresentationKind enumerates the media encodings a Representation may
// carry. AnimationMp4 is a soundless mp4 sent as an animated-gif-equivalent
// on the messaging side.
type RepresentationKind string

const (
	KindImageJpeg    RepresentationKind = "image/jpeg"
	KindImagePng     RepresentationKind = "image/png"
	KindImageSvg     RepresentationKind = "image/svg"
	KindVideoMp4     RepresentationKind = "video/mp4"
	KindAnimationMp4 RepresentationKind = "animation/mp4"
	KindAnimationGif RepresentationKind = "animation/gif"
	KindVideoWebm    RepresentationKind = "video/webm"
)

// FileExtension returns the extension used for a freshly-uploaded file of
// this kind (post-processing, i.e. after any transcode).
func (k RepresentationKind) FileExtension() string {
	switch k {
	case KindImageJpeg:
		return "jpg"
	case KindImagePng:
		return "png"
	case KindImageSvg:
		return "svg"
	case KindVideoMp4, KindAnimationMp4, KindAnimationGif, KindVideoWebm:
		return "mp4"
	default:
		return "bin"
	}
}

// Dimensions is the pixel width/height of a representation, when known.
type Dimensions struct {
	Width  uint64
	Height uint64
}

// AspectRatio returns width/height. Callers must not invoke this on a zero
// Dimensions.
func (d Dimensions) AspectRatio() float64 {
	if d.Height == 0 {
		return 0
	}
	return float64(d.Width) / float64(d.Height)
}

// SumSides returns width+height, used by the upload engine's combined-side
// check that sends oversized photos through a resize first.
func (d Dimensions) SumSides() uint64 { return d.Width + d.Height }

// SizeHintKind discriminates SizeHint's two states.
type SizeHintKind int

const (
	SizeUnknown SizeHintKind = iota
	SizeMaxBytes
)

// SizeHint is an optimistic upper bound on a blob's size. It is never
// trusted as exact — content-length at download time always overrides it.
type SizeHint struct {
	Kind  SizeHintKind
	Bytes uint64
}

// UnknownSize constructs the "no information" size hint.
func UnknownSize() SizeHint { return SizeHint{Kind: SizeUnknown} }

// MaxBytes constructs a size hint that upper-bounds (but does not
// guarantee) the blob's size.
func MaxBytes(n uint64) SizeHint { return SizeHint{Kind: SizeMaxBytes, Bytes: n} }

// ApproxMax returns the declared upper bound for branch-selection purposes
// and whether one is known at all. Callers decide what an unknown hint
// means for their branch; none of them may treat a known bound as exact.
func (s SizeHint) ApproxMax() (bytes uint64, known bool) {
	if s.Kind == SizeMaxBytes {
		return s.Bytes, true
	}
	return 0, false
}

// Representation is one concrete URL+encoding of a blob.
type Representation struct {
	Kind        RepresentationKind
	Dimensions  *Dimensions // nil when unknown
	SizeHint    SizeHint
	DownloadURL string // always absolute
}

// Blob is a logical media item attached to a post, carrying an ordered,
// non-empty list of representations, preferred first.
type Blob struct {
	ID   BlobID
	Reps []Representation // invariant: len(Reps) > 0
}

// Post is a normalized, platform-agnostic view of one posting-platform
// post.
type Post struct {
	ID      PostID
	Authors []Author
	WebURL  string
	Rating  SafetyRating
	Blobs   []Blob // order preserved for caption/display; may be empty only
	// when the platform guarantees posts may legitimately have no media
}

// TgFileKind is the Telegram media kind a file was actually stored as. It
// may differ from the kind requested at upload time (document fallback).
type TgFileKind string

const (
	TgFilePhoto    TgFileKind = "photo"
	TgFileDocument TgFileKind = "document"
	TgFileVideo    TgFileKind = "video"
	TgFileMpeg4Gif TgFileKind = "mpeg4_gif"
)

// TgFile is a reference to a blob already uploaded to the cache channel.
type TgFile struct {
	Handle string
	Kind   TgFileKind
}

// CachedBlob pairs a BlobID with the TgFile it resolved to.
type CachedBlob struct {
	BlobID BlobID
	TgFile TgFile
}

// User identifies the chat user on whose behalf a request was made.
type User struct {
	ID        int64
	Username  string
	FirstName string
}

// MirrorTag is a display-only alternate hostname a caller used to reach a
// post (e.g. fixvx.com instead of twitter.com). It never changes resolution
// semantics, only caption/display text.
type MirrorTag string

// ResolveRequest is the sole input to the core entry point.
type ResolveRequest struct {
	RequestedBy User
	Request     RequestID
	Mirror      *MirrorTag
}

// CachedPost is the sole output of the core entry point.
type CachedPost struct {
	Base   Post // blobs zeroed out; see Blobs below
	Mirror *MirrorTag
	Blobs  []CachedBlob // same order as Base.Blobs
}
