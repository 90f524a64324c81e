package tgupload

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// downloaded is a blob pulled fully into memory, with its true byte size.
// Posting platforms don't always report sizes accurately (derpibooru has
// been seen reporting an image hundreds of KB larger than it really was),
// which is why the engine always verifies size post-download instead of
// trusting a platform's size hint.
type downloaded struct {
	Data []byte
	Size uint64
}

func (d downloaded) tooBig(max uint64) error {
	if d.Size <= max {
		return nil
	}
	return BlobTooBigError{Actual: d.Size, Max: max}
}

// downloadBlob fetches url into memory, refusing anything over maxBytes
// without reading the whole body: the response's Content-Length is checked
// first, then the stream itself is capped at maxBytes+1 bytes read, since a
// lying Content-Length (or none at all) is exactly the failure mode this
// guards against — see downloaded's doc comment.
func downloadBlob(ctx context.Context, httpClient *http.Client, url string, maxBytes uint64) (downloaded, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return downloaded{}, fmt.Errorf("build download request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return downloaded{}, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return downloaded{}, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	if resp.ContentLength >= 0 && uint64(resp.ContentLength) > maxBytes {
		return downloaded{}, BlobTooBigError{Actual: uint64(resp.ContentLength), Max: maxBytes}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+1))
	if err != nil {
		return downloaded{}, fmt.Errorf("read body of %s: %w", url, err)
	}
	if uint64(len(data)) > maxBytes {
		return downloaded{}, BlobTooBigError{Actual: uint64(len(data)), Max: maxBytes}
	}
	return downloaded{Data: data, Size: uint64(len(data))}, nil
}
