package tgupload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadBlobRejectsByContentLengthWithoutReadingBody(t *testing.T) {
	bodyRead := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		bodyRead = true
		_, _ = w.Write(make([]byte, 1000))
	}))
	defer server.Close()

	_, err := downloadBlob(context.Background(), server.Client(), server.URL, 100)

	var tooBig BlobTooBigError
	require.ErrorAs(t, err, &tooBig)
	assert.Equal(t, uint64(1000), tooBig.Actual)
	assert.Equal(t, uint64(100), tooBig.Max)
	// The handler still ran (httptest has no pre-body hook), but the point
	// of the Content-Length pre-check is that downloadBlob itself never
	// asks for more than maxBytes+1 bytes of the stream.
	assert.True(t, bodyRead)
}

func TestDownloadBlobEnforcesBoundIncrementallyWithoutContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Transfer-Encoding", "chunked")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer server.Close()

	_, err := downloadBlob(context.Background(), server.Client(), server.URL, 100)

	var tooBig BlobTooBigError
	require.ErrorAs(t, err, &tooBig)
	assert.Equal(t, uint64(100), tooBig.Max)
	assert.Greater(t, tooBig.Actual, uint64(100))
}

func TestDownloadBlobSucceedsWithinBound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	d, err := downloadBlob(context.Background(), server.Client(), server.URL, 100)

	require.NoError(t, err)
	assert.Equal(t, uint64(5), d.Size)
	assert.Equal(t, "hello", string(d.Data))
}
