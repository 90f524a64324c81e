package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMintsAnIDAndPreservesTheCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(KindUpstream, cause)

	assert.Len(t, err.ID, 8)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), err.ID)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestUserfIsUserFacing(t *testing.T) {
	err := Userf("that URL isn't from a platform I support")

	assert.True(t, err.IsUser())
	assert.Equal(t, "that URL isn't from a platform I support", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestChainRendersEveryWrappedLayer(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	middle := fmt.Errorf("fetch post: %w", inner)
	outer := fmt.Errorf("resolve request: %w", middle)

	chain := Chain(outer)

	assert.Contains(t, chain, "resolve request")
	assert.Contains(t, chain, "caused by: fetch post")
	assert.Contains(t, chain, "caused by: dial tcp: timeout")
}

func TestKindOfSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindPanic, errors.New("boom")))
	assert.Equal(t, KindPanic, KindOf(err))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestErrorsAsFindsTheTypedError(t *testing.T) {
	wrapped := fmt.Errorf("upload blob: %w", New(KindBlobTooBig, errors.New("60MB > 50MB")))

	var appErr *Error
	require.ErrorAs(t, wrapped, &appErr)
	assert.Equal(t, KindBlobTooBig, appErr.Kind)
	assert.False(t, appErr.IsUser())
}
