package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		UnsupportedContentType: http.StatusBadRequest,
		MissingBoundary:        http.StatusBadRequest,
		NoFileFound:            http.StatusBadRequest,
		MultipleFiles:          http.StatusBadRequest,
		MalformedBody:          http.StatusBadRequest,
		InvalidImage:           http.StatusBadRequest,
		UnsupportedFormat:      http.StatusBadRequest,
		PayloadTooLarge:        http.StatusRequestEntityTooLarge,
		Timeout:                http.StatusGatewayTimeout,
		InternalError:          http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, k.Status(), k.String())
	}
}

func TestEveryKindHasMessage(t *testing.T) {
	for k := range kindNames {
		assert.NotEmpty(t, New(k).Message, k.String())
	}
}

func TestAs_TypedErrorSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(NoFileFound))

	fe := As(err)
	require.NotNil(t, fe)
	assert.Equal(t, NoFileFound, fe.Kind)
	assert.True(t, errors.Is(err, New(NoFileFound)))
	assert.False(t, errors.Is(err, New(InvalidImage)))
}

func TestAs_UntypedBecomesInternal(t *testing.T) {
	fe := As(errors.New("boom"))
	require.NotNil(t, fe)
	assert.Equal(t, InternalError, fe.Kind)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(fe))
}

func TestAs_ContextErrorsBecomeTimeout(t *testing.T) {
	assert.Equal(t, Timeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, Timeout, KindOf(fmt.Errorf("decode: %w", context.Canceled)))
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, FromContext(ctx))

	cancel()
	err := FromContext(ctx)
	require.Error(t, err)
	assert.Equal(t, Timeout, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnsupportedFormatOf(t *testing.T) {
	err := UnsupportedFormatOf("gif")
	assert.Equal(t, UnsupportedFormat, err.Kind)
	assert.Contains(t, err.Message, `"gif"`)
}
