package dispatch_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bjaus/dispatch"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := dispatch.Error(http.StatusNotFound, "user not found")

	assert.Equal(t, "user not found", err.Error())
	assert.Equal(t, http.StatusNotFound, dispatch.ErrorStatus(err))
}

func TestErrorf(t *testing.T) {
	t.Parallel()

	err := dispatch.Errorf(http.StatusBadRequest, "invalid field %q", "email")

	assert.Equal(t, `invalid field "email"`, err.Error())
	assert.Equal(t, http.StatusBadRequest, dispatch.ErrorStatus(err))
}

func TestHTTPError_message_falls_back_to_cause(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := &dispatch.HTTPError{Status: http.StatusInsufficientStorage, Err: cause}

	assert.Equal(t, "disk full", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want int
	}{
		"plain error":   {err: errors.New("x"), want: http.StatusInternalServerError},
		"http error":    {err: dispatch.Error(http.StatusTeapot, "x"), want: http.StatusTeapot},
		"wrapped":       {err: fmt.Errorf("ctx: %w", dispatch.Error(http.StatusGone, "x")), want: http.StatusGone},
		"problem":       {err: &dispatch.ProblemDetail{Status: http.StatusConflict}, want: http.StatusConflict},
		"write error":   {err: &dispatch.WriteError{Err: errors.New("x")}, want: http.StatusInternalServerError},
		"write with st": {err: &dispatch.WriteError{Err: dispatch.Error(http.StatusBadRequest, "x")}, want: http.StatusBadRequest},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, dispatch.ErrorStatus(tt.err))
		})
	}
}

func TestProblemDetail_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "detail", (&dispatch.ProblemDetail{Title: "title", Detail: "detail"}).Error())
	assert.Equal(t, "title", (&dispatch.ProblemDetail{Title: "title"}).Error())
}

func TestProblemFor(t *testing.T) {
	t.Parallel()

	t.Run("problem passes through", func(t *testing.T) {
		t.Parallel()

		pd := &dispatch.ProblemDetail{Status: http.StatusUnprocessableEntity, Title: "Invalid"}
		assert.Same(t, pd, dispatch.ProblemFor(fmt.Errorf("wrap: %w", pd)))
	})

	t.Run("http error", func(t *testing.T) {
		t.Parallel()

		got := dispatch.ProblemFor(dispatch.Error(http.StatusForbidden, "nope"))
		assert.Equal(t, &dispatch.ProblemDetail{
			Type:   "about:blank",
			Title:  "Forbidden",
			Status: http.StatusForbidden,
			Detail: "nope",
		}, got)
	})

	t.Run("plain error", func(t *testing.T) {
		t.Parallel()

		got := dispatch.ProblemFor(errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, got.Status)
		assert.Equal(t, "boom", got.Detail)
	})
}

func TestWriteError_unwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("broken pipe")
	err := &dispatch.WriteError{Committed: true, Err: cause}

	assert.ErrorIs(t, err, dispatch.ErrWrite)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "write response: broken pipe", err.Error())
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want string
	}{
		"panic":        {err: &dispatch.PanicError{Value: "x"}, want: "panic"},
		"decode":       {err: fmt.Errorf("%w: bad", dispatch.ErrDeserialization), want: "deserialization"},
		"media type":   {err: dispatch.ErrUnsupportedMediaType, want: "unsupported_media_type"},
		"write":        {err: &dispatch.WriteError{Err: errors.New("x")}, want: "write"},
		"service":      {err: fmt.Errorf("%w: x", dispatch.ErrService), want: "service"},
		"unclassified": {err: errors.New("x"), want: "other"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, dispatch.ErrorKind(tt.err))
		})
	}
}

func TestPanicError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "panic: kaboom", (&dispatch.PanicError{Value: "kaboom"}).Error())
}
