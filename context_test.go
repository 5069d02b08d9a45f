package dispatch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/dispatch"
)

func TestSetValueGetValue_roundTrip(t *testing.T) {
	t.Parallel()

	type userID string

	r, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "/test", nil)
	require.NoError(t, err)

	r = dispatch.SetValue[userID](r, "user-123")

	val, ok := dispatch.GetValue[userID](r.Context())
	assert.True(t, ok)
	assert.Equal(t, userID("user-123"), val)
}

func TestGetValue_missing_returns_false(t *testing.T) {
	t.Parallel()

	val, ok := dispatch.GetValue[string](context.Background())
	assert.False(t, ok)
	assert.Empty(t, val)
}

func TestRequestContext_Close_once(t *testing.T) {
	t.Parallel()

	rec := newClosingRecorder()
	rc := dispatch.NewTestRequestContext(rec, newRequest(http.MethodGet, "/", nil), nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rc.Close())
		}()
	}
	wg.Wait()

	assert.True(t, rc.IsClosed())
	assert.Equal(t, int32(1), rec.closes.Load())
}

func TestRequestContext_write_after_close_is_dropped(t *testing.T) {
	t.Parallel()

	rec := newClosingRecorder()
	rc := dispatch.NewTestRequestContext(rec, newRequest(http.MethodGet, "/", nil), nil)

	_, err := rc.ResponseWriter().Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, err = rc.ResponseWriter().Write([]byte("second"))
	assert.ErrorIs(t, err, dispatch.ErrResponseClosed)
	rc.ResponseWriter().WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "first", rec.Body.String())
}

func TestRequestContext_status_and_commit(t *testing.T) {
	t.Parallel()

	rc := dispatch.NewTestRequestContext(httptest.NewRecorder(), newRequest(http.MethodGet, "/", nil), nil)

	assert.False(t, rc.Committed())
	assert.Equal(t, http.StatusOK, rc.Status())

	rc.ResponseWriter().WriteHeader(http.StatusCreated)
	rc.ResponseWriter().WriteHeader(http.StatusConflict)

	assert.True(t, rc.Committed())
	assert.Equal(t, http.StatusCreated, rc.Status())
}

type failingCloser struct {
	*httptest.ResponseRecorder
}

func (failingCloser) Close() error { return errors.New("close failed") }

func TestRequestContext_Close_reports_writer_error_once(t *testing.T) {
	t.Parallel()

	rc := dispatch.NewTestRequestContext(failingCloser{httptest.NewRecorder()}, newRequest(http.MethodGet, "/", nil), nil)

	assert.Error(t, rc.Close())
	assert.NoError(t, rc.Close())
}

func TestRequestContext_Context(t *testing.T) {
	t.Parallel()

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	req := newRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rc := dispatch.NewTestRequestContext(httptest.NewRecorder(), req, nil)

	assert.Equal(t, "v", rc.Context().Value(key{}))
	assert.Equal(t, dispatch.StateIdle, rc.State())
}
