package dispatch_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bjaus/dispatch"
)

func TestRedirect(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		redirect *dispatch.Redirect
		status   int
	}{
		"default see other": {redirect: &dispatch.Redirect{Location: "/new"}, status: http.StatusSeeOther},
		"explicit status":   {redirect: &dispatch.Redirect{Location: "/new", Status: http.StatusFound}, status: http.StatusFound},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rec := newClosingRecorder()
			dispatch.NewPipeline(dispatch.Config{}).Serve(rec, newRequest(http.MethodGet, "/old", nil),
				dispatch.MustRoute(http.MethodGet, "/old", nil), respond(tt.redirect))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "/new", rec.Header().Get("Location"))
			assert.Equal(t, int32(1), rec.closes.Load())
		})
	}
}

func TestHTTPSRedirect(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := dispatch.HTTPSRedirect()(next)

	tests := map[string]struct {
		tls      bool
		proto    string
		status   int
		location string
	}{
		"plain http": {status: http.StatusMovedPermanently, location: "https://example.com/a?b=c"},
		"tls":        {tls: true, status: http.StatusOK},
		"forwarded":  {proto: "https", status: http.StatusOK},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "http://example.com/a?b=c", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}
}

func TestTrailingSlash(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := dispatch.TrailingSlash()(next)

	tests := map[string]struct {
		target   string
		status   int
		location string
	}{
		"root":          {target: "/", status: http.StatusOK},
		"no slash":      {target: "/users", status: http.StatusOK},
		"slash":         {target: "/users/", status: http.StatusMovedPermanently, location: "/users"},
		"slash + query": {target: "/users/?page=2", status: http.StatusMovedPermanently, location: "/users?page=2"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}
}
