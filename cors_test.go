package dispatch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bjaus/dispatch"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg         []dispatch.CORSConfig
		method      string
		origin      string
		wantStatus  int
		wantCalls   int32
		wantHeaders map[string]string
	}{
		"simple request with defaults": {
			method:     http.MethodGet,
			origin:     "https://app.example.com",
			wantStatus: http.StatusOK,
			wantCalls:  1,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": "",
				"Vary":                         "Origin",
			},
		},
		"preflight with defaults": {
			method:     http.MethodOptions,
			origin:     "https://app.example.com",
			wantStatus: http.StatusNoContent,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": "GET, POST, PUT, PATCH, DELETE, OPTIONS",
				"Access-Control-Allow-Headers": "Content-Type, Authorization",
				"Access-Control-Max-Age":       "",
			},
		},
		"listed origin is echoed": {
			cfg:        []dispatch.CORSConfig{{AllowOrigins: []string{"https://a.example.com", "https://b.example.com"}}},
			method:     http.MethodGet,
			origin:     "https://b.example.com",
			wantStatus: http.StatusOK,
			wantCalls:  1,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin": "https://b.example.com",
			},
		},
		"unlisted origin gets no allow header": {
			cfg:        []dispatch.CORSConfig{{AllowOrigins: []string{"https://a.example.com"}}},
			method:     http.MethodGet,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
			wantCalls:  1,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin": "",
			},
		},
		"credentials, expose and max age": {
			cfg: []dispatch.CORSConfig{{
				AllowOrigins:     []string{"https://a.example.com"},
				AllowMethods:     []string{"GET"},
				AllowHeaders:     []string{"X-Token"},
				ExposeHeaders:    []string{"X-Request-ID", "ETag"},
				AllowCredentials: true,
				MaxAge:           600,
			}},
			method:     http.MethodOptions,
			origin:     "https://a.example.com",
			wantStatus: http.StatusNoContent,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":      "https://a.example.com",
				"Access-Control-Allow-Methods":     "GET",
				"Access-Control-Allow-Headers":     "X-Token",
				"Access-Control-Expose-Headers":    "X-Request-ID, ETag",
				"Access-Control-Allow-Credentials": "true",
				"Access-Control-Max-Age":           "600",
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			p := dispatch.NewPipeline(dispatch.Config{
				RequestFilters: []dispatch.RequestFilter{dispatch.CORS(tt.cfg...)},
			})
			route := dispatch.MustRoute(tt.method, "/items/{id}", nil)

			req := newRequest(tt.method, "/items/1", nil)
			req.Header.Set("Origin", tt.origin)
			rec := newClosingRecorder()
			p.Serve(rec, req, route, okService(&calls))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, int32(1), rec.closes.Load())
			for k, v := range tt.wantHeaders {
				assert.Equal(t, v, rec.Header().Get(k), k)
			}
		})
	}
}

func TestCORS_preflight_through_router(t *testing.T) {
	t.Parallel()

	r := dispatch.New(dispatch.WithRequestFilters(dispatch.CORS()))
	dispatch.Get(r, "/items/{id}", func(context.Context, *itemReq) (*itemResp, error) {
		return &itemResp{A: 1}, nil
	})
	dispatch.Options(r, "/items/{id}")

	rec := httptest.NewRecorder()
	req := newRequest(http.MethodOptions, "/items/1", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodGet)
	assert.Empty(t, rec.Body.String())
}

func TestOptions_without_cors_is_no_content(t *testing.T) {
	t.Parallel()

	r := dispatch.New()
	dispatch.Options(r, "/items")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, newRequest(http.MethodOptions, "/items", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
