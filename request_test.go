package dispatch_test

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/dispatch"
)

func resolve(t *testing.T, res *dispatch.Resolver, route *dispatch.Route, req *http.Request) (any, error) {
	t.Helper()
	return res.Resolve(dispatch.NewTestRequestContext(newClosingRecorder(), req, route))
}

func TestResolver_void_request(t *testing.T) {
	t.Parallel()

	route := dispatch.MustRoute(http.MethodGet, "/ping", nil)
	dto, err := resolve(t, dispatch.NewTestResolver("application/json", 0), route, newRequest(http.MethodGet, "/ping", nil))

	require.NoError(t, err)
	assert.Equal(t, &dispatch.Void{}, dto)
}

func TestResolver_mixed_request(t *testing.T) {
	t.Parallel()

	type updateReq struct {
		ID      string        `path:"id"`
		DryRun  bool          `query:"dry_run"`
		Token   string        `header:"X-Token"`
		Session string        `cookie:"session"`
		Region  string        `header:"X-Region" default:"us"`
		Wait    time.Duration `query:"wait"`
		Body    struct {
			Name string `json:"name"`
		}
	}
	route := dispatch.MustRoute(http.MethodPut, "/items/{id}", reflect.TypeFor[updateReq]())

	req := newRequest(http.MethodPut, "/items/7?dry_run=true&wait=2s", strings.NewReader(`{"name":"n"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Token", "tok")
	req.AddCookie(&http.Cookie{Name: "session", Value: "s1"})

	dto, err := resolve(t, dispatch.NewTestResolver("application/json", 0), route, req)
	require.NoError(t, err)

	got := dto.(*updateReq)
	assert.Equal(t, "7", got.ID)
	assert.True(t, got.DryRun)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "s1", got.Session)
	assert.Equal(t, "us", got.Region)
	assert.Equal(t, 2*time.Second, got.Wait)
	assert.Equal(t, "n", got.Body.Name)
}

func TestResolver_raw_request(t *testing.T) {
	t.Parallel()

	type rawReq struct {
		dispatch.RawRequest
	}
	route := dispatch.MustRoute(http.MethodGet, "/raw", reflect.TypeFor[rawReq]())
	req := newRequest(http.MethodGet, "/raw", nil)

	dto, err := resolve(t, dispatch.NewTestResolver("application/json", 0), route, req)
	require.NoError(t, err)
	assert.Same(t, req, dto.(*rawReq).Request)
}

func TestResolver_empty_body_still_binds_path(t *testing.T) {
	t.Parallel()

	type createReq struct {
		Org  string `path:"org"`
		Body struct {
			Name string `json:"name"`
		}
	}
	route := dispatch.MustRoute(http.MethodPost, "/orgs/{org}/items", reflect.TypeFor[createReq]())

	dto, err := resolve(t, dispatch.NewTestResolver("application/json", 0), route, newRequest(http.MethodPost, "/orgs/acme/items", nil))
	require.NoError(t, err)
	assert.Equal(t, "acme", dto.(*createReq).Org)
	assert.Empty(t, dto.(*createReq).Body.Name)
}

func TestResolver_errors(t *testing.T) {
	t.Parallel()

	type createReq struct {
		Body struct {
			Name string `json:"name"`
		}
	}
	type headerReq struct {
		Count int `header:"X-Count"`
	}

	tests := map[string]struct {
		route       *dispatch.Route
		contentType string
		body        string
		header      http.Header
		maxBody     int64
		status      int
		is          error
	}{
		"malformed body": {
			route:       dispatch.MustRoute(http.MethodPost, "/x", reflect.TypeFor[createReq]()),
			contentType: "application/json",
			body:        `{"name":`,
			status:      http.StatusBadRequest,
			is:          dispatch.ErrBindBody,
		},
		"unsupported content type": {
			route:       dispatch.MustRoute(http.MethodPost, "/x", reflect.TypeFor[createReq]()),
			contentType: "text/csv",
			body:        "a,b",
			status:      http.StatusUnsupportedMediaType,
			is:          dispatch.ErrUnsupportedMediaType,
		},
		"body over pipeline limit": {
			route:       dispatch.MustRoute(http.MethodPost, "/x", reflect.TypeFor[createReq]()),
			contentType: "application/json",
			body:        `{"name":"` + strings.Repeat("x", 64) + `"}`,
			maxBody:     16,
			status:      http.StatusRequestEntityTooLarge,
			is:          dispatch.ErrDeserialization,
		},
		"body over route limit": {
			route:       dispatch.MustRoute(http.MethodPost, "/x", reflect.TypeFor[createReq](), dispatch.WithBodyLimit(8)),
			contentType: "application/json",
			body:        `{"name":"` + strings.Repeat("x", 64) + `"}`,
			maxBody:     1 << 20,
			status:      http.StatusRequestEntityTooLarge,
			is:          dispatch.ErrDeserialization,
		},
		"bad header": {
			route:  dispatch.MustRoute(http.MethodGet, "/x", reflect.TypeFor[headerReq]()),
			header: http.Header{"X-Count": {"lots"}},
			status: http.StatusBadRequest,
			is:     dispatch.ErrBindHeader,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var req *http.Request
			if tt.body != "" {
				req = newRequest(tt.route.Method, "/x", strings.NewReader(tt.body))
				req.Header.Set("Content-Type", tt.contentType)
			} else {
				req = newRequest(tt.route.Method, "/x", nil)
			}
			for k, v := range tt.header {
				req.Header[k] = v
			}

			_, err := resolve(t, dispatch.NewTestResolver("application/json", tt.maxBody), tt.route, req)
			require.Error(t, err)
			assert.Equal(t, tt.status, dispatch.ErrorStatus(err))
			assert.True(t, errors.Is(err, tt.is), "got %v", err)
		})
	}
}
