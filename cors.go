package dispatch

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS filter.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int // seconds
}

// CORS returns a request filter that handles Cross-Origin Resource Sharing.
// Every request gets the allow and expose headers; a preflight (OPTIONS)
// request is answered with 204 No Content and the service is not invoked.
// Register an OPTIONS route (see Options) for preflights to reach the
// pipeline. If no config is provided, permissive defaults are used.
//
// When AllowOrigins lists specific origins, a matching Origin header is
// echoed back and other origins get no Access-Control-Allow-Origin.
func CORS(cfg ...CORSConfig) RequestFilter {
	c := CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}
	if len(cfg) > 0 {
		c = cfg[0]
	}

	anyOrigin := slices.Contains(c.AllowOrigins, "*")
	methods := strings.Join(c.AllowMethods, ", ")
	headers := strings.Join(c.AllowHeaders, ", ")
	expose := strings.Join(c.ExposeHeaders, ", ")
	maxAge := ""
	if c.MaxAge > 0 {
		maxAge = strconv.Itoa(c.MaxAge)
	}

	return RequestFilterFunc(func(rc *RequestContext, _ any) (bool, error) {
		h := rc.ResponseWriter().Header()
		origin := rc.Request.Header.Get("Origin")

		switch {
		case anyOrigin:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(c.AllowOrigins, origin):
			h.Set("Access-Control-Allow-Origin", origin)
		}
		h.Add("Vary", "Origin")

		if expose != "" {
			h.Set("Access-Control-Expose-Headers", expose)
		}
		if c.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if rc.Request.Method != http.MethodOptions {
			return false, nil
		}

		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", headers)
		if maxAge != "" {
			h.Set("Access-Control-Max-Age", maxAge)
		}
		rc.ResponseWriter().WriteHeader(http.StatusNoContent)
		if err := rc.Close(); err != nil {
			return true, &WriteError{Committed: true, Err: err}
		}
		return true, nil
	})
}
