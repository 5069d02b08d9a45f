package dispatch

import (
	"net/http"
	"strings"
)

// Redirect is a response type that sends the client elsewhere.
// Status defaults to 303 See Other.
type Redirect struct {
	Location string
	Status   int
}

// bindRedirect answers a *Redirect with a Location header and closes the
// response.
func bindRedirect(rc *RequestContext, response any, _ CompleteFunc) Binding {
	rd, ok := response.(*Redirect)
	if !ok || rd == nil {
		return NotClaimed()
	}
	status := rd.Status
	if status == 0 {
		status = http.StatusSeeOther
	}
	http.Redirect(rc.ResponseWriter(), rc.Request, rd.Location, status)
	if err := rc.Close(); err != nil {
		return Claimed(Failed(&WriteError{Committed: true, Err: err}))
	}
	return Claimed(EmptyResult())
}

// HTTPSRedirect returns middleware that redirects HTTP requests to HTTPS.
func HTTPSRedirect() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
				http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TrailingSlash returns middleware that strips trailing slashes and redirects.
func TrailingSlash() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" || !strings.HasSuffix(r.URL.Path, "/") {
				next.ServeHTTP(w, r)
				return
			}
			target := strings.TrimRight(r.URL.Path, "/")
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})
	}
}
