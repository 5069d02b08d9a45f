package dispatch

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// CSRFConfig configures the CSRF filter.
type CSRFConfig struct {
	TokenLength int    // default: 32
	CookieName  string // default: "_csrf"
	HeaderName  string // default: "X-CSRF-Token"
	Secure      bool   // cookie secure flag
	SameSite    http.SameSite
}

// ErrCSRFToken is returned when an unsafe request carries no token or a
// token that does not match its cookie.
var ErrCSRFToken = Error(http.StatusForbidden, "CSRF token mismatch")

type csrfTokenKey struct{}

// CSRF returns a request filter that implements double-submit cookie CSRF
// protection. A token cookie is issued when missing and the token is stored
// in the request context (see CSRFToken). Safe methods (GET, HEAD, OPTIONS)
// are not checked; other requests must echo the cookie in the header or
// fail with 403.
func CSRF(cfg ...CSRFConfig) RequestFilter {
	c := CSRFConfig{
		TokenLength: 32,
		CookieName:  "_csrf",
		HeaderName:  "X-CSRF-Token",
		SameSite:    http.SameSiteLaxMode,
	}
	if len(cfg) > 0 {
		if cfg[0].TokenLength > 0 {
			c.TokenLength = cfg[0].TokenLength
		}
		if cfg[0].CookieName != "" {
			c.CookieName = cfg[0].CookieName
		}
		if cfg[0].HeaderName != "" {
			c.HeaderName = cfg[0].HeaderName
		}
		c.Secure = cfg[0].Secure
		if cfg[0].SameSite != 0 {
			c.SameSite = cfg[0].SameSite
		}
	}

	return RequestFilterFunc(func(rc *RequestContext, _ any) (bool, error) {
		r := rc.Request

		token := ""
		if cookie, err := r.Cookie(c.CookieName); err == nil {
			token = cookie.Value
		}
		if token == "" {
			token = newCSRFToken(c.TokenLength)
			http.SetCookie(rc.ResponseWriter(), &http.Cookie{
				Name:     c.CookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				Secure:   c.Secure,
				SameSite: c.SameSite,
			})
		}
		rc.Request = r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token))

		if isSafeMethod(r.Method) {
			return false, nil
		}

		sent := r.Header.Get(c.HeaderName)
		if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
			return false, ErrCSRFToken
		}
		return false, nil
	})
}

// CSRFToken returns the token stored by the CSRF filter.
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(csrfTokenKey{}).(string)
	return token
}

func newCSRFToken(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
