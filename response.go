package dispatch

import (
	"bytes"
	"net/http"
	"reflect"
	"regexp"
)

// CookieSetter is optionally implemented by response types to set cookies.
type CookieSetter interface {
	Cookies() []*http.Cookie
}

// HeaderSetter is optionally implemented by response types to set response headers.
type HeaderSetter interface {
	SetHeaders(h http.Header)
}

// callbackName matches JavaScript identifier paths such as "cb" or
// "jQuery123.handle".
var callbackName = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// ResponseWriter serializes response values onto a RequestContext.
type ResponseWriter struct {
	codecs        *codecRegistry
	allowJSONP    bool
	callbackParam string
}

// Write encodes response with the negotiated encoder and closes rc. When
// callback wrapping is enabled and the request names a callback, the body is
// written as callback(body).
func (w *ResponseWriter) Write(rc *RequestContext, response any) error {
	enc, ok := w.codecs.encoderFor(rc.ResponseContentType)
	if !ok {
		return unsupportedMediaType(http.StatusNotAcceptable, rc.ResponseContentType)
	}

	callback := w.callback(rc)
	if callback != "" && !callbackName.MatchString(callback) {
		return Errorf(http.StatusBadRequest, "invalid %s parameter %q", w.callbackParam, callback)
	}

	status := http.StatusOK
	if rc.Route != nil {
		status = rc.Route.Status
	}

	if isVoid(response) {
		if status == http.StatusOK {
			status = http.StatusNoContent
		}
		rc.w.WriteHeader(status)
		return w.close(rc)
	}

	if cs, ok := response.(CookieSetter); ok {
		for _, c := range cs.Cookies() {
			http.SetCookie(rc.w, c)
		}
	}
	if hs, ok := response.(HeaderSetter); ok {
		hs.SetHeaders(rc.w.Header())
	}
	if sc, ok := response.(StatusCoder); ok && sc.StatusCode() != 0 {
		status = sc.StatusCode()
	}

	return w.emit(rc, enc, status, callback, response)
}

// WriteError writes err as a ProblemDetail through the same negotiation and
// callback wrapping as a success response. If the negotiated type has no
// encoder, the encoder for fallback is used instead.
func (w *ResponseWriter) WriteError(rc *RequestContext, err error, fallback string) error {
	problem := problemFor(err)
	if problem.Instance == "" {
		problem.Instance = rc.Request.URL.Path
	}

	enc, ok := w.codecs.encoderFor(rc.ResponseContentType)
	if !ok {
		if enc, ok = w.codecs.encoderFor(fallback); !ok {
			return unsupportedMediaType(http.StatusNotAcceptable, fallback)
		}
	}

	callback := w.callback(rc)
	if !callbackName.MatchString(callback) {
		callback = ""
	}

	return w.emit(rc, enc, problem.Status, callback, problem)
}

// emit encodes v into a buffer, then sends status, headers and the
// (possibly wrapped) body, then closes rc. Nothing is sent if encoding fails.
func (w *ResponseWriter) emit(rc *RequestContext, enc Encoder, status int, callback string, v any) error {
	var body bytes.Buffer
	if err := enc.Encode(&body, v); err != nil {
		return &WriteError{Err: err}
	}

	if callback != "" {
		rc.w.Header().Set("Content-Type", mimeJavaScript)
	} else {
		rc.w.Header().Set("Content-Type", enc.ContentType())
	}
	rc.w.WriteHeader(status)

	if _, err := rc.w.Write(wrapCallback(callback, body.Bytes())); err != nil {
		return &WriteError{Committed: true, Err: err}
	}
	return w.close(rc)
}

// callback returns the requested callback name when wrapping is enabled.
func (w *ResponseWriter) callback(rc *RequestContext) string {
	if !w.allowJSONP {
		return ""
	}
	return rc.Request.URL.Query().Get(w.callbackParam)
}

func (w *ResponseWriter) close(rc *RequestContext) error {
	if err := rc.Close(); err != nil {
		return &WriteError{Committed: true, Err: err}
	}
	return nil
}

// wrapCallback returns callback(body), or body when callback is empty.
func wrapCallback(callback string, body []byte) []byte {
	if callback == "" {
		return body
	}
	out := make([]byte, 0, len(callback)+len(body)+2)
	out = append(out, callback...)
	out = append(out, '(')
	out = append(out, body...)
	return append(out, ')')
}

func isVoid(v any) bool {
	switch v.(type) {
	case nil, Void, *Void:
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
