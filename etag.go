package dispatch

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// ETagConfig configures the ETag filter.
type ETagConfig struct {
	Weak bool // use weak ETags
}

// LastModifier is implemented by response types that report their last modification time.
type LastModifier interface {
	LastModified() time.Time
}

// ETag returns a response filter that tags GET and HEAD responses with an
// entity tag derived from the response value and its negotiated format.
// A matching If-None-Match, or an If-Modified-Since no older than the
// response's LastModified, is answered with 304 Not Modified and the
// response is not written.
func ETag(cfg ...ETagConfig) ResponseFilter {
	c := ETagConfig{}
	if len(cfg) > 0 {
		c = cfg[0]
	}

	return ResponseFilterFunc(func(rc *RequestContext, response any) (bool, error) {
		r := rc.Request
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			return false, nil
		}
		if isVoid(response) {
			return false, nil
		}

		h := rc.ResponseWriter().Header()

		var buf bytes.Buffer
		buf.WriteString(rc.ResponseContentType)
		if err := (jsonCodec{}).Encode(&buf, response); err == nil {
			sum := sha256.Sum256(buf.Bytes())
			etag := `"` + hex.EncodeToString(sum[:8]) + `"`
			if c.Weak {
				etag = "W/" + etag
			}
			h.Set("ETag", etag)

			if match := r.Header.Get("If-None-Match"); match != "" {
				return notModified(rc, etagMatches(match, etag))
			}
		}

		if lm, ok := response.(LastModifier); ok && !lm.LastModified().IsZero() {
			modified := lm.LastModified().UTC().Truncate(time.Second)
			h.Set("Last-Modified", modified.Format(http.TimeFormat))
			if since, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil {
				return notModified(rc, !modified.After(since))
			}
		}
		return false, nil
	})
}

func notModified(rc *RequestContext, match bool) (bool, error) {
	if !match {
		return false, nil
	}
	rc.ResponseWriter().WriteHeader(http.StatusNotModified)
	if err := rc.Close(); err != nil {
		return true, &WriteError{Committed: true, Err: err}
	}
	return true, nil
}

// etagMatches reports whether the If-None-Match list header matches etag,
// using weak comparison. "*" matches any tag.
func etagMatches(header, etag string) bool {
	etag = strings.TrimPrefix(etag, "W/")
	for candidate := range strings.SplitSeq(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
