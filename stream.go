package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Stream is a response type for binary or streaming responses.
// Return *Stream from a handler to bypass encoding. A Body that is also an
// io.Closer is closed once copied.
type Stream struct {
	ContentType string
	Status      int
	Body        io.Reader
}

// SSEStream is a response type for server-sent events.
// The handler writes events to the channel and closes it when done; events
// are flushed as they arrive, after the handler has returned.
type SSEStream struct {
	Events <-chan SSEEvent
}

// SSEEvent is a single server-sent event.
type SSEEvent struct {
	// Event is the event type (optional). Maps to the "event:" field.
	Event string
	// Data is the event payload. If it's a struct/map, it will be JSON-encoded.
	Data any
	// ID is the event ID (optional). Maps to the "id:" field.
	ID string
}

// bindStream copies a *Stream to the client and closes the response.
func bindStream(rc *RequestContext, response any, _ CompleteFunc) Binding {
	s, ok := response.(*Stream)
	if !ok || s == nil {
		return NotClaimed()
	}
	if c, ok := s.Body.(io.Closer); ok {
		defer c.Close()
	}

	w := rc.ResponseWriter()
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if s.Body != nil {
		if _, err := io.Copy(w, s.Body); err != nil {
			return Claimed(Failed(&WriteError{Committed: true, Err: err}))
		}
	}
	if err := rc.Close(); err != nil {
		return Claimed(Failed(&WriteError{Committed: true, Err: err}))
	}
	return Claimed(EmptyResult())
}

// bindSSE takes over an *SSEStream. Headers are sent right away; events are
// relayed from a separate goroutine, which completes the request when the
// channel is closed or the client goes away.
func bindSSE(rc *RequestContext, response any, complete CompleteFunc) Binding {
	s, ok := response.(*SSEStream)
	if !ok || s == nil {
		return NotClaimed()
	}

	w := rc.ResponseWriter()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc.w.Flush()

	go relaySSE(rc, s.Events, complete)
	return Deferred()
}

func relaySSE(rc *RequestContext, events <-chan SSEEvent, complete CompleteFunc) {
	ctx := rc.Context()
	for {
		select {
		case <-ctx.Done():
			complete(EmptyResult())
			return
		case event, ok := <-events:
			if !ok {
				if err := rc.Close(); err != nil {
					complete(Failed(&WriteError{Committed: true, Err: err}))
					return
				}
				complete(EmptyResult())
				return
			}
			if _, err := rc.w.Write(encodeSSEEvent(event)); err != nil {
				complete(Failed(&WriteError{Committed: true, Err: err}))
				return
			}
			rc.w.Flush()
		}
	}
}

// encodeSSEEvent renders event in text/event-stream framing. Multi-line
// data is split across data fields.
func encodeSSEEvent(event SSEEvent) []byte {
	var buf bytes.Buffer
	if event.ID != "" {
		writeSSEField(&buf, "id", event.ID)
	}
	if event.Event != "" {
		writeSSEField(&buf, "event", event.Event)
	}

	var data string
	switch v := event.Data.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		var b bytes.Buffer
		if err := (jsonCodec{}).Encode(&b, v); err != nil {
			data = err.Error()
		} else {
			data = b.String()
		}
	}
	for _, line := range bytes.Split([]byte(data), []byte("\n")) {
		writeSSEField(&buf, "data", string(line))
	}

	buf.WriteByte('\n')
	return buf.Bytes()
}

func writeSSEField(w io.Writer, name, value string) {
	//nolint:errcheck // bytes.Buffer writes do not fail
	fmt.Fprintf(w, "%s: %s\n", name, value)
}
