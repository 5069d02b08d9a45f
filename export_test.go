package dispatch

import "net/http"

// Test-only exports for internal functions.
var (
	HasParamTags  = hasParamTags
	HasBodyField  = hasBodyField
	HasRawRequest = hasRawRequest
	TagOptions    = tagOptions
	JSONFieldName = jsonFieldName

	ValidateConstraints = validateConstraints
	WrapCallback        = wrapCallback
	IsVoid              = isVoid
	ErrorKind           = errorKind
	NetworkAttributes   = networkAttributes
	RequestAttributes   = requestAttributes
	ProblemFor          = problemFor
	EncodeSSEEvent      = encodeSSEEvent
)

// NewTestRequestContext creates a RequestContext without negotiation.
func NewTestRequestContext(w http.ResponseWriter, r *http.Request, route *Route) *RequestContext {
	return newRequestContext(w, r, route)
}

// NegotiateResponseType runs response negotiation over the built-in codecs.
func NegotiateResponseType(format, accept, fallback string) string {
	return newCodecRegistry(nil, nil).responseContentType(format, accept, fallback)
}

// NewTestResolver returns a Resolver over the built-in codecs.
func NewTestResolver(defaultContentType string, maxBodyBytes int64) *Resolver {
	return &Resolver{
		codecs:             newCodecRegistry(nil, nil),
		defaultContentType: defaultContentType,
		maxBodyBytes:       maxBodyBytes,
	}
}

// NewTestWriter returns a ResponseWriter over the built-in codecs plus encoders.
func NewTestWriter(allowJSONP bool, encoders ...Encoder) *ResponseWriter {
	return &ResponseWriter{
		codecs:        newCodecRegistry(encoders, nil),
		allowJSONP:    allowJSONP,
		callbackParam: "callback",
	}
}
