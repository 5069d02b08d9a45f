package dispatch

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Attributes is a bitset describing how an operation is being invoked:
// where the caller sits on the network, the HTTP verb, the reply style and
// the negotiated wire format.
type Attributes uint64

// Attribute bits. Each group (network, security, verb, reply style,
// format, transport) contributes at most one bit per request.
const (
	Localhost Attributes = 1 << iota
	LocalSubnet
	External
	Secure
	Insecure

	HTTPHead
	HTTPGet
	HTTPPost
	HTTPPut
	HTTPDelete
	HTTPPatch
	HTTPOptions
	HTTPOther

	Reply
	OneWay

	JSON
	XML
	YAML
	FormatOther

	HTTP
)

// AnyNetworkAccess matches any network locality.
const AnyNetworkAccess = Localhost | LocalSubnet | External

var attributeNames = []struct {
	attr Attributes
	name string
}{
	{Localhost, "localhost"},
	{LocalSubnet, "local_subnet"},
	{External, "external"},
	{Secure, "secure"},
	{Insecure, "insecure"},
	{HTTPHead, "head"},
	{HTTPGet, "get"},
	{HTTPPost, "post"},
	{HTTPPut, "put"},
	{HTTPDelete, "delete"},
	{HTTPPatch, "patch"},
	{HTTPOptions, "options"},
	{HTTPOther, "other_verb"},
	{Reply, "reply"},
	{OneWay, "one_way"},
	{JSON, "json"},
	{XML, "xml"},
	{YAML, "yaml"},
	{FormatOther, "other_format"},
	{HTTP, "http"},
}

// Has reports whether all bits of other are set.
func (a Attributes) Has(other Attributes) bool {
	return a&other == other
}

// String returns the set attribute names joined by "|".
func (a Attributes) String() string {
	if a == 0 {
		return "none"
	}
	var names []string
	for _, n := range attributeNames {
		if a&n.attr != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// contentTypeAttributes maps a media type to its format attribute.
func contentTypeAttributes(contentType string) Attributes {
	switch mediaType(contentType) {
	case "":
		return 0
	case mimeJSON:
		return JSON
	case mimeXML, "text/xml":
		return XML
	case mimeYAML, "application/x-yaml", "text/yaml":
		return YAML
	default:
		return FormatOther
	}
}

// requestAttributes derives the attributes visible on the request itself.
func requestAttributes(r *http.Request) Attributes {
	attrs := HTTP | networkAttributes(r.RemoteAddr)

	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		attrs |= Secure
	} else {
		attrs |= Insecure
	}

	switch r.Method {
	case http.MethodHead:
		attrs |= HTTPHead
	case http.MethodGet:
		attrs |= HTTPGet
	case http.MethodPost:
		attrs |= HTTPPost
	case http.MethodPut:
		attrs |= HTTPPut
	case http.MethodDelete:
		attrs |= HTTPDelete
	case http.MethodPatch:
		attrs |= HTTPPatch
	case http.MethodOptions:
		attrs |= HTTPOptions
	default:
		attrs |= HTTPOther
	}

	return attrs
}

func networkAttributes(remoteAddr string) Attributes {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return External
	}
	switch {
	case addr.IsLoopback():
		return Localhost
	case addr.IsPrivate(), addr.IsLinkLocalUnicast():
		return LocalSubnet
	default:
		return External
	}
}
