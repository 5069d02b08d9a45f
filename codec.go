package dispatch

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	mimeJSON       = "application/json"
	mimeXML        = "application/xml"
	mimeYAML       = "application/yaml"
	mimeForm       = "application/x-www-form-urlencoded"
	mimeJavaScript = "application/javascript"
)

// Encoder encodes response values to a wire format.
type Encoder interface {
	ContentType() string
	Encode(w io.Writer, v any) error
}

// Decoder decodes request bodies from a wire format.
type Decoder interface {
	ContentType() string
	Decode(r io.Reader, v any) error
}

// Aliaser is optionally implemented by codecs that answer to more than one
// media type (e.g. text/xml for XML).
type Aliaser interface {
	Aliases() []string
}

// Formatter is optionally implemented by encoders selectable through the
// format query parameter (?format=json).
type Formatter interface {
	Format() string
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return mimeJSON }
func (jsonCodec) Format() string      { return "json" }

// Encode writes compact JSON without the trailing newline json.Encoder adds,
// so that callback-wrapped bodies stay byte-exact.
func (jsonCodec) Encode(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (jsonCodec) Decode(r io.Reader, v any) error {
	err := json.NewDecoder(r).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type xmlCodec struct{}

func (xmlCodec) ContentType() string { return mimeXML }
func (xmlCodec) Format() string      { return "xml" }
func (xmlCodec) Aliases() []string   { return []string{"text/xml"} }

func (xmlCodec) Encode(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(v)
}

func (xmlCodec) Decode(r io.Reader, v any) error {
	err := xml.NewDecoder(r).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type yamlCodec struct{}

func (yamlCodec) ContentType() string { return mimeYAML }
func (yamlCodec) Format() string      { return "yaml" }
func (yamlCodec) Aliases() []string   { return []string{"application/x-yaml", "text/yaml"} }

func (yamlCodec) Encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (yamlCodec) Decode(r io.Reader, v any) error {
	err := yaml.NewDecoder(r).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// formDecoder binds application/x-www-form-urlencoded bodies. Fields are
// matched by their form tag, then their json name.
type formDecoder struct{}

func (formDecoder) ContentType() string { return mimeForm }

func (formDecoder) Decode(r io.Reader, v any) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return err
	}
	values, err := url.ParseQuery(buf.String())
	if err != nil {
		return err
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("form target must be a struct pointer, got %T", v)
	}
	rv = rv.Elem()
	t := rv.Type()

	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("form")
		if name == "" {
			name = jsonFieldName(f)
		}
		if name == "-" {
			continue
		}
		val := values.Get(name)
		if val == "" {
			continue
		}
		if err := setFieldValue(rv.Field(i), val); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// codecRegistry holds the encoders and decoders known to a pipeline.
// Lookups are by exact media type; Accept negotiation and the format
// parameter both resolve to a media type first.
type codecRegistry struct {
	encoders []Encoder
	decoders []Decoder

	encByType   map[string]Encoder
	decByType   map[string]Decoder
	encByFormat map[string]Encoder
}

// newCodecRegistry builds a registry with JSON, XML and YAML first, then any
// user codecs. User codecs registered for an existing media type win.
func newCodecRegistry(userEncoders []Encoder, userDecoders []Decoder) *codecRegistry {
	cr := &codecRegistry{
		encByType:   make(map[string]Encoder),
		decByType:   make(map[string]Decoder),
		encByFormat: make(map[string]Encoder),
	}

	encoders := append([]Encoder{jsonCodec{}, xmlCodec{}, yamlCodec{}}, userEncoders...)
	decoders := append([]Decoder{jsonCodec{}, xmlCodec{}, yamlCodec{}, formDecoder{}}, userDecoders...)

	for _, enc := range encoders {
		cr.encoders = append(cr.encoders, enc)
		for _, ct := range mediaTypes(enc) {
			cr.encByType[ct] = enc
		}
		if f, ok := enc.(Formatter); ok {
			cr.encByFormat[strings.ToLower(f.Format())] = enc
		}
	}
	for _, dec := range decoders {
		cr.decoders = append(cr.decoders, dec)
		for _, ct := range mediaTypes(dec) {
			cr.decByType[ct] = dec
		}
	}
	return cr
}

func mediaTypes(c interface{ ContentType() string }) []string {
	types := []string{mediaType(c.ContentType())}
	if a, ok := c.(Aliaser); ok {
		for _, alias := range a.Aliases() {
			types = append(types, mediaType(alias))
		}
	}
	return types
}

// mediaType strips parameters and lowercases a content type. Unparseable
// values are returned trimmed so they still surface in error messages.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// encoderFor returns the encoder for a media type.
func (cr *codecRegistry) encoderFor(contentType string) (Encoder, bool) {
	enc, ok := cr.encByType[mediaType(contentType)]
	return enc, ok
}

// decoderFor returns the decoder for a request Content-Type. An empty
// content type selects fallback.
func (cr *codecRegistry) decoderFor(contentType, fallback string) (Decoder, bool) {
	if contentType == "" {
		contentType = fallback
	}
	dec, ok := cr.decByType[mediaType(contentType)]
	return dec, ok
}

// responseContentType picks the media type a response should be written
// in. The format parameter beats the Accept header; an empty or wildcard
// Accept selects fallback. When nothing the client asked for is supported,
// the client's preferred type is returned unchanged so the caller can reject
// it.
func (cr *codecRegistry) responseContentType(format, accept, fallback string) string {
	if format != "" {
		if enc, ok := cr.encByFormat[strings.ToLower(format)]; ok {
			return enc.ContentType()
		}
		return format
	}

	if strings.TrimSpace(accept) == "" {
		return fallback
	}

	var (
		best       string
		bestQ      = -1.0
		preferred  string
		preferredQ = -1.0
	)

	for part := range strings.SplitSeq(accept, ",") {
		mt, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}

		q := 1.0
		if qs, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(qs, 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 {
			continue
		}

		if mt == "*/*" || mt == "application/*" {
			if q > bestQ {
				best, bestQ = fallback, q
			}
			continue
		}

		if q > preferredQ {
			preferred, preferredQ = mt, q
		}
		if enc, ok := cr.encByType[mt]; ok && q > bestQ {
			best, bestQ = enc.ContentType(), q
		}
	}

	if best != "" {
		return best
	}
	if preferred != "" {
		return preferred
	}
	return fallback
}

// contentTypes returns all encoder content types.
func (cr *codecRegistry) contentTypes() []string {
	cts := make([]string, len(cr.encoders))
	for i, enc := range cr.encoders {
		cts[i] = enc.ContentType()
	}
	return cts
}
