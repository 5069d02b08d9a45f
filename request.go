package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"time"
)

// requestCategory describes how a request type should be decoded.
type requestCategory int

const (
	catVoid     requestCategory = iota // Void: no params, no body
	catBodyOnly                        // entire struct is the body (no param tags, no Body field)
	catParams                          // has param tags but no Body field
	catMixed                           // has Body field (params from tagged fields, body from Body)
)

// classifyRequest determines how a request type should be decoded.
func classifyRequest(t reflect.Type) requestCategory {
	if t == reflect.TypeFor[Void]() {
		return catVoid
	}
	if hasBodyField(t) {
		return catMixed
	}
	if hasParamTags(t) || hasRawRequest(t) {
		return catParams
	}
	return catBodyOnly
}

// Resolver turns an inbound request into the typed request DTO of its route.
// It reads the request and nothing else.
type Resolver struct {
	codecs             *codecRegistry
	defaultContentType string
	maxBodyBytes       int64
}

// Resolve decodes the body of rc.Request into a fresh value of the route's
// request type, binds headers and cookies, then hands the value to the
// route's CreateRequest hook together with the path and query.
func (res *Resolver) Resolve(rc *RequestContext) (any, error) {
	route := rc.Route
	r := rc.Request

	ptr := reflect.New(route.RequestType)
	dto := ptr.Interface()

	switch cat := classifyRequest(route.RequestType); cat {
	case catVoid:
	case catBodyOnly, catMixed:
		target := dto
		if cat == catMixed {
			target = ptr.Elem().FieldByName("Body").Addr().Interface()
		}
		if err := res.decodeBody(rc, target); err != nil {
			return nil, err
		}
		fallthrough
	case catParams:
		if err := bindRequestParams(dto, r); err != nil {
			return nil, deserializationError(err)
		}
	}

	out, err := route.CreateRequest(r.URL.EscapedPath(), r.URL.Query(), dto)
	if err != nil {
		return nil, deserializationError(err)
	}
	return out, nil
}

func (res *Resolver) decodeBody(rc *RequestContext, target any) error {
	r := rc.Request
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}

	contentType := r.Header.Get("Content-Type")
	dec, ok := res.codecs.decoderFor(contentType, res.defaultContentType)
	if !ok {
		return unsupportedMediaType(http.StatusUnsupportedMediaType, mediaType(contentType))
	}

	limit := res.maxBodyBytes
	if rc.Route.BodyLimit > 0 {
		limit = rc.Route.BodyLimit
	}
	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(rc.w, r.Body, limit)
	}

	if err := dec.Decode(body, target); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return &HTTPError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", mbe.Limit),
				Err:     fmt.Errorf("%w: %w: %w", ErrDeserialization, ErrBindBody, err),
			}
		}
		return deserializationError(fmt.Errorf("%w: %w", ErrBindBody, err))
	}
	return nil
}

// bindPathQuery binds path and query tagged fields. It is the default
// extraction rule of a Route.
func bindPathQuery(target any, params map[string]string, query url.Values) error {
	v, ok := structValue(target)
	if !ok {
		return nil
	}

	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() || f.Name == "Body" {
			continue
		}
		field := v.Field(i)

		if name := f.Tag.Get("path"); name != "" {
			if val := params[name]; val != "" {
				if err := setFieldValue(field, val); err != nil {
					return fmt.Errorf("%w: %s: %w", ErrBindPath, name, err)
				}
			}
		}

		if name := f.Tag.Get("query"); name != "" {
			if err := bindValues(field, query[name], f.Tag.Get("default")); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrBindQuery, name, err)
			}
		}
	}
	return nil
}

// bindRequestParams binds header and cookie tagged fields and injects
// RawRequest.
func bindRequestParams(target any, r *http.Request) error {
	v, ok := structValue(target)
	if !ok {
		return nil
	}

	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() || f.Name == "Body" {
			continue
		}
		field := v.Field(i)

		if name := f.Tag.Get("header"); name != "" {
			if err := bindValues(field, r.Header.Values(name), f.Tag.Get("default")); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrBindHeader, name, err)
			}
		}

		if name := f.Tag.Get("cookie"); name != "" {
			var val string
			if c, err := r.Cookie(name); err == nil {
				val = c.Value
			}
			if val == "" {
				val = f.Tag.Get("default")
			}
			if val != "" {
				if err := setFieldValue(field, val); err != nil {
					return fmt.Errorf("%w: %s: %w", ErrBindCookie, name, err)
				}
			}
		}

		if f.Type == reflect.TypeFor[RawRequest]() {
			field.Set(reflect.ValueOf(RawRequest{Request: r}))
		}
	}
	return nil
}

func structValue(target any) (reflect.Value, bool) {
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v, v.Kind() == reflect.Struct
}

// bindValues sets field from vals, falling back to def. Slice fields take
// every value; scalar fields take the first.
func bindValues(field reflect.Value, vals []string, def string) error {
	if len(vals) == 0 || (len(vals) == 1 && vals[0] == "") {
		if def == "" {
			return nil
		}
		vals = []string{def}
	}

	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() != reflect.Uint8 {
		out := reflect.MakeSlice(field.Type(), len(vals), len(vals))
		for i, s := range vals {
			if err := setFieldValue(out.Index(i), s); err != nil {
				return err
			}
		}
		field.Set(out)
		return nil
	}
	return setFieldValue(field, vals[0])
}

// setFieldValue sets a reflect.Value from a string, supporting common types.
func setFieldValue(field reflect.Value, value string) error {
	if field.Type() == reflect.TypeFor[time.Duration]() {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}
	if field.Type() == reflect.TypeFor[time.Time]() {
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(ts))
		return nil
	}

	//exhaustive:ignore
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Pointer:
		elem := reflect.New(field.Type().Elem())
		if err := setFieldValue(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
	default:
		return fmt.Errorf("unsupported type: %s", field.Type())
	}
	return nil
}
