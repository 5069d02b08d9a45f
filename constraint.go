package dispatch

import (
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// constraint checks one struct tag against a field value. It returns a
// violation message, or "" when the value satisfies the tag.
type constraint struct {
	tag   string
	kinds func(reflect.Kind) bool
	check func(tag string, fv reflect.Value) (msg string, value any)
}

var constraints = []constraint{
	{"minLength", isString, func(tag string, fv reflect.Value) (string, any) {
		if n, err := strconv.Atoi(tag); err == nil && len(fv.String()) < n {
			return fmt.Sprintf("must be at least %d characters", n), fv.String()
		}
		return "", nil
	}},
	{"maxLength", isString, func(tag string, fv reflect.Value) (string, any) {
		if n, err := strconv.Atoi(tag); err == nil && len(fv.String()) > n {
			return fmt.Sprintf("must be at most %d characters", n), fv.String()
		}
		return "", nil
	}},
	{"pattern", isString, func(tag string, fv reflect.Value) (string, any) {
		if re, err := compilePattern(tag); err == nil && !re.MatchString(fv.String()) {
			return "must match pattern " + tag, fv.String()
		}
		return "", nil
	}},
	{"enum", isString, func(tag string, fv reflect.Value) (string, any) {
		if !slices.Contains(strings.Split(tag, ","), fv.String()) {
			return fmt.Sprintf("must be one of [%s]", tag), fv.String()
		}
		return "", nil
	}},
	{"minimum", isNumericKind, func(tag string, fv reflect.Value) (string, any) {
		if lower, err := strconv.ParseFloat(tag, 64); err == nil && toFloat64(fv) < lower {
			return "must be at least " + tag, toFloat64(fv)
		}
		return "", nil
	}},
	{"maximum", isNumericKind, func(tag string, fv reflect.Value) (string, any) {
		if upper, err := strconv.ParseFloat(tag, 64); err == nil && toFloat64(fv) > upper {
			return "must be at most " + tag, toFloat64(fv)
		}
		return "", nil
	}},
	{"minItems", isSlice, func(tag string, fv reflect.Value) (string, any) {
		if n, err := strconv.Atoi(tag); err == nil && fv.Len() < n {
			return fmt.Sprintf("must have at least %d items", n), fv.Len()
		}
		return "", nil
	}},
	{"maxItems", isSlice, func(tag string, fv reflect.Value) (string, any) {
		if n, err := strconv.Atoi(tag); err == nil && fv.Len() > n {
			return fmt.Sprintf("must have at most %d items", n), fv.Len()
		}
		return "", nil
	}},
}

var patternCache sync.Map // string → *regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}

// validateConstraints checks all constraint tags on the struct fields and returns
// a ProblemDetail with all violations if any are found.
func validateConstraints(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	var errs []ValidationError
	collectConstraintErrors(rv, "", &errs)
	if len(errs) == 0 {
		return nil
	}
	return &ProblemDetail{
		Type:   "about:blank",
		Title:  "Validation Failed",
		Status: http.StatusBadRequest,
		Detail: fmt.Sprintf("%d constraint violation(s)", len(errs)),
		Errors: errs,
	}
}

func collectConstraintErrors(rv reflect.Value, prefix string, errs *[]ValidationError) {
	t := rv.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() || f.Type == reflect.TypeFor[RawRequest]() {
			continue
		}
		name := jsonFieldName(f)
		if name == "-" {
			continue
		}
		fv := rv.Field(i)

		if f.Name == "Body" && f.Type.Kind() == reflect.Struct {
			collectConstraintErrors(fv, "body", errs)
			continue
		}

		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		for _, c := range constraints {
			tag := f.Tag.Get(c.tag)
			if tag == "" || !c.kinds(fv.Kind()) {
				continue
			}
			if msg, val := c.check(tag, fv); msg != "" {
				*errs = append(*errs, ValidationError{Field: path, Message: msg, Value: val})
			}
		}

		if fv.Kind() == reflect.Struct && !isParamField(f) {
			collectConstraintErrors(fv, path, errs)
		}
	}
}

func isString(k reflect.Kind) bool { return k == reflect.String }

func isSlice(k reflect.Kind) bool { return k == reflect.Slice }

func isNumericKind(k reflect.Kind) bool {
	//exhaustive:ignore
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func toFloat64(v reflect.Value) float64 {
	//exhaustive:ignore
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default: // float32, float64
		return v.Float()
	}
}
