package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Settings are the scalar pipeline settings. They can be loaded from a YAML
// file and DISPATCH_* environment variables with LoadSettings.
type Settings struct {
	// DefaultContentType is used for responses when the request expresses
	// no preference, and for request bodies without a Content-Type.
	DefaultContentType string `koanf:"default_content_type"`

	// AllowJSONP enables callback wrapping of response bodies.
	AllowJSONP bool `koanf:"allow_jsonp"`

	// CallbackParam names the query parameter carrying the callback.
	CallbackParam string `koanf:"callback_param"`

	// FormatParam names the query parameter that overrides Accept
	// (?format=xml).
	FormatParam string `koanf:"format_param"`

	// MaxBodyBytes caps request bodies. Zero disables the cap.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// DefaultSettings returns JSON by default, callback wrapping off,
// "callback" and "format" as parameter names.
func DefaultSettings() Settings {
	return Settings{
		DefaultContentType: mimeJSON,
		CallbackParam:      "callback",
		FormatParam:        "format",
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.DefaultContentType == "" {
		s.DefaultContentType = d.DefaultContentType
	}
	if s.CallbackParam == "" {
		s.CallbackParam = d.CallbackParam
	}
	if s.FormatParam == "" {
		s.FormatParam = d.FormatParam
	}
	return s
}

// envPrefix is the prefix of environment variables read by LoadSettings.
// DISPATCH_ALLOW_JSONP=true sets allow_jsonp.
const envPrefix = "DISPATCH_"

// LoadSettings reads settings from the YAML file at path (optional; a
// missing file is not an error, an empty path skips it) and then from
// DISPATCH_* environment variables, which win.
func LoadSettings(path string) (Settings, error) {
	k := koanf.New(".")

	d := DefaultSettings()
	defaults := map[string]any{
		"default_content_type": d.DefaultContentType,
		"allow_jsonp":          d.AllowJSONP,
		"callback_param":       d.CallbackParam,
		"format_param":         d.FormatParam,
		"max_body_bytes":       d.MaxBodyBytes,
	}
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return Settings{}, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("load settings %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return Settings{}, fmt.Errorf("load settings from environment: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s.withDefaults(), nil
}

// SpanStarter is a tracing hook interface for creating spans per request.
// The dispatchotel package implements it with OpenTelemetry.
type SpanStarter interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func())
}

// ErrorMapper rewrites an error before it is written to the client, e.g. to
// translate domain errors into HTTPError or ProblemDetail values.
type ErrorMapper func(rc *RequestContext, err error) error

// Config is the immutable configuration of a Pipeline. Slices are copied by
// NewPipeline; later changes to a Config do not affect pipelines built from it.
type Config struct {
	Settings Settings

	RequestFilters  []RequestFilter
	ResponseFilters []ResponseFilter
	Binders         []ResponseBinder

	Encoders []Encoder
	Decoders []Decoder

	Logger    *slog.Logger
	Tracer    SpanStarter
	Metrics   *Metrics
	Observers []Observer
	MapError  ErrorMapper
}
