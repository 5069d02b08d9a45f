package dispatch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/dispatch"
)

func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSettings_defaults(t *testing.T) {
	s, err := dispatch.LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, dispatch.DefaultSettings(), s)
}

func TestLoadSettings_missing_file_is_ignored(t *testing.T) {
	s, err := dispatch.LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, dispatch.DefaultSettings(), s)
}

func TestLoadSettings_file(t *testing.T) {
	path := writeSettingsFile(t, `
default_content_type: application/xml
allow_jsonp: true
callback_param: cb
max_body_bytes: 4096
`)

	s, err := dispatch.LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, dispatch.Settings{
		DefaultContentType: "application/xml",
		AllowJSONP:         true,
		CallbackParam:      "cb",
		FormatParam:        "format",
		MaxBodyBytes:       4096,
	}, s)
}

func TestLoadSettings_env_overrides_file(t *testing.T) {
	path := writeSettingsFile(t, "allow_jsonp: true\nformat_param: fmt\n")
	t.Setenv("DISPATCH_ALLOW_JSONP", "false")
	t.Setenv("DISPATCH_MAX_BODY_BYTES", "1024")

	s, err := dispatch.LoadSettings(path)
	require.NoError(t, err)

	assert.False(t, s.AllowJSONP)
	assert.Equal(t, int64(1024), s.MaxBodyBytes)
	assert.Equal(t, "fmt", s.FormatParam)
}

func TestLoadSettings_malformed_file(t *testing.T) {
	path := writeSettingsFile(t, "allow_jsonp: [unterminated\n")

	_, err := dispatch.LoadSettings(path)
	assert.Error(t, err)
}

func TestPipeline_Settings_fills_defaults(t *testing.T) {
	t.Parallel()

	p := dispatch.NewPipeline(dispatch.Config{Settings: dispatch.Settings{AllowJSONP: true}})

	s := p.Settings()
	assert.True(t, s.AllowJSONP)
	assert.Equal(t, "application/json", s.DefaultContentType)
	assert.Equal(t, "callback", s.CallbackParam)
	assert.Equal(t, "format", s.FormatParam)
}
