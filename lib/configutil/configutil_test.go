package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Url      string `json:"url"`
	Username string `json:"username"`
	Pages    int    `json:"pages"`
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, "a/trbowatch.local.json5", LocalPath("a/trbowatch.json5"))
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "trbowatch.json5")

	require.NoError(t, os.WriteFile(name, []byte(`{
		// comments are allowed
		url: "http://example.test",
		username: "alice",
		pages: 10,
	}`), 0600))
	require.NoError(t, os.WriteFile(LocalPath(name), []byte(`{username: "bob"}`), 0600))

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{Url: "http://example.test", Username: "bob", Pages: 10}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "missing.json5"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadConfigInvalid(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bad.json5")
	require.NoError(t, os.WriteFile(name, []byte(`{url: `), 0600))

	_, err := ReadConfig[testConfig](name)
	require.Error(t, err)
	require.False(t, errors.Is(err, os.ErrNotExist))
}
