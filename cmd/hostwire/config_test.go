package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func isolateConfig(t *testing.T) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("HOSTWIRE_CONFIG", "")
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateConfig(t)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:9696", cfg.Address)
	require.Equal(t, "json", cfg.Codec)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, "info", cfg.Log.Level)
	require.Empty(t, cfg.Log.File)
}

func TestLoadConfig_FileEnvAndFlags(t *testing.T) {
	isolateConfig(t)

	path := filepath.Join(t.TempDir(), "hostwire.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
address: exec:///usr/local/bin/host --stdio
codec: cbor
request_timeout: 5s
log:
  level: debug
  file: /tmp/hostwire.log
`), 0o600))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	require.Equal(t, "exec:///usr/local/bin/host --stdio", cfg.Address)
	require.Equal(t, "cbor", cfg.Codec)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, "debug", cfg.Log.Level)

	t.Setenv("HOSTWIRE_CODEC", "json")
	t.Setenv("HOSTWIRE_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("address", "", "")
	flags.Duration("request-timeout", 0, "")
	require.NoError(t, flags.Parse([]string{"--address", "ws://other:1234"}))

	cfg, err = LoadConfig(path, flags)
	require.NoError(t, err)
	require.Equal(t, "ws://other:1234", cfg.Address)
	require.Equal(t, "json", cfg.Codec)
	require.Equal(t, "warn", cfg.Log.Level)

	// Unset flags do not shadow the file.
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoadConfig_ConfigEnvVar(t *testing.T) {
	isolateConfig(t)

	path := filepath.Join(t.TempDir(), "hostwire.toml")
	require.NoError(t, os.WriteFile(path, []byte("name = \"from-toml\"\n"), 0o600))
	t.Setenv("HOSTWIRE_CONFIG", path)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	require.Equal(t, "from-toml", cfg.Name)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	isolateConfig(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostwire.log")

	log, closer := NewLogger(LogConfig{Level: "debug", Format: "json", File: path})
	log.Debug("hello", "component", "test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLevel("debug").String())
	require.Equal(t, "WARN", parseLevel("WARNING").String())
	require.Equal(t, "INFO", parseLevel("bogus").String())
}
