package voiceloop

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := writeConfigFile(t, `
addr: ":9090"
audio:
  language: "en-GB"
synthesis:
  voice: "en-US-natalie"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "en-GB", cfg.Audio.Language)
	assert.Equal(t, "en-US-natalie", cfg.Synthesis.Voice)

	// Unspecified fields keep their defaults.
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, 24000, cfg.Synthesis.SampleRate)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "addr: [unclosed")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Run("empty addr rejected", func(t *testing.T) {
		path := writeConfigFile(t, `addr: ""`)
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "addr")
	})

	t.Run("non-positive sample rate rejected", func(t *testing.T) {
		path := writeConfigFile(t, "audio:\n  sample_rate: -1\n")
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "sample_rate")
	})
}
