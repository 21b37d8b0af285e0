package voiceloop

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Credentials are not part of the file;
// they come from the environment (DEEPGRAM_API_KEY, GEMINI_API_KEY,
// MURF_API_KEY, GOOGLE_APPLICATION_CREDENTIALS).
type Config struct {
	// Addr is the listen address, e.g. ":8081".
	Addr string `yaml:"addr"`

	// RecordingsDir, when set, receives one append-only PCM file per
	// connection. Empty disables audio persistence.
	RecordingsDir string `yaml:"recordings_dir"`

	Audio     AudioConfig     `yaml:"audio"`
	LLM       LLMConfig       `yaml:"llm"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
}

type AudioConfig struct {
	// SampleRate of client audio in Hz. Clients must match.
	SampleRate int `yaml:"sample_rate"`

	// Language for transcription, e.g. "en-US".
	Language string `yaml:"language"`
}

type LLMConfig struct {
	// Model names the Gemini model.
	Model string `yaml:"model"`
}

type SynthesisConfig struct {
	// Voice is the backend voice id.
	Voice string `yaml:"voice"`

	// Endpoint overrides the backend URL; empty uses the default.
	Endpoint string `yaml:"endpoint"`

	// SampleRate of synthesized audio in Hz.
	SampleRate int `yaml:"sample_rate"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Addr: ":8081",
		Audio: AudioConfig{
			SampleRate: 16000,
			Language:   "en-US",
		},
		LLM: LLMConfig{
			Model: "gemini-2.0-flash",
		},
		Synthesis: SynthesisConfig{
			Voice:      "en-US-ken",
			SampleRate: 24000,
		},
	}
}

// LoadConfig reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr must not be empty")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: audio.sample_rate must be positive")
	}
	return nil
}
