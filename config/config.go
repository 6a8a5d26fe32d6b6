// Package config loads speakup settings from a YAML file, then applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"speakup/encoder"
)

type Config struct {
	Language string `yaml:"language"`

	Capture struct {
		Device     string        `yaml:"device"`
		SampleRate int           `yaml:"sample_rate"`
		Tick       time.Duration `yaml:"tick"`
	} `yaml:"capture"`

	Transcriber struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"transcriber"`

	Grammar struct {
		Provider string        `yaml:"provider"`
		URL      string        `yaml:"url"`
		Timeout  time.Duration `yaml:"timeout"`
		Model    string        `yaml:"model"`
		APIKey   string        `yaml:"api_key"`
	} `yaml:"grammar"`

	Stats struct {
		Database string `yaml:"database"`
	} `yaml:"stats"`

	Log struct {
		Path string `yaml:"path"`
	} `yaml:"log"`
}

// Default returns the built-in settings: Deepgram streaming when a key is
// present, LanguageTool's public endpoint, stats kept in memory.
func Default() *Config {
	c := &Config{Language: "en-US"}
	c.Capture.SampleRate = encoder.SampleRate
	c.Capture.Tick = time.Second
	c.Transcriber.Provider = "deepgram"
	c.Grammar.Provider = "languagetool"
	c.Grammar.URL = "https://api.languagetoolplus.com"
	c.Grammar.Timeout = 5 * time.Second
	return c
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
			}
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		c.Transcriber.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Grammar.APIKey == "" {
		c.Grammar.APIKey = v
	}
	if v := os.Getenv("LANGUAGETOOL_URL"); v != "" {
		c.Grammar.URL = v
	}
	if v := os.Getenv("SPEAKUP_LANG"); v != "" {
		c.Language = v
	}
}

func (c *Config) Validate() error {
	switch c.Transcriber.Provider {
	case "", "none", "deepgram":
	default:
		return fmt.Errorf("unknown transcriber provider %q", c.Transcriber.Provider)
	}
	switch c.Grammar.Provider {
	case "languagetool", "openai", "local":
	default:
		return fmt.Errorf("unknown grammar provider %q", c.Grammar.Provider)
	}
	if c.Grammar.Timeout <= 0 {
		return fmt.Errorf("grammar timeout must be positive, got %s", c.Grammar.Timeout)
	}
	if c.Capture.Tick <= 0 {
		return fmt.Errorf("capture tick must be positive, got %s", c.Capture.Tick)
	}
	if c.Capture.SampleRate != encoder.SampleRate {
		return fmt.Errorf("sample rate must be %d, got %d", encoder.SampleRate, c.Capture.SampleRate)
	}
	if c.Language == "" {
		return errors.New("language must be set")
	}
	return nil
}
