// Package config loads and validates the user-facing configuration
// file. All settings are optional; the zero config corrects with the
// claude CLI's defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quillhq/quill/internal/engine"
	"github.com/quillhq/quill/internal/models"
	"github.com/quillhq/quill/internal/provider"
)

// DefaultSystemPrompt is the correction instruction sent when the user
// has not configured their own.
const DefaultSystemPrompt = "Fix grammar, spelling, and punctuation in the following text. " +
	"Preserve the author's tone, formatting, and line breaks. " +
	"Return only the corrected text with no commentary."

// Config is the persisted user configuration.
type Config struct {
	// Provider selects the default CLI tool: claude, codex, or gemini.
	Provider string `yaml:"provider"`

	// Model is the provider-specific model alias; empty means the
	// provider default.
	Model string `yaml:"model,omitempty"`

	// SystemPrompt overrides the built-in correction instruction.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// TimeoutSeconds bounds each correction round trip.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Streaming requests incremental output from the provider.
	Streaming bool `yaml:"streaming"`

	// PreferSession enables the persistent-shell fast path.
	PreferSession bool `yaml:"prefer_session"`

	// Shell overrides the shell binary backing persistent sessions.
	Shell string `yaml:"shell,omitempty"`

	// BinaryPaths maps provider names to absolute executable paths,
	// bypassing discovery.
	BinaryPaths map[string]string `yaml:"binary_paths,omitempty"`

	// ExtraInstallDirs are searched for provider binaries after the
	// standard install locations.
	ExtraInstallDirs []string `yaml:"extra_install_dirs,omitempty"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	return Config{
		Provider:       string(provider.Claude),
		SystemPrompt:   DefaultSystemPrompt,
		TimeoutSeconds: models.DefaultTimeoutSeconds,
		Streaming:      true,
		PreferSession:  true,
	}
}

// GlobalQuillPath returns the path to the global .quill directory.
// On Unix: ~/.quill
// On Windows: %USERPROFILE%\.quill
func GlobalQuillPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".quill"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := GlobalQuillPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config at path, or the default location when path is
// empty. A missing file is not an error: the defaults are returned.
// File settings are merged over the defaults, so omitted keys keep
// their default values.
func Load(path string) (Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Config{}, err
		}
	}

	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if _, err := provider.ParseName(c.Provider); err != nil {
		return err
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.SystemPrompt == "" {
		return fmt.Errorf("system_prompt must not be empty")
	}
	for name := range c.BinaryPaths {
		if _, err := provider.ParseName(name); err != nil {
			return fmt.Errorf("binary_paths: %w", err)
		}
	}
	return nil
}

// EngineConfig converts the user configuration into the engine's.
func (c Config) EngineConfig() engine.Config {
	paths := make(map[provider.Name]string, len(c.BinaryPaths))
	for name, path := range c.BinaryPaths {
		if parsed, err := provider.ParseName(name); err == nil {
			paths[parsed] = path
		}
	}
	return engine.Config{
		PreferSession:    c.PreferSession,
		BinaryPaths:      paths,
		ExtraInstallDirs: c.ExtraInstallDirs,
		Shell:            c.Shell,
	}
}

// NewRequest builds a correction request for text from the configured
// defaults.
func (c Config) NewRequest(text string) models.CorrectionRequest {
	return models.CorrectionRequest{
		SystemPrompt:   c.SystemPrompt,
		SelectedText:   text,
		Provider:       provider.Name(c.Provider),
		Model:          c.Model,
		TimeoutSeconds: c.TimeoutSeconds,
		Streaming:      c.Streaming,
	}
}
