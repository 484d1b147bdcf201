// Package config loads and saves user preferences for the streaming client:
// which server to talk to, which transport variant to use, and the pacing
// knobs. Preferences live in a YAML file under the user config directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Preferences are the persisted user settings.
type Preferences struct {
	// BaseURL is the run server to connect to.
	BaseURL string `yaml:"baseUrl"`

	// Transport selects the stream variant: "sse" or "websocket".
	Transport string `yaml:"transport"`

	// TokensPerSecond is the pacing rate for display text.
	TokensPerSecond float64 `yaml:"tokensPerSecond"`

	// MinChunkSize is the smallest emission the pacer will cut, in bytes.
	MinChunkSize int `yaml:"minChunkSize"`

	// MaxBufferSize is the backlog size that triggers a forced drain.
	MaxBufferSize int `yaml:"maxBufferSize"`
}

// Default returns the preferences used when no file exists.
func Default() Preferences {
	return Preferences{
		BaseURL:         "http://localhost:8080",
		Transport:       "sse",
		TokensPerSecond: 30.0,
		MinChunkSize:    12,
		MaxBufferSize:   4096,
	}
}

// DefaultPath returns the canonical preferences file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(dir, "agentstream", "preferences.yaml"), nil
}

// Load reads preferences from path. A missing file is not an error: defaults
// are returned. Fields absent from the file keep their default values.
func Load(path string) (Preferences, error) {
	prefs := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return prefs, nil
		}
		return prefs, fmt.Errorf("reading preferences: %w", err)
	}

	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return Default(), fmt.Errorf("parsing preferences: %w", err)
	}
	return prefs, nil
}

// Save writes preferences to path, creating parent directories as needed.
func Save(path string, prefs Preferences) error {
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	return nil
}
