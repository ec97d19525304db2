package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalid marks configuration errors. Fatal at startup: the daemon must
// not begin recording with a malformed config.
var ErrInvalid = errors.New("invalid config")

// Wildcard is the topic-list sentinel meaning "record every available topic".
const Wildcard = "*"

// RecordingConfig holds all capture configuration.
type RecordingConfig struct {
	DataFolder          string   `json:"data_folder"`           // Base directory for bag output
	FileDurationSeconds int      `json:"file_duration_seconds"` // Time-based segment rotation
	LoggedTopics        []string `json:"logged_topics"`         // Topic names, or ["*"] for all
	ControlListenAddr   string   `json:"control_listen_addr"`   // WebSocket control endpoint (optional)
}

// Load reads configuration from ~/.config/bagcap/recorder.json.
// Falls back to configs/default-recorder.json if the user config doesn't exist.
func Load() (*RecordingConfig, error) {
	configDir := filepath.Join(os.Getenv("HOME"), ".config", "bagcap")
	userConfigPath := filepath.Join(configDir, "recorder.json")

	data, err := os.ReadFile(userConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			defaultPath := "configs/default-recorder.json"
			data, err = os.ReadFile(defaultPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}

			// Create user config directory for future saves
			if err := os.MkdirAll(configDir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create config directory: %w", err)
			}
		} else {
			return nil, err
		}
	}

	return Parse(data)
}

// Parse decodes and validates a RecordingConfig from raw JSON.
func Parse(data []byte) (*RecordingConfig, error) {
	var cfg RecordingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes configuration to ~/.config/bagcap/recorder.json.
func Save(cfg *RecordingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	configDir := filepath.Join(os.Getenv("HOME"), ".config", "bagcap")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "recorder.json")

	// Write with indentation for readability
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// Validate checks RecordingConfig for validity.
func (c *RecordingConfig) Validate() error {
	if c.DataFolder == "" {
		return fmt.Errorf("%w: data_folder must not be empty", ErrInvalid)
	}

	if c.FileDurationSeconds <= 0 {
		return fmt.Errorf("%w: file_duration_seconds must be positive, got %d", ErrInvalid, c.FileDurationSeconds)
	}

	if len(c.LoggedTopics) == 0 {
		return fmt.Errorf("%w: logged_topics must not be empty", ErrInvalid)
	}

	// The wildcard sentinel never mixes with explicit topic names.
	for _, topic := range c.LoggedTopics {
		if topic == Wildcard && len(c.LoggedTopics) > 1 {
			return fmt.Errorf("%w: wildcard %q must be the sole logged topic", ErrInvalid, Wildcard)
		}
	}

	return nil
}
