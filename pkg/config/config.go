// Package config provides configuration management for FaceGate.
// It loads configuration from YAML files with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all FaceGate configuration.
type Config struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	Session     SessionConfig     `yaml:"session"`
	Storage     StorageConfig     `yaml:"storage"`
	Notifier    NotifierConfig    `yaml:"notifier"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RecognitionConfig holds face recognition settings.
type RecognitionConfig struct {
	// ModelPath points at the dlib model directory used by go-face.
	ModelPath string `yaml:"model_path"`
	// MatchThreshold is the maximum Euclidean distance between two
	// signatures for them to be treated as the same person. Default 0.6.
	MatchThreshold float64 `yaml:"match_threshold"`
}

// LivenessConfig holds liveness detection settings.
type LivenessConfig struct {
	// MinLandmarks is the minimum landmark count for a frame to be
	// considered a live capture rather than a spoof.
	MinLandmarks int `yaml:"min_landmarks"`
	// MinSpread is the minimum fraction of the frame the landmark
	// bounding box must cover.
	MinSpread float64 `yaml:"min_spread"`
}

// SessionConfig holds pending-verification and token settings.
type SessionConfig struct {
	// PendingTTL is how long a password-verified login may wait for the
	// face step before it expires, in seconds.
	PendingTTL int `yaml:"pending_ttl"`
	// TokenTTL is the authenticated token lifetime, in minutes.
	TokenTTL int `yaml:"token_ttl"`
	// SigningKeyFile holds the token signing key. Created on first use
	// when absent.
	SigningKeyFile string `yaml:"signing_key_file"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir           string `yaml:"data_dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
}

// NotifierConfig holds login notification settings.
type NotifierConfig struct {
	// Mode selects the notifier backend: "log" or "resend".
	// The Resend API key is read from the RESEND_API_KEY environment
	// variable, never from this file.
	Mode        string `yaml:"mode"`
	FromAddress string `yaml:"from_address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/facegate")
	return &Config{
		Recognition: RecognitionConfig{
			ModelPath:      filepath.Join(dataDir, "models"),
			MatchThreshold: 0.6,
		},
		Liveness: LivenessConfig{
			MinLandmarks: 5,
			MinSpread:    0.02,
		},
		Session: SessionConfig{
			PendingTTL:     120,
			TokenTTL:       60,
			SigningKeyFile: filepath.Join(dataDir, "signing.key"),
		},
		Storage: StorageConfig{
			DataDir:           dataDir,
			EncryptionEnabled: true,
		},
		Notifier: NotifierConfig{
			Mode:        "log",
			FromAddress: "facegate@localhost",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "facegate.log"),
		},
	}
}

// Load loads configuration from the specified file.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat("/etc/facegate/facegate.yaml"); err == nil {
		return Load("/etc/facegate/facegate.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, ".config/facegate/facegate.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	return DefaultConfig(), nil
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Recognition.MatchThreshold <= 0 || c.Recognition.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in (0, 1], got %f", c.Recognition.MatchThreshold)
	}

	if c.Liveness.MinLandmarks <= 0 {
		return fmt.Errorf("min_landmarks must be positive, got %d", c.Liveness.MinLandmarks)
	}
	if c.Liveness.MinSpread < 0 || c.Liveness.MinSpread > 1 {
		return fmt.Errorf("min_spread must be between 0 and 1, got %f", c.Liveness.MinSpread)
	}

	if c.Session.PendingTTL <= 0 {
		return fmt.Errorf("pending_ttl must be positive, got %d", c.Session.PendingTTL)
	}
	if c.Session.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %d", c.Session.TokenTTL)
	}

	switch c.Notifier.Mode {
	case "log", "resend":
	default:
		return fmt.Errorf("invalid notifier mode: %s (must be log or resend)", c.Notifier.Mode)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Recognition.ModelPath = ExpandPath(c.Recognition.ModelPath)
	c.Session.SigningKeyFile = ExpandPath(c.Session.SigningKeyFile)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates necessary directories for storage and logging.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	for _, sub := range []string{"identities", "signatures"} {
		if err := os.MkdirAll(filepath.Join(c.Storage.DataDir, sub), 0700); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}

	if err := os.MkdirAll(c.Recognition.ModelPath, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	return nil
}
