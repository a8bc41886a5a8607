// Package config handles xhsnap configuration: an optional TOML file under
// the user config dir, with environment variables always taking precedence.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variable names recognized across the pipeline.
const (
	EnvOutputDir = "XHS_OUTPUT_DIR"
	EnvNotesDir  = "XHS_NOTES_DIR"
	EnvMediaDir  = "XHS_MEDIA_DIR"
	EnvCookie    = "XHS_COOKIE"
	EnvGeminiKey = "GEMINI_API_KEY"
	EnvGoogleKey = "GOOGLE_API_KEY"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Capture  CaptureConfig  `toml:"capture"`
	Analysis AnalysisConfig `toml:"analysis"`
	Archive  ArchiveConfig  `toml:"archive"`
}

type CaptureConfig struct {
	Headless          bool `toml:"headless"`
	NavTimeoutSeconds int  `toml:"nav_timeout_seconds"`
}

type AnalysisConfig struct {
	MaxRetries        int `toml:"max_retries"`
	SubprocessTimeout int `toml:"subprocess_timeout_seconds"`
}

type ArchiveConfig struct {
	OutputDir string `toml:"output_dir"`
	NotesDir  string `toml:"notes_dir"`
	MediaDir  string `toml:"media_dir"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Capture: CaptureConfig{
			Headless:          true,
			NavTimeoutSeconds: 45,
		},
		Analysis: AnalysisConfig{
			MaxRetries:        3,
			SubprocessTimeout: 300,
		},
		Archive: ArchiveConfig{
			OutputDir: "./xhs_captures",
		},
	}
}

// NavTimeout returns the navigation timeout as a duration.
func (c *Config) NavTimeout() time.Duration {
	return time.Duration(c.Capture.NavTimeoutSeconds) * time.Second
}

// AnalyzeTimeout returns the analyzer subprocess timeout as a duration.
func (c *Config) AnalyzeTimeout() time.Duration {
	return time.Duration(c.Analysis.SubprocessTimeout) * time.Second
}

// OutputDir resolves the base output directory: env override, then config
// file, then the default next to the working directory.
func (c *Config) OutputDir() string {
	if dir := os.Getenv(EnvOutputDir); dir != "" {
		return dir
	}
	if c.Archive.OutputDir != "" {
		return c.Archive.OutputDir
	}
	return "./xhs_captures"
}

// NotesDir resolves the notes directory (supports override).
func (c *Config) NotesDir() string {
	if dir := os.Getenv(EnvNotesDir); dir != "" {
		return dir
	}
	if c.Archive.NotesDir != "" {
		return c.Archive.NotesDir
	}
	return filepath.Join(c.OutputDir(), "notes")
}

// MediaRootDir resolves the media root directory (supports override).
func (c *Config) MediaRootDir() string {
	if dir := os.Getenv(EnvMediaDir); dir != "" {
		return dir
	}
	if c.Archive.MediaDir != "" {
		return c.Archive.MediaDir
	}
	return filepath.Join(c.OutputDir(), "media")
}

// APIKey returns the inference API key, trying both accepted variable names.
func APIKey() string {
	if key := os.Getenv(EnvGeminiKey); key != "" {
		return key
	}
	return os.Getenv(EnvGoogleKey)
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "xhsnap"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from disk
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
